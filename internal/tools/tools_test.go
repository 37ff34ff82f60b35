package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DawoodTahir/MCP-Chatbot/internal/llm"
	"github.com/DawoodTahir/MCP-Chatbot/internal/testutil"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.List())

	r.Register(NewNotifyTool())
	tool, ok := r.Get("notify_user")
	require.True(t, ok)
	assert.Equal(t, "notify_user", tool.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Len(t, r.List(), 1)
}

func TestNotifyMissingCredentials(t *testing.T) {
	t.Setenv(EnvWhatsAppToken, "")
	t.Setenv(EnvWhatsAppPhoneID, "")

	tool := NewNotifyTool()
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"message":"hi"}`))
	require.ErrorIs(t, err, ErrCredentialsNotConfigured)
}

func TestNotifyRequiresMessage(t *testing.T) {
	tool := NewNotifyTool()
	_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message is required")
}

func TestNotifySendsMessage(t *testing.T) {
	t.Setenv(EnvWhatsAppToken, "test-token")
	t.Setenv(EnvWhatsAppPhoneID, "12345")

	var got whatsAppPayload
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/12345/messages", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.test"}]}`))
	}))
	t.Cleanup(srv.Close)

	tool := NewNotifyToolWithBase(srv.URL)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"message":"interview done"}`))
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "owner", got.To, "defaults to owner when no phone given")
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "interview done", got.Text.Body)
	assert.Contains(t, string(result), "wamid.test")
}

func TestNotifyAPIFailure(t *testing.T) {
	t.Setenv(EnvWhatsAppToken, "test-token")
	t.Setenv(EnvWhatsAppPhoneID, "12345")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	tool := NewNotifyToolWithBase(srv.URL)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"message":"hi"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

// escoServer fakes the occupation search and resource endpoints.
func escoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			assert.Equal(t, "occupation", r.URL.Query().Get("type"))
			_, _ = w.Write([]byte(`{"_embedded":{"results":[
				{"uri":"http://data.europa.eu/esco/occupation/abc","title":"data engineer"}
			]}}`))
		case "/resource/occupation":
			assert.Equal(t, "http://data.europa.eu/esco/occupation/abc", r.URL.Query().Get("uri"))
			_, _ = w.Write([]byte(`{"_links":{
				"hasEssentialSkill":[
					{"title":"SQL"},
					{"title":{"en":"data modelling","de":"Datenmodellierung"}},
					{"title":"sql"}
				],
				"hasOptionalSkill":[{"title":"Scala"}]
			}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestSkillsToolFetchesAndDedupes(t *testing.T) {
	srv := escoServer(t)
	t.Cleanup(srv.Close)

	tool := NewSkillsToolWithBase(srv.URL, nil, "")
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"role":"data engineer"}`))
	require.NoError(t, err)

	var result skillsResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "data engineer", result.MatchedAs)

	// "SQL" and "sql" collapse to one label.
	require.Len(t, result.Essential, 2)
	labels := []string{result.Essential[0].Label, result.Essential[1].Label}
	assert.Contains(t, labels, "SQL")
	assert.Contains(t, labels, "data modelling")
	require.Len(t, result.Optional, 1)
	assert.Equal(t, "Scala", result.Optional[0].Label)
}

func TestSkillsToolRewritesLabels(t *testing.T) {
	esco := escoServer(t)
	t.Cleanup(esco.Close)

	mock := testutil.NewOpenAICompatibleServer(
		`{"skills":[{"original":"SQL","label":"writing SQL queries"},{"original":"data modelling","label":"designing data models"},{"original":"Scala","label":"Scala programming"}]}`,
		0, 0)
	t.Cleanup(mock.Close)
	provider := llm.NewOpenAIProviderWithBaseURL("test-key", mock.URL)

	tool := NewSkillsToolWithBase(esco.URL, provider, "gpt-4o-mini")
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"role":"data engineer"}`))
	require.NoError(t, err)

	var result skillsResult
	require.NoError(t, json.Unmarshal(out, &result))
	require.Len(t, result.Essential, 2)
	for _, s := range result.Essential {
		switch s.Original {
		case "SQL":
			assert.Equal(t, "writing SQL queries", s.Label)
		case "data modelling":
			assert.Equal(t, "designing data models", s.Label)
		default:
			t.Fatalf("unexpected essential skill %q", s.Original)
		}
	}
	require.Len(t, result.Optional, 1)
	assert.Equal(t, "Scala programming", result.Optional[0].Label)
}

func TestAttitudeToolReturnsTips(t *testing.T) {
	mock := testutil.NewOpenAICompatibleServer(
		`{"tips":["listen before answering","own your mistakes"]}`, 0, 0)
	t.Cleanup(mock.Close)
	provider := llm.NewOpenAIProviderWithBaseURL("test-key", mock.URL)

	tool := NewAttitudeTool(provider, "gpt-4o-mini")
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"role":"nurse"}`))
	require.NoError(t, err)

	var result struct {
		Role string   `json:"role"`
		Tips []string `json:"tips"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "nurse", result.Role)
	assert.Equal(t, []string{"listen before answering", "own your mistakes"}, result.Tips)
}

func TestSkillsToolRequiresRole(t *testing.T) {
	tool := NewSkillsToolWithBase("http://unused", nil, "")
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"role":"  "}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role is required")
}

func TestSkillsToolNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_embedded":{"results":[]}}`))
	}))
	t.Cleanup(srv.Close)

	tool := NewSkillsToolWithBase(srv.URL, nil, "")
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"role":"unicorn wrangler"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no occupation found")
}

func TestAttitudeToolWithoutProvider(t *testing.T) {
	tool := NewAttitudeTool(nil, "")
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"role":"teacher"}`))
	require.NoError(t, err)

	var result struct {
		Role string   `json:"role"`
		Tips []string `json:"tips"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "teacher", result.Role)
	assert.Empty(t, result.Tips)
}

func TestAttitudeToolRequiresRole(t *testing.T) {
	tool := NewAttitudeTool(nil, "")
	_, err := tool.Execute(context.Background(), nil)
	require.Error(t, err)
}
