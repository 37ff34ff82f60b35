package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		wantDecision decision
		wantTool     string
	}{
		{
			name:         "skills lookup",
			message:      "What skills do I need for a data engineer?",
			wantDecision: decisionTool,
			wantTool:     "fetch_role_skills",
		},
		{
			name:         "skills of phrasing",
			message:      "skills of a nurse",
			wantDecision: decisionTool,
			wantTool:     "fetch_role_skills",
		},
		{
			name:         "attitude tips",
			message:      "Any soft skills I should work on?",
			wantDecision: decisionTool,
			wantTool:     "attitude_tips",
		},
		{
			name:         "notify",
			message:      "Please notify the owner that I finished the mock interview",
			wantDecision: decisionTool,
			wantTool:     "notify_user",
		},
		{
			name:         "document question",
			message:      "According to my resume, what should I highlight?",
			wantDecision: decisionRetrieve,
		},
		{
			name:         "plain chat",
			message:      "Hello there",
			wantDecision: decisionDirect,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseIntent(tt.message)
			assert.Equal(t, tt.wantDecision, got.decision)
			assert.Equal(t, tt.wantTool, got.toolName)
		})
	}
}

func TestParseIntentExtractsRoleArg(t *testing.T) {
	got := parseIntent("what skills for a backend developer?")
	require.Equal(t, decisionTool, got.decision)

	var args map[string]string
	require.NoError(t, json.Unmarshal(got.toolArgs, &args))
	assert.Equal(t, "backend developer", args["role"])
}

func TestExtractFacts(t *testing.T) {
	facts := map[string]string{}

	extractFacts("My name is Dana, I am a product manager.", facts)
	assert.Equal(t, "Dana", facts["name"])
	assert.Equal(t, "product manager", facts["role"])

	// Small talk must not clobber the role.
	extractFacts("I am fine, thanks", facts)
	assert.Equal(t, "product manager", facts["role"])
}

func TestExtractFactsRoleFromSkillsQuery(t *testing.T) {
	facts := map[string]string{}
	extractFacts("what skills for a welder?", facts)
	assert.Equal(t, "welder", facts["role"])
}

func TestWantsWrapUp(t *testing.T) {
	assert.True(t, wantsWrapUp("ok goodbye!"))
	assert.True(t, wantsWrapUp("bye"))
	assert.False(t, wantsWrapUp("tell me about behavioral questions"))
}
