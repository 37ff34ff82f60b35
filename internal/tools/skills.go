package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/DawoodTahir/MCP-Chatbot/internal/llm"
)

const (
	escoAPIBase    = "https://ec.europa.eu/esco/api"
	escoTimeout    = 15 * time.Second
	maxSkillLabels = 20
)

// SkillsTool resolves an occupation title to its essential and optional
// skills via the ESCO taxonomy, with labels rewritten into plain language
// by the LLM when one is available.
type SkillsTool struct {
	apiBase    string
	httpClient *http.Client
	provider   llm.Provider
	model      string
}

// NewSkillsTool creates the fetch_role_skills tool. provider may be nil, in
// which case raw ESCO labels are returned unrewritten.
func NewSkillsTool(provider llm.Provider, model string) *SkillsTool {
	return &SkillsTool{
		apiBase:    escoAPIBase,
		httpClient: &http.Client{Timeout: escoTimeout},
		provider:   provider,
		model:      model,
	}
}

// NewSkillsToolWithBase is used in tests to point at a mock ESCO server.
func NewSkillsToolWithBase(apiBase string, provider llm.Provider, model string) *SkillsTool {
	return &SkillsTool{
		apiBase:    apiBase,
		httpClient: &http.Client{Timeout: escoTimeout},
		provider:   provider,
		model:      model,
	}
}

// Name implements Tool.
func (t *SkillsTool) Name() string { return "fetch_role_skills" }

// Description implements Tool.
func (t *SkillsTool) Description() string {
	return "Look up the essential and optional skills for a job role"
}

// InputSchema implements Tool.
func (t *SkillsTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"role": {"type": "string", "description": "Job title to look up, e.g. 'data engineer'"},
			"language": {"type": "string", "description": "Two-letter language code, defaults to 'en'"}
		},
		"required": ["role"]
	}`)
}

type skillsParams struct {
	Role     string `json:"role"`
	Language string `json:"language"`
}

// skillsResult is the tool's JSON output.
type skillsResult struct {
	Role      string       `json:"role"`
	MatchedAs string       `json:"matched_as,omitempty"`
	Essential []skillLabel `json:"essential"`
	Optional  []skillLabel `json:"optional"`
}

type skillLabel struct {
	Original string `json:"original"`
	Label    string `json:"label"`
}

// Execute looks the role up and returns its skill lists.
func (t *SkillsTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p skillsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid fetch_role_skills params: %w", err)
		}
	}
	if strings.TrimSpace(p.Role) == "" {
		return nil, fmt.Errorf("fetch_role_skills: role is required")
	}
	if p.Language == "" {
		p.Language = "en"
	}

	occURI, matched, err := t.searchOccupation(ctx, p.Role, p.Language)
	if err != nil {
		return nil, err
	}
	if occURI == "" {
		return nil, fmt.Errorf("fetch_role_skills: no occupation found for %q", p.Role)
	}

	essential, optional, err := t.fetchSkills(ctx, occURI, p.Language)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("role", p.Role).
		Int("essential", len(essential)).
		Int("optional", len(optional)).
		Msg("role_skills_fetched")

	result := skillsResult{
		Role:      p.Role,
		MatchedAs: matched,
		Essential: t.rewrite(ctx, essential),
		Optional:  t.rewrite(ctx, optional),
	}
	return json.Marshal(result)
}

// searchOccupation resolves a free-text role to an ESCO occupation URI.
func (t *SkillsTool) searchOccupation(ctx context.Context, role, language string) (uri, title string, err error) {
	q := url.Values{}
	q.Set("text", role)
	q.Set("type", "occupation")
	q.Set("language", language)
	q.Set("limit", "10")

	var out struct {
		Embedded struct {
			Results []struct {
				URI   string `json:"uri"`
				Title string `json:"title"`
			} `json:"results"`
		} `json:"_embedded"`
	}
	if err := t.getJSON(ctx, t.apiBase+"/search?"+q.Encode(), &out); err != nil {
		return "", "", fmt.Errorf("esco occupation search: %w", err)
	}
	if len(out.Embedded.Results) == 0 {
		return "", "", nil
	}
	return out.Embedded.Results[0].URI, out.Embedded.Results[0].Title, nil
}

// escoLink is a skill reference in an occupation resource. Titles come back
// either as a plain string or as a per-language map depending on the endpoint.
type escoLink struct {
	Title json.RawMessage `json:"title"`
}

func (l escoLink) title(language string) string {
	var s string
	if err := json.Unmarshal(l.Title, &s); err == nil {
		return s
	}
	var m map[string]string
	if err := json.Unmarshal(l.Title, &m); err == nil {
		if v, ok := m[language]; ok {
			return v
		}
		for _, v := range m {
			return v
		}
	}
	return ""
}

// fetchSkills loads the occupation resource and extracts its skill labels.
func (t *SkillsTool) fetchSkills(ctx context.Context, occURI, language string) (essential, optional []string, err error) {
	q := url.Values{}
	q.Set("uri", occURI)
	q.Set("language", language)

	var out struct {
		Links struct {
			HasEssentialSkill []escoLink `json:"hasEssentialSkill"`
			HasOptionalSkill  []escoLink `json:"hasOptionalSkill"`
		} `json:"_links"`
	}
	if err := t.getJSON(ctx, t.apiBase+"/resource/occupation?"+q.Encode(), &out); err != nil {
		return nil, nil, fmt.Errorf("esco occupation resource: %w", err)
	}

	collect := func(links []escoLink) []string {
		seen := make(map[string]struct{})
		var labels []string
		for _, l := range links {
			title := strings.TrimSpace(l.title(language))
			if title == "" {
				continue
			}
			key := strings.ToLower(title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			labels = append(labels, title)
			if len(labels) >= maxSkillLabels {
				break
			}
		}
		sort.Strings(labels)
		return labels
	}
	return collect(out.Links.HasEssentialSkill), collect(out.Links.HasOptionalSkill), nil
}

func (t *SkillsTool) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// rewrite asks the LLM to turn taxonomy labels into plain, resume-friendly
// phrasing. Any failure falls back to the raw labels.
func (t *SkillsTool) rewrite(ctx context.Context, labels []string) []skillLabel {
	out := make([]skillLabel, len(labels))
	for i, l := range labels {
		out[i] = skillLabel{Original: l, Label: l}
	}
	if t.provider == nil || len(labels) == 0 {
		return out
	}

	prompt := "Rewrite each of these skill taxonomy labels as a short, plain-language phrase a job seeker would put on a resume. " +
		"Respond with JSON of the form {\"skills\": [{\"original\": \"...\", \"label\": \"...\"}]} covering every input.\n\n" +
		strings.Join(labels, "\n")

	resp, err := t.provider.Generate(ctx, &llm.Request{
		Model:       t.model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.4,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("skill_label_rewrite_failed")
		return out
	}

	var parsed struct {
		Skills []skillLabel `json:"skills"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		log.Warn().Err(err).Msg("skill_label_rewrite_unparseable")
		return out
	}

	byOriginal := make(map[string]string, len(parsed.Skills))
	for _, s := range parsed.Skills {
		if s.Original != "" && s.Label != "" {
			byOriginal[strings.ToLower(s.Original)] = s.Label
		}
	}
	for i := range out {
		if label, ok := byOriginal[strings.ToLower(out[i].Original)]; ok {
			out[i].Label = label
		}
	}
	return out
}

// AttitudeTool produces soft-skill and attitude tips for a role using the LLM.
type AttitudeTool struct {
	provider llm.Provider
	model    string
}

// NewAttitudeTool creates the attitude_tips tool.
func NewAttitudeTool(provider llm.Provider, model string) *AttitudeTool {
	return &AttitudeTool{provider: provider, model: model}
}

// Name implements Tool.
func (t *AttitudeTool) Name() string { return "attitude_tips" }

// Description implements Tool.
func (t *AttitudeTool) Description() string {
	return "Suggest workplace attitude and soft-skill tips for a job role"
}

// InputSchema implements Tool.
func (t *AttitudeTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"role": {"type": "string", "description": "Job title to advise on"}
		},
		"required": ["role"]
	}`)
}

type attitudeParams struct {
	Role string `json:"role"`
}

// Execute asks the LLM for tips. A provider failure yields an empty tip list
// rather than a tool error.
func (t *AttitudeTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p attitudeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid attitude_tips params: %w", err)
		}
	}
	if strings.TrimSpace(p.Role) == "" {
		return nil, fmt.Errorf("attitude_tips: role is required")
	}

	tips := []string{}
	if t.provider != nil {
		prompt := fmt.Sprintf(
			"List 5 concise workplace attitude and soft-skill tips for someone working as a %s. "+
				"Respond with JSON of the form {\"tips\": [\"...\"]}.", p.Role)
		resp, err := t.provider.Generate(ctx, &llm.Request{
			Model:       t.model,
			Messages:    []llm.Message{{Role: "user", Content: prompt}},
			Temperature: 0.4,
			MaxTokens:   400,
			JSONMode:    true,
		})
		if err != nil {
			log.Warn().Err(err).Str("role", p.Role).Msg("attitude_tips_failed")
		} else {
			var parsed struct {
				Tips []string `json:"tips"`
			}
			if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
				log.Warn().Err(err).Msg("attitude_tips_unparseable")
			} else {
				tips = parsed.Tips
			}
		}
	}

	return json.Marshal(map[string]any{"role": p.Role, "tips": tips})
}
