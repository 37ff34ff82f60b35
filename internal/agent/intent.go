package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// decision is what the agent chose to do with a message before composing.
type decision int

const (
	decisionDirect decision = iota
	decisionRetrieve
	decisionTool
)

// intent is the parsed plan for one turn.
type intent struct {
	decision decision
	toolName string
	toolArgs json.RawMessage
}

var (
	skillsRe   = regexp.MustCompile(`(?i)(?:what\s+)?skills?\s+(?:do(?:es)?\s+\w+\s+need\s+)?(?:for|of|as)\s+(?:an?\s+)?([\w\s-]+?)(?:\?|$|\.)`)
	roleRe     = regexp.MustCompile(`(?i)\bi(?:'m| am)\s+(?:an?\s+)?([\w\s-]+?)(?:\.|,|$)`)
	nameRe     = regexp.MustCompile(`(?i)\bmy name is\s+([\w\s-]+?)(?:\.|,|$)`)
	notifyRe   = regexp.MustCompile(`(?i)\b(?:notify|message|text)\s+(?:the\s+)?(?:owner|me|user)\b`)
	attitudeRe = regexp.MustCompile(`(?i)\b(?:attitude|soft skills?|mindset)\b`)
	docRe      = regexp.MustCompile(`(?i)\b(?:according to|in the document|from my (?:resume|cv|notes)|the uploaded)\b`)
	wrapUpRe   = regexp.MustCompile(`(?i)\b(?:goodbye|bye|that'?s all|thanks,? (?:that'?s|i'?m) (?:all|done))\b`)
)

// parseIntent picks the plan for a message. Tool intents win over retrieval,
// retrieval over direct; ambiguity falls back to a direct answer because a
// wrong tool call costs more than a plain reply.
func parseIntent(message string) intent {
	if m := skillsRe.FindStringSubmatch(message); m != nil {
		args, _ := json.Marshal(map[string]string{"role": strings.TrimSpace(m[1])})
		return intent{decision: decisionTool, toolName: "fetch_role_skills", toolArgs: args}
	}
	if attitudeRe.MatchString(message) {
		role := ""
		if m := roleRe.FindStringSubmatch(message); m != nil {
			role = strings.TrimSpace(m[1])
		}
		args, _ := json.Marshal(map[string]string{"role": role})
		return intent{decision: decisionTool, toolName: "attitude_tips", toolArgs: args}
	}
	if notifyRe.MatchString(message) {
		args, _ := json.Marshal(map[string]string{"message": strings.TrimSpace(message)})
		return intent{decision: decisionTool, toolName: "notify_user", toolArgs: args}
	}
	if docRe.MatchString(message) {
		return intent{decision: decisionRetrieve}
	}
	return intent{decision: decisionDirect}
}

// extractFacts pulls durable facts out of a message into the session.
func extractFacts(message string, facts map[string]string) {
	if m := nameRe.FindStringSubmatch(message); m != nil {
		facts["name"] = strings.TrimSpace(m[1])
	}
	if m := roleRe.FindStringSubmatch(message); m != nil {
		role := strings.ToLower(strings.TrimSpace(m[1]))
		// "I am fine" and friends are not roles.
		if role != "" && !stopRoles[role] {
			facts["role"] = role
		}
	}
	if m := skillsRe.FindStringSubmatch(message); m != nil {
		if _, has := facts["role"]; !has {
			facts["role"] = strings.ToLower(strings.TrimSpace(m[1]))
		}
	}
}

var stopRoles = map[string]bool{
	"fine": true, "good": true, "ok": true, "okay": true, "great": true,
	"sorry": true, "here": true, "ready": true, "done": true, "sure": true,
	"not sure": true,
}

// wantsWrapUp reports whether the user is closing the conversation.
func wantsWrapUp(message string) bool {
	return wrapUpRe.MatchString(message)
}
