// Package agent implements the interview-coach decision loop: parse the
// user's intent, gather grounding (retrieval passages or tool results), move
// the conversation through its stages, and compose an answer.
//
// The agent degrades instead of failing: a dead tool server, an empty index,
// or an unreachable LLM each narrow the answer but never surface an error to
// the caller.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DawoodTahir/MCP-Chatbot/internal/llm"
	botel "github.com/DawoodTahir/MCP-Chatbot/internal/otel"
	"github.com/DawoodTahir/MCP-Chatbot/internal/requestctx"
	"github.com/DawoodTahir/MCP-Chatbot/internal/retrieval"
	"github.com/DawoodTahir/MCP-Chatbot/internal/session"
)

var tracer = botel.Tracer("github.com/DawoodTahir/MCP-Chatbot/internal/agent")

const retrievalTopK = 3

// Retriever is the slice of the document index the agent needs.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]retrieval.Passage, error)
}

// ToolCaller is the slice of the tool gateway the agent needs.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// AudioMetrics carries speech measurements from a voice turn.
type AudioMetrics struct {
	DurationSec float64
	WPM         float64
}

// ToolCallRecord is one tool invocation surfaced in the turn result.
type ToolCallRecord struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Result is the outcome of one turn.
type Result struct {
	Answer    string
	State     *session.State
	ToolCalls []ToolCallRecord
}

// Agent orchestrates a turn. Collaborators are interfaces so tests can spy.
type Agent struct {
	provider llm.Provider
	model    string
	sessions *session.Store
	index    Retriever
	gateway  ToolCaller
}

// New creates an agent. index and gateway may be nil, in which case those
// capabilities are simply unavailable.
func New(provider llm.Provider, model string, sessions *session.Store, index Retriever, gateway ToolCaller) *Agent {
	return &Agent{
		provider: provider,
		model:    model,
		sessions: sessions,
		index:    index,
		gateway:  gateway,
	}
}

// HandleMessage runs one turn for userID. The per-user session lock is held
// for the whole turn so concurrent turns for the same user serialize.
func (a *Agent) HandleMessage(ctx context.Context, userID, message string, audio *AudioMetrics) (*Result, error) {
	ctx, span := tracer.Start(ctx, "agent.handle_message")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	state, release := a.sessions.Acquire(userID)
	defer release()

	plan := parseIntent(message)
	extractFacts(message, state.Facts)

	var passages []retrieval.Passage
	var toolCalls []ToolCallRecord

	switch plan.decision {
	case decisionRetrieve:
		passages = a.retrieve(ctx, message)
	case decisionTool:
		record := a.callTool(ctx, plan.toolName, plan.toolArgs)
		toolCalls = append(toolCalls, record)
		if record.Error == "" {
			if state.LastToolResults == nil {
				state.LastToolResults = make(map[string]string)
			}
			state.LastToolResults[record.ToolName] = string(record.Result)
		}
	}
	// Direct answers still get grounding when the user's message looks like a
	// question and an index is available.
	if plan.decision == decisionDirect && strings.Contains(message, "?") {
		passages = a.retrieve(ctx, message)
	}

	state.RetrievalContext = state.RetrievalContext[:0]
	for _, p := range passages {
		state.RetrievalContext = append(state.RetrievalContext, p.Text)
	}

	advanceStage(state, message)

	answer := a.compose(ctx, state, message, passages, toolCalls, audio)

	state.AppendTurn("user", message)
	state.AppendTurn("assistant", answer)

	span.SetAttributes(
		attribute.String("agent.stage", string(state.Stage)),
		attribute.Int("agent.tool_calls", len(toolCalls)),
		attribute.Int("agent.passages", len(passages)),
	)

	return &Result{
		Answer:    answer,
		State:     state.Snapshot(),
		ToolCalls: toolCalls,
	}, nil
}

// retrieve queries the index; failures and empty results both mean "proceed
// ungrounded".
func (a *Agent) retrieve(ctx context.Context, message string) []retrieval.Passage {
	if a.index == nil {
		return nil
	}
	passages, err := a.index.Query(ctx, message, retrievalTopK)
	if err != nil {
		log.Warn().Err(err).
			Str("user_id", requestctx.UserID(ctx)).
			Func(botel.LogTraceFields(ctx)).
			Msg("retrieval_failed")
		return nil
	}
	return passages
}

// callTool invokes the gateway and folds any failure into the record.
func (a *Agent) callTool(ctx context.Context, name string, args json.RawMessage) ToolCallRecord {
	record := ToolCallRecord{
		ToolName:  name,
		Arguments: args,
		Timestamp: time.Now().UTC(),
	}
	if a.gateway == nil {
		record.Error = "tool gateway not available"
		return record
	}

	result, err := a.gateway.CallTool(ctx, name, args)
	if err != nil {
		log.Warn().Err(err).
			Str("tool", name).
			Str("user_id", requestctx.UserID(ctx)).
			Func(botel.LogTraceFields(ctx)).
			Msg("tool_call_failed")
		record.Error = err.Error()
		return record
	}
	record.Result = result
	return record
}

// advanceStage moves the interview state machine. Wrap-up wins over the
// normal forward progression.
func advanceStage(state *session.State, message string) {
	if wantsWrapUp(message) {
		state.Stage = session.StageWrapUp
		return
	}
	switch state.Stage {
	case session.StageGreeting:
		state.Stage = session.StageEliciting
	case session.StageEliciting:
		if _, ok := state.Facts["role"]; ok || len(state.History) >= 6 {
			state.Stage = session.StageCoaching
		}
	case session.StageWrapUp:
		// A new message after goodbye reopens coaching.
		state.Stage = session.StageCoaching
	}
}

// stagePrompts describe the assistant's job per stage.
var stagePrompts = map[session.Stage]string{
	session.StageGreeting:  "Greet the user warmly, introduce yourself as an interview coach, and ask what role they are preparing for.",
	session.StageEliciting: "Ask focused questions to learn the user's target role and background before giving advice.",
	session.StageCoaching:  "Coach the user for their interview: give concrete, specific advice grounded in what you know about them.",
	session.StageWrapUp:    "Wrap up: summarize the key advice from this conversation briefly and wish them luck.",
}

// compose builds the answer with the LLM, falling back to a template when the
// provider is unreachable.
func (a *Agent) compose(ctx context.Context, state *session.State, message string, passages []retrieval.Passage, toolCalls []ToolCallRecord, audio *AudioMetrics) string {
	var sys strings.Builder
	sys.WriteString("You are an interview coach chatbot. ")
	sys.WriteString(stagePrompts[state.Stage])
	if len(state.Facts) > 0 {
		sys.WriteString("\n\nKnown about the user:")
		for k, v := range state.Facts {
			fmt.Fprintf(&sys, "\n- %s: %s", k, v)
		}
	}
	if len(passages) > 0 {
		sys.WriteString("\n\nRelevant passages from the user's documents:")
		for _, p := range passages {
			fmt.Fprintf(&sys, "\n---\n%s", p.Text)
		}
		sys.WriteString("\nGround your answer in these passages where they apply.")
	}
	for _, tc := range toolCalls {
		if tc.Error != "" {
			fmt.Fprintf(&sys, "\n\nThe %s tool failed; apologize briefly and answer from your own knowledge.", tc.ToolName)
		} else {
			fmt.Fprintf(&sys, "\n\nResult from the %s tool (use it in your answer):\n%s", tc.ToolName, string(tc.Result))
		}
	}
	if audio != nil && audio.WPM > 0 {
		fmt.Fprintf(&sys, "\n\nThe user spoke this at %.0f words per minute over %.1f seconds.", audio.WPM, audio.DurationSec)
		switch {
		case audio.WPM > 160:
			sys.WriteString(" That is fast for an interview; include one tip about slowing down.")
		case audio.WPM < 110:
			sys.WriteString(" That is slow for an interview; include one tip about keeping momentum.")
		}
	}

	messages := []llm.Message{{Role: "system", Content: sys.String()}}
	for _, turn := range state.History {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})

	if a.provider != nil {
		resp, err := a.provider.Generate(ctx, &llm.Request{
			Model:       a.model,
			Messages:    messages,
			Temperature: 0.7,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
		if err != nil {
			log.Warn().Err(err).Msg("compose_llm_failed")
		}
	}
	return a.fallbackAnswer(state, passages, toolCalls, audio)
}

// fallbackAnswer is the template reply used when no LLM is reachable. It
// still surfaces tool results and grounding so the turn is not wasted.
func (a *Agent) fallbackAnswer(state *session.State, passages []retrieval.Passage, toolCalls []ToolCallRecord, audio *AudioMetrics) string {
	var sb strings.Builder

	for _, tc := range toolCalls {
		if tc.Error != "" {
			fmt.Fprintf(&sb, "I couldn't reach the %s tool just now, but we can keep going without it. ", tc.ToolName)
		} else {
			fmt.Fprintf(&sb, "Here's what I found with %s: %s ", tc.ToolName, string(tc.Result))
		}
	}
	if len(passages) > 0 {
		fmt.Fprintf(&sb, "From your documents: %s ", passages[0].Text)
	}
	if audio != nil && audio.WPM > 160 {
		sb.WriteString("One quick note: you were speaking quite fast; try slowing down a little in the real interview. ")
	}

	if sb.Len() == 0 {
		switch state.Stage {
		case session.StageGreeting, session.StageEliciting:
			sb.WriteString("Hi! I'm your interview coach. What role are you preparing for?")
		case session.StageWrapUp:
			sb.WriteString("Good luck with your interview! Come back any time you want to practice.")
		default:
			sb.WriteString("Tell me more about the role you're preparing for and I'll tailor my advice.")
		}
	}
	return strings.TrimSpace(sb.String())
}
