// Package session holds per-user conversation state for the process lifetime.
//
// State lives only in memory: a restart starts every conversation over. The
// store hands out state under a per-user mutex so concurrent turns for the
// same user serialize instead of interleaving partial updates. Idle sessions
// are evicted by a cron sweep after the configured TTL.
package session

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Stage identifies where a conversation is in the interview flow.
type Stage string

const (
	StageGreeting  Stage = "greeting"
	StageEliciting Stage = "eliciting"
	StageCoaching  Stage = "coaching"
	StageWrapUp    Stage = "wrapup"
)

// maxHistory caps the number of turns kept per session.
const maxHistory = 20

// sweepSchedule is the cron spec for the idle-session sweep.
const sweepSchedule = "@every 10m"

// Turn is one user/assistant exchange kept in history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// State is the per-user interview state. It is mutated only by the agent
// while the per-user lock is held.
type State struct {
	UserID           string            `json:"user_id"`
	Stage            Stage             `json:"stage"`
	Facts            map[string]string `json:"facts"`
	History          []Turn            `json:"history"`
	RetrievalContext []string          `json:"retrieval_context,omitempty"`
	LastToolResults  map[string]string `json:"last_tool_results,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	LastActive       time.Time         `json:"last_active"`
}

// AppendTurn records an exchange, dropping the oldest turns past the cap.
func (s *State) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}

// Snapshot returns a deep copy safe to expose outside the lock.
func (s *State) Snapshot() *State {
	cp := *s
	cp.Facts = make(map[string]string, len(s.Facts))
	for k, v := range s.Facts {
		cp.Facts[k] = v
	}
	cp.History = append([]Turn(nil), s.History...)
	cp.RetrievalContext = append([]string(nil), s.RetrievalContext...)
	if s.LastToolResults != nil {
		cp.LastToolResults = make(map[string]string, len(s.LastToolResults))
		for k, v := range s.LastToolResults {
			cp.LastToolResults[k] = v
		}
	}
	return &cp
}

type entry struct {
	mu    sync.Mutex
	state *State
}

// Store maps user_id to conversation state with per-user locking.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	cron    *cron.Cron
}

// NewStore creates a session store evicting sessions idle longer than ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// Acquire returns the state for userID (created lazily) with its per-user
// lock held. The returned release function must be called when the turn's
// read-modify-write is complete. A concurrent Acquire for the same user
// blocks until release, so partial updates are never observed.
func (st *Store) Acquire(userID string) (*State, func()) {
	st.mu.Lock()
	e, ok := st.entries[userID]
	if !ok {
		now := time.Now()
		e = &entry{state: &State{
			UserID:     userID,
			Stage:      StageGreeting,
			Facts:      make(map[string]string),
			CreatedAt:  now,
			LastActive: now,
		}}
		st.entries[userID] = e
	}
	st.mu.Unlock()

	e.mu.Lock()
	e.state.LastActive = time.Now()
	return e.state, e.mu.Unlock
}

// Peek returns a snapshot of the state for userID, or nil if absent.
// Used by tests and diagnostics; takes the per-user lock briefly.
func (st *Store) Peek(userID string) *State {
	st.mu.Lock()
	e, ok := st.entries[userID]
	st.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// StartSweeper schedules the idle-session eviction sweep. Returns a stop
// function for shutdown.
func (st *Store) StartSweeper() (stop func()) {
	c := cron.New()
	_, err := c.AddFunc(sweepSchedule, st.sweep)
	if err != nil {
		// The schedule is a constant; this only fires if it is edited badly.
		log.Error().Err(err).Msg("session_sweep_schedule_invalid")
		return func() {}
	}
	c.Start()
	st.cron = c
	return func() { c.Stop() }
}

// sweep evicts sessions idle longer than the TTL. An entry whose lock is
// currently held (turn in flight) is skipped and caught on a later sweep.
func (st *Store) sweep() {
	cutoff := time.Now().Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for userID, e := range st.entries {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.state.LastActive.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(st.entries, userID)
			evicted++
		}
	}
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Int("remaining", len(st.entries)).Msg("session_sweep_completed")
	}
}
