// Package session provides the in-memory store of booking drafts keyed by
// chat id.
//
// Drafts live only in process memory (a restart loses all in-flight
// sessions). The store hands out a per-session lock that the caller holds for
// the whole conversation turn, so a transport that dispatches updates
// concurrently still processes events for one chat sequentially. A janitor
// evicts drafts idle longer than the configured TTL to bound growth.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/RoomPipe/internal/clock"
	"github.com/BTreeMap/RoomPipe/internal/models"
)

// DefaultTTL is the idle lifetime of a draft before eviction.
const DefaultTTL = 30 * time.Minute

type entry struct {
	mu       sync.Mutex
	draft    *models.BookingDraft
	lastSeen time.Time
}

// Store holds the live booking drafts.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
	ttl     time.Duration
	clk     clock.Clock
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewStore creates a session store with the given idle TTL. A non-positive
// TTL falls back to DefaultTTL.
func NewStore(ttl time.Duration, clk clock.Clock) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Store{
		entries: make(map[int64]*entry),
		ttl:     ttl,
		clk:     clk,
		done:    make(chan struct{}),
	}
}

// Begin creates or replaces the draft for a chat and returns it.
func (s *Store) Begin(draft *models.BookingDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[draft.ChatID] = &entry{draft: draft, lastSeen: s.clk.Now()}
	slog.Debug("Session.Begin: draft created", "chatID", draft.ChatID)
}

// Acquire locks the session for a chat and returns its draft together with a
// release function. It returns ok=false when no live draft exists (never
// started, reset, or evicted); expired drafts are removed on access.
func (s *Store) Acquire(chatID int64) (draft *models.BookingDraft, release func(), ok bool) {
	s.mu.Lock()
	e, exists := s.entries[chatID]
	if exists && s.clk.Now().Sub(e.lastSeen) > s.ttl {
		delete(s.entries, chatID)
		slog.Debug("Session.Acquire: draft expired on access", "chatID", chatID)
		exists = false
	}
	s.mu.Unlock()
	if !exists {
		return nil, nil, false
	}

	e.mu.Lock()
	// The entry may have been ended or replaced while we waited for its lock.
	s.mu.Lock()
	current, stillThere := s.entries[chatID]
	s.mu.Unlock()
	if !stillThere || current != e {
		e.mu.Unlock()
		return nil, nil, false
	}
	e.lastSeen = s.clk.Now()
	return e.draft, e.mu.Unlock, true
}

// End removes the draft for a chat. Safe to call while holding the session
// lock returned by Acquire.
func (s *Store) End(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[chatID]; exists {
		delete(s.entries, chatID)
		slog.Debug("Session.End: draft removed", "chatID", chatID)
	}
}

// Len reports the number of live drafts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor begins periodic eviction of idle drafts. Stop shuts it down.
func (s *Store) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.evictIdle()
			}
		}
	}()
}

// Stop terminates the janitor goroutine.
func (s *Store) Stop() {
	close(s.done)
	s.wg.Wait()
}

// evictIdle removes drafts idle longer than the TTL. Entries whose session
// lock is held (a turn in flight) are skipped until the next sweep.
func (s *Store) evictIdle() {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, e := range s.entries {
		if now.Sub(e.lastSeen) <= s.ttl {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		delete(s.entries, chatID)
		e.mu.Unlock()
		slog.Info("Session janitor evicted idle draft", "chatID", chatID, "step", e.draft.Step, "idle", now.Sub(e.lastSeen).Round(time.Second))
	}
}
