package session

import (
	"context"
	"sync"
	"time"

	"github.com/shoppick/server/internal/agent/model"
	logx "github.com/shoppick/server/pkg/logger"
)

type memoryEntry struct {
	mu   sync.Mutex
	sess *model.Session
}

// Memory is an in-process Store with idle-TTL eviction. The map lock only
// guards lookup and insertion; turn appends serialize on a per-session
// mutex so distinct sessions never contend.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	ttl      time.Duration

	sweepOnce sync.Once
	sweepDone chan struct{}
}

// NewMemory creates an in-memory store. ttl <= 0 means a 30 minute idle TTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Memory{
		sessions:  make(map[string]*memoryEntry),
		ttl:       ttl,
		sweepDone: make(chan struct{}),
	}
}

// StartSweeper launches a background goroutine that evicts idle sessions
// every interval. Stop it with Close.
func (m *Memory) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	m.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-m.sweepDone:
					return
				case <-ticker.C:
					if n, _ := m.EvictExpired(context.Background()); n > 0 {
						logx.Debug().Int("evicted", n).Msg("Swept expired sessions")
					}
				}
			}
		}()
	})
}

// Close stops the background sweeper, if one was started.
func (m *Memory) Close() {
	select {
	case <-m.sweepDone:
	default:
		close(m.sweepDone)
	}
}

func (m *Memory) GetOrCreate(_ context.Context, id string) (*model.Session, error) {
	if id != "" {
		if e := m.lookup(id); e != nil {
			e.mu.Lock()
			defer e.mu.Unlock()
			if !m.expired(e.sess) {
				return snapshot(e.sess), nil
			}
			// expired ids fall through and get a fresh session
		}
	}

	sess := &model.Session{
		ID:           NewID(),
		CreatedAt:    time.Now().UTC(),
		LastActiveAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = &memoryEntry{sess: sess}
	m.mu.Unlock()

	logx.Debug().Str("session_id", sess.ID).Msg("Created session")
	return snapshot(sess), nil
}

func (m *Memory) AppendTurn(_ context.Context, id string, turn model.Turn) error {
	e := m.lookup(id)
	if e == nil {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	e.sess.Turns = append(e.sess.Turns, turn)
	if turn.Clarification {
		e.sess.ClarifyCount++
	}
	e.sess.LastActiveAt = time.Now().UTC()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) EvictExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, e := range m.sessions {
		e.mu.Lock()
		dead := m.expired(e.sess)
		e.mu.Unlock()
		if dead {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted, nil
}

func (m *Memory) ActiveCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.sessions {
		e.mu.Lock()
		live := !m.expired(e.sess)
		e.mu.Unlock()
		if live {
			n++
		}
	}
	return n, nil
}

func (m *Memory) lookup(id string) *memoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *Memory) expired(s *model.Session) bool {
	return time.Since(s.LastActiveAt) > m.ttl
}

// snapshot copies the session so callers cannot mutate stored state.
func snapshot(s *model.Session) *model.Session {
	cp := *s
	cp.Turns = make([]model.Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return &cp
}
