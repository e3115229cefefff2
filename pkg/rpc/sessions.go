package rpc

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/mr-tron/base58"
)

var (
	errSessionLimit   = errors.New("session limit reached")
	errSessionUnknown = errors.New("session not found")
)

// session is one interactive machine. mu serialises every call on it.
type session struct {
	id        string
	hash      types.ImageHash
	createdAt time.Time

	mu sync.Mutex
	m  *intcode.Machine
}

// sessionTable holds the open sessions.
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*session
	limit    int
	nextID   int
}

func newSessionTable(limit int) *sessionTable {
	return &sessionTable{
		sessions: make(map[string]*session),
		limit:    limit,
	}
}

// open registers a machine built by newMachine under a fresh random id.
func (t *sessionTable) open(hash types.ImageHash, newMachine func(id int) *intcode.Machine) (*session, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && len(t.sessions) >= t.limit {
		return nil, errSessionLimit
	}
	t.nextID++
	s := &session{
		id:        base58.Encode(raw[:]),
		hash:      hash,
		createdAt: time.Now().UTC(),
		m:         newMachine(t.nextID),
	}
	t.sessions[s.id] = s
	return s, nil
}

func (t *sessionTable) get(id string) (*session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, errSessionUnknown
	}
	return s, nil
}

func (t *sessionTable) close(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[id]; !ok {
		return errSessionUnknown
	}
	delete(t.sessions, id)
	return nil
}

func (t *sessionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
