package database

import (
	"sync"
	"time"

	"isotope/internal/model"
)

// DefaultAuditCapacity bounds the in-memory audit log.
const DefaultAuditCapacity = 1000

// Memory keeps sessions and a bounded audit log in process memory. It is
// used when no database DSN is configured; everything is lost on restart.
type Memory struct {
	mu       sync.Mutex
	secret   string
	sessions map[string]model.Session
	audit    []model.AuditEntry // ring buffer
	next     int
	nextID   int64
	now      func() time.Time
}

func NewMemory(auditCapacity int) *Memory {
	if auditCapacity <= 0 {
		auditCapacity = DefaultAuditCapacity
	}
	return &Memory{
		sessions: make(map[string]model.Session),
		audit:    make([]model.AuditEntry, 0, auditCapacity),
		now:      time.Now,
	}
}

func (m *Memory) EnsureSessionSecret() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secret == "" {
		s, err := newSecret()
		if err != nil {
			return "", err
		}
		m.secret = s
	}
	return m.secret, nil
}

func (m *Memory) CreateSession(s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.sessions[s.ID] = c
	return nil
}

func (m *Memory) GetSession(id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) TouchSession(id string, verifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.VerifiedAt = verifiedAt
		m.sessions[id] = s
	}
	return nil
}

func (m *Memory) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *Memory) DeleteSessionsByToken(apiToken string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.APIToken == apiToken {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) PurgeExpiredSessions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *Memory) LogAudit(entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	if len(m.audit) < cap(m.audit) {
		m.audit = append(m.audit, entry)
		return nil
	}
	m.audit[m.next] = entry
	m.next = (m.next + 1) % len(m.audit)
	return nil
}

// ListAuditLog returns entries newest first.
func (m *Memory) ListAuditLog(limit, offset int) ([]model.AuditEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.audit)
	var out []model.AuditEntry
	for i := offset; i < total && len(out) < limit; i++ {
		// newest is just before m.next
		idx := (m.next - 1 - i + 2*total) % total
		out = append(out, m.audit[idx])
	}
	return out, total, nil
}
