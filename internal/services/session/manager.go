// Package session owns authenticated portal sessions. A Handle is scoped to one
// capture attempt and must be closed on every exit path.
package session

import (
    "context"
    "fmt"
    "log"
    "sync"
    "time"

    "github.com/google/uuid"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
)

type Manager struct {
    auth ports.Authenticator
    ttl  time.Duration
    now  func() time.Time

    mu   sync.Mutex
    live map[string]*Handle
}

func NewManager(auth ports.Authenticator, ttl time.Duration) *Manager {
    if ttl <= 0 {
        ttl = 30 * time.Minute
    }
    return &Manager{auth: auth, ttl: ttl, now: time.Now, live: map[string]*Handle{}}
}

// Handle is an authenticated session against one portal instance.
type Handle struct {
    ID           string
    LawyerID     string
    Tribunal     string
    Level        domain.InstanceLevel
    CredentialID string
    IssuedAt     time.Time
    ExpiresAt    time.Time

    m       *Manager
    key     string
    session ports.PortalSession

    mu     sync.Mutex
    closed bool
}

// Open logs in with cred. Only one live handle per (lawyer, tribunal, level) exists
// in this process; a second Open fails with domain.ErrSessionBusy.
func (m *Manager) Open(ctx context.Context, cred domain.Credential) (*Handle, error) {
    key := domain.LockKey(cred.LawyerID, cred.Tribunal, cred.Level)
    m.mu.Lock()
    if _, busy := m.live[key]; busy {
        m.mu.Unlock()
        return nil, fmt.Errorf("%w: %s", domain.ErrSessionBusy, key)
    }
    // reserve the slot while logging in
    m.live[key] = nil
    m.mu.Unlock()

    sess, err := m.auth.Login(ctx, cred)
    if err != nil {
        m.mu.Lock()
        delete(m.live, key)
        m.mu.Unlock()
        return nil, err
    }
    now := m.now()
    h := &Handle{
        ID:           uuid.NewString(),
        LawyerID:     cred.LawyerID,
        Tribunal:     domain.NormalizeTribunal(cred.Tribunal),
        Level:        cred.Level,
        CredentialID: cred.ID,
        IssuedAt:     now,
        ExpiresAt:    now.Add(m.ttl),
        m:            m,
        key:          key,
        session:      sess,
    }
    m.mu.Lock()
    m.live[key] = h
    m.mu.Unlock()
    log.Printf("session: opened %s for %s/%s lawyer=%s", h.ID, h.Tribunal, h.Level, h.LawyerID)
    return h, nil
}

// Close logs out best-effort and frees the slot. Closing twice is a no-op.
func (m *Manager) Close(ctx context.Context, h *Handle) {
    if h == nil {
        return
    }
    h.mu.Lock()
    if h.closed {
        h.mu.Unlock()
        return
    }
    h.closed = true
    h.mu.Unlock()

    if err := h.session.Logout(ctx); err != nil {
        log.Printf("session: logout %s: %v", h.ID, err)
    }
    m.mu.Lock()
    if m.live[h.key] == h {
        delete(m.live, h.key)
    }
    m.mu.Unlock()
    log.Printf("session: closed %s", h.ID)
}

// Live reports how many handles are open.
func (m *Manager) Live() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.live)
}

// FetchPage requests one page through the handle's session.
func (h *Handle) FetchPage(ctx context.Context, ct domain.CaptureType, params domain.FetchParams, cursor string) (domain.Page, error) {
    h.mu.Lock()
    closed := h.closed
    h.mu.Unlock()
    if closed {
        return domain.Page{}, domain.ErrSessionClosed
    }
    if h.m.now().After(h.ExpiresAt) {
        return domain.Page{}, domain.ErrSessionExpired
    }
    return h.session.FetchPage(ctx, ct, params, cursor)
}
