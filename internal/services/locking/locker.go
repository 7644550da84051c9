// Package locking provides the expiring per-tuple lock that serializes captures and
// repersists against one portal identity across processes.
package locking

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

type Locker struct {
    repo ports.LockRepository
    ttl  time.Duration
    poll time.Duration
}

func New(repo ports.LockRepository, ttl time.Duration) *Locker {
    if ttl <= 0 {
        ttl = 2 * time.Minute
    }
    poll := ttl / 20
    if poll < 50*time.Millisecond {
        poll = 50 * time.Millisecond
    }
    if poll > time.Second {
        poll = time.Second
    }
    return &Locker{repo: repo, ttl: ttl, poll: poll}
}

// WithPoll overrides the acquisition poll interval.
func (l *Locker) WithPoll(d time.Duration) *Locker {
    if d > 0 {
        l.poll = d
    }
    return l
}

// Acquire blocks until the lock is held or ctx is done. A lock whose holder stopped
// refreshing it is taken over once its deadline passes.
func (l *Locker) Acquire(ctx context.Context, key string) (ports.Lease, error) {
    owner := uuid.NewString()
    ticker := time.NewTicker(l.poll)
    defer ticker.Stop()
    for {
        ok, err := l.repo.TryAcquire(ctx, key, owner, l.ttl)
        if err != nil && ctx.Err() == nil {
            return nil, fmt.Errorf("acquire %s: %w", key, err)
        }
        if ok {
            return l.startLease(key, owner), nil
        }
        select {
        case <-ctx.Done():
            return nil, fmt.Errorf("%w: %s: %v", domain.ErrLockTimeout, key, ctx.Err())
        case <-ticker.C:
        }
    }
}

type lease struct {
    repo  ports.LockRepository
    key   string
    owner string
    ttl   time.Duration

    stop     chan struct{}
    lost     chan struct{}
    done     chan struct{}
    once     sync.Once
    lostOnce sync.Once
}

func (l *Locker) startLease(key, owner string) *lease {
    ls := &lease{
        repo:  l.repo,
        key:   key,
        owner: owner,
        ttl:   l.ttl,
        stop:  make(chan struct{}),
        lost:  make(chan struct{}),
        done:  make(chan struct{}),
    }
    go ls.refresh()
    return ls
}

func (ls *lease) refresh() {
    defer close(ls.done)
    ticker := time.NewTicker(ls.ttl / 3)
    defer ticker.Stop()
    for {
        select {
        case <-ls.stop:
            return
        case <-ticker.C:
            ctx, cancel := context.WithTimeout(context.Background(), ls.ttl/3)
            ok, err := ls.repo.Refresh(ctx, ls.key, ls.owner, ls.ttl)
            cancel()
            if err != nil {
                log.Printf("locking: refresh %s: %v", ls.key, err)
                continue
            }
            if !ok {
                log.Printf("locking: lock %s taken over", ls.key)
                ls.lostOnce.Do(func() { close(ls.lost) })
                return
            }
        }
    }
}

func (ls *lease) Lost() <-chan struct{} { return ls.lost }

// Release stops refreshing and deletes the lock row. Calling it again is a no-op.
func (ls *lease) Release(ctx context.Context) error {
    var err error
    ls.once.Do(func() {
        close(ls.stop)
        <-ls.done
        err = ls.repo.Release(ctx, ls.key, ls.owner)
    })
    return err
}

// MemoryStore is a LockRepository for single-process deployments and tests.
type MemoryStore struct {
    mu    sync.Mutex
    locks map[string]memLock
    now   func() time.Time
}

type memLock struct {
    owner   string
    expires time.Time
}

func NewMemoryStore() *MemoryStore {
    return &MemoryStore{locks: map[string]memLock{}, now: time.Now}
}

func (m *MemoryStore) TryAcquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := m.now()
    if cur, ok := m.locks[key]; ok && cur.owner != owner && now.Before(cur.expires) {
        return false, nil
    }
    m.locks[key] = memLock{owner: owner, expires: now.Add(ttl)}
    return true, nil
}

func (m *MemoryStore) Refresh(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    cur, ok := m.locks[key]
    if !ok || cur.owner != owner {
        return false, nil
    }
    m.locks[key] = memLock{owner: owner, expires: m.now().Add(ttl)}
    return true, nil
}

func (m *MemoryStore) Release(_ context.Context, key, owner string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if cur, ok := m.locks[key]; ok && cur.owner == owner {
        delete(m.locks, key)
    }
    return nil
}

// Held reports whether key is currently locked.
func (m *MemoryStore) Held(key string) bool {
    m.mu.Lock()
    defer m.mu.Unlock()
    cur, ok := m.locks[key]
    return ok && m.now().Before(cur.expires)
}
