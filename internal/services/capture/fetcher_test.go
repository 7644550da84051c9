package capture

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "juscapture/internal/domain"
)

// scriptedPager serves pages of size records until total, failing on the pages listed in fail.
type scriptedPager struct {
    mu       sync.Mutex
    size     int
    total    int
    fail     map[int]int // page -> remaining failures, -1 for always
    failWith error
    calls    int
    block    map[int]bool // page -> wait for ctx
    bad      map[int]bool // record index -> unreadable record
    onPage   func(page int)
}

func (p *scriptedPager) FetchPage(ctx context.Context, ct domain.CaptureType, params domain.FetchParams, cursor string) (domain.Page, error) {
    p.mu.Lock()
    p.calls++
    page := 1
    if cursor != "" {
        fmt.Sscanf(cursor, "%d", &page)
    }
    if n, ok := p.fail[page]; ok && n != 0 {
        if n > 0 {
            p.fail[page] = n - 1
        }
        p.mu.Unlock()
        return domain.Page{}, p.failWith
    }
    block, onPage := p.block[page], p.onPage
    p.mu.Unlock()
    if onPage != nil {
        onPage(page)
    }
    if block {
        <-ctx.Done()
        return domain.Page{}, ctx.Err()
    }

    first := (page - 1) * p.size
    var recs []json.RawMessage
    for i := first; i < first+p.size && i < p.total; i++ {
        if p.bad[i] {
            recs = append(recs, json.RawMessage(fmt.Sprintf(`{"classe":"sem numero","seq":%d}`, i)))
            continue
        }
        recs = append(recs, json.RawMessage(fmt.Sprintf(`{"numeroProcesso":"%07d-00.2024.5.02.0001","seq":%d}`, i+1, i)))
    }
    next := ""
    if first+p.size < p.total {
        next = fmt.Sprint(page + 1)
    }
    return domain.Page{Records: recs, Next: next, Reported: p.total}, nil
}

func (p *scriptedPager) Calls() int {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.calls
}

func drain(t *testing.T, s *Stream) []domain.RawRecord {
    t.Helper()
    var out []domain.RawRecord
    for s.Next(context.Background()) {
        out = append(out, s.Record())
    }
    return out
}

var transient = &domain.TransportError{Op: "fetch", Status: 502, Err: errors.New("bad gateway")}

func TestFetchAllPages(t *testing.T) {
    pager := &scriptedPager{size: 20, total: 50}
    s := NewFetcher(FetcherConfig{RetryBase: time.Millisecond}).Fetch(pager, domain.CaptureDocket, domain.FetchParams{PageSize: 20})
    if pager.Calls() != 0 {
        t.Fatal("fetch requested a page before Next")
    }
    recs := drain(t, s)
    if len(recs) != 50 || s.Err() != nil || !s.Complete() || s.Pages() != 3 || s.Reported() != 50 {
        t.Fatalf("records=%d err=%v complete=%v pages=%d", len(recs), s.Err(), s.Complete(), s.Pages())
    }
    if recs[49].Page != 3 {
        t.Fatalf("page not tracked: %+v", recs[49])
    }
    if s.Next(context.Background()) {
        t.Fatal("stream restarted after the end")
    }
}

func TestFetchRetriesTransientFailure(t *testing.T) {
    pager := &scriptedPager{size: 20, total: 40, fail: map[int]int{2: 2}, failWith: transient}
    s := NewFetcher(FetcherConfig{PageRetries: 3, RetryBase: time.Millisecond}).Fetch(pager, domain.CaptureDocket, domain.FetchParams{})
    if recs := drain(t, s); len(recs) != 40 || s.Err() != nil || !s.Complete() {
        t.Fatalf("records=%d err=%v", len(recs), s.Err())
    }
    if pager.Calls() != 4 {
        t.Fatalf("expected 4 calls, got %d", pager.Calls())
    }
}

func TestFetchStopsPartiallyAfterRetries(t *testing.T) {
    pager := &scriptedPager{size: 20, total: 120, fail: map[int]int{3: -1}, failWith: transient}
    s := NewFetcher(FetcherConfig{PageRetries: 2, RetryBase: time.Millisecond}).Fetch(pager, domain.CaptureDocket, domain.FetchParams{})
    recs := drain(t, s)
    if len(recs) != 40 {
        t.Fatalf("expected the 40 records of the first two pages, got %d", len(recs))
    }
    var pe *domain.PartialFetchError
    if !errors.As(s.Err(), &pe) || pe.Fetched != 40 || pe.Reported != 120 || pe.Pages != 2 {
        t.Fatalf("expected a partial fetch error, got %v", s.Err())
    }
    if s.Complete() {
        t.Fatal("partial stream reported complete")
    }
}

func TestFetchDoesNotRetryExpiredSession(t *testing.T) {
    expired := &domain.TransportError{Op: "fetch", Status: 401, Err: domain.ErrSessionExpired}
    pager := &scriptedPager{size: 20, total: 40, fail: map[int]int{1: -1}, failWith: expired}
    s := NewFetcher(FetcherConfig{PageRetries: 5, RetryBase: time.Millisecond}).Fetch(pager, domain.CaptureDocket, domain.FetchParams{})
    if recs := drain(t, s); len(recs) != 0 {
        t.Fatalf("records %d", len(recs))
    }
    if !errors.Is(s.Err(), domain.ErrSessionExpired) || pager.Calls() != 1 {
        t.Fatalf("err=%v calls=%d", s.Err(), pager.Calls())
    }
}

func TestFetchDeadlineIsNotPartial(t *testing.T) {
    pager := &scriptedPager{size: 20, total: 60, block: map[int]bool{2: true}}
    s := NewFetcher(FetcherConfig{}).Fetch(pager, domain.CaptureDocket, domain.FetchParams{})
    ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
    defer cancel()
    n := 0
    for s.Next(ctx) {
        n++
    }
    if n != 20 || !errors.Is(s.Err(), context.DeadlineExceeded) {
        t.Fatalf("records=%d err=%v", n, s.Err())
    }
}

// stuckPager answers every cursor with one record and the same next cursor.
type stuckPager struct {
    calls int
}

func (p *stuckPager) FetchPage(ctx context.Context, ct domain.CaptureType, params domain.FetchParams, cursor string) (domain.Page, error) {
    p.calls++
    rec := json.RawMessage(fmt.Sprintf(`{"numeroProcesso":"%07d-00.2024.5.02.0001"}`, p.calls))
    return domain.Page{Records: []json.RawMessage{rec}, Next: "2", Reported: 1}, nil
}

func TestFetchStopsOnRepeatedCursor(t *testing.T) {
    p := &stuckPager{}
    s := NewFetcher(FetcherConfig{}).Fetch(p, domain.CaptureDocket, domain.FetchParams{})
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()

    n := 0
    for s.Next(ctx) {
        n++
    }
    if p.calls != 2 || n != 2 || s.Count() != 2 || s.Pages() != 2 {
        t.Fatalf("calls=%d yielded=%d count=%d pages=%d", p.calls, n, s.Count(), s.Pages())
    }
    var pe *domain.PartialFetchError
    if !errors.As(s.Err(), &pe) || !errors.Is(s.Err(), ErrCursorRepeated) || pe.Fetched != 2 {
        t.Fatalf("err = %v", s.Err())
    }
    if s.Complete() || s.Next(ctx) || p.calls != 2 {
        t.Fatal("stream must stay finished")
    }
}
