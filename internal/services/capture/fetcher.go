package capture

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/sethvargo/go-retry"

    "juscapture/internal/domain"
)

// ErrCursorRepeated ends a stream whose portal pointed back at a page already requested.
var ErrCursorRepeated = errors.New("portal repeated a page cursor")

// Pager is anything that can request one portal page; *session.Handle is one.
type Pager interface {
    FetchPage(ctx context.Context, ct domain.CaptureType, params domain.FetchParams, cursor string) (domain.Page, error)
}

type FetcherConfig struct {
    PageRetries int
    RetryBase   time.Duration
}

type Fetcher struct {
    retries uint64
    base    time.Duration
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
    base := cfg.RetryBase
    if base <= 0 {
        base = 200 * time.Millisecond
    }
    retries := 0
    if cfg.PageRetries > 0 {
        retries = cfg.PageRetries
    }
    return &Fetcher{retries: uint64(retries), base: base}
}

// Fetch returns a lazy stream over every page of a capture type. Nothing is
// requested until the first Next.
func (f *Fetcher) Fetch(p Pager, ct domain.CaptureType, params domain.FetchParams) *Stream {
    return &Stream{f: f, pager: p, ct: ct, params: params}
}

// Stream yields records in portal order. It is single-use: once Next returns false it
// keeps returning false, and Err reports why the sequence ended.
type Stream struct {
    f      *Fetcher
    pager  Pager
    ct     domain.CaptureType
    params domain.FetchParams

    cursor   string
    seen     map[string]bool
    loop     error
    started  bool
    done     bool
    buf      []domain.RawRecord
    cur      domain.RawRecord
    count    int
    reported int
    pages    int
    err      error
}

func (s *Stream) Next(ctx context.Context) bool {
    for len(s.buf) == 0 {
        if s.done {
            return false
        }
        if s.started && s.cursor == "" {
            if s.loop != nil {
                s.finish(s.loop)
                return false
            }
            s.done = true
            return false
        }
        s.started = true
        if s.seen == nil {
            s.seen = map[string]bool{}
        }
        s.seen[s.cursor] = true
        page, err := s.fetch(ctx)
        if err != nil {
            s.finish(err)
            return false
        }
        s.pages++
        if page.Reported > 0 {
            s.reported = page.Reported
        }
        if len(page.Records) == 0 {
            s.done = true
            return false
        }
        for _, r := range page.Records {
            s.buf = append(s.buf, domain.RawRecord{Page: s.pages, Data: r})
        }
        s.cursor = page.Next
        if s.cursor != "" && s.seen[s.cursor] {
            // a cursor pointing back at a requested page would never end
            s.loop = fmt.Errorf("%w: %q after page %d", ErrCursorRepeated, s.cursor, s.pages)
            s.cursor = ""
        }
    }
    s.cur = s.buf[0]
    s.buf = s.buf[1:]
    s.count++
    return true
}

func (s *Stream) fetch(ctx context.Context) (domain.Page, error) {
    var page domain.Page
    b := retry.WithMaxRetries(s.f.retries, retry.NewExponential(s.f.base))
    err := retry.Do(ctx, b, func(ctx context.Context) error {
        p, err := s.pager.FetchPage(ctx, s.ct, s.params, s.cursor)
        if err != nil {
            var te *domain.TransportError
            if errors.As(err, &te) && !errors.Is(err, domain.ErrSessionExpired) {
                return retry.RetryableError(err)
            }
            return err
        }
        page = p
        return nil
    })
    return page, err
}

func (s *Stream) finish(err error) {
    s.done = true
    if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
        s.err = err
        return
    }
    if s.count > 0 {
        s.err = &domain.PartialFetchError{Fetched: s.count, Reported: s.reported, Pages: s.pages, Err: err}
        return
    }
    s.err = err
}

func (s *Stream) Record() domain.RawRecord { return s.cur }
func (s *Stream) Err() error               { return s.err }
func (s *Stream) Count() int               { return s.count }
func (s *Stream) Reported() int            { return s.reported }
func (s *Stream) Pages() int               { return s.pages }

// Complete reports whether the stream ended on an empty cursor or page.
func (s *Stream) Complete() bool { return s.done && s.err == nil }
