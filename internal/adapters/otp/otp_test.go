package otp

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    "github.com/pquerna/otp/totp"

    "juscapture/internal/domain"
)

// RFC 6238 test seed ("12345678901234567890" in base32).
const seed = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTPSourceGeneratesValidCodes(t *testing.T) {
    now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
    var slept time.Duration
    src := &TOTPSource{
        now:   func() time.Time { return now },
        sleep: func(_ context.Context, d time.Duration) error { slept = d; return nil },
    }
    code, err := src.Code(context.Background(), domain.Challenge{Attempt: 1, Seed: seed})
    if err != nil {
        t.Fatalf("code: %v", err)
    }
    if ok, _ := totp.ValidateCustom(code, seed, now, totpOpts); !ok {
        t.Fatalf("code %s does not validate", code)
    }
    if slept != 0 {
        t.Fatal("first attempt should not wait")
    }

    retryCode, err := src.Code(context.Background(), domain.Challenge{Attempt: 2, Seed: seed})
    if err != nil {
        t.Fatalf("retry code: %v", err)
    }
    if slept != 20*time.Second {
        t.Fatalf("expected to wait for the next step, waited %v", slept)
    }
    if ok, _ := totp.ValidateCustom(retryCode, seed, now.Add(slept), totpOpts); !ok {
        t.Fatal("retry code is not valid for the next step")
    }
}

func TestTOTPSourceWithoutSeed(t *testing.T) {
    if _, err := NewTOTPSource().Code(context.Background(), domain.Challenge{Attempt: 1}); !errors.Is(err, domain.ErrNoCode) {
        t.Fatalf("expected ErrNoCode, got %v", err)
    }
}

func TestPollingSourceWaitsForCode(t *testing.T) {
    var calls atomic.Int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Query().Get("credentialId") != "c1" {
            w.WriteHeader(http.StatusBadRequest)
            return
        }
        if calls.Add(1) < 3 {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        fmt.Fprint(w, `{"code":"654321"}`)
    }))
    defer srv.Close()

    src := NewPollingSource(srv.URL, 5*time.Millisecond, time.Second)
    code, err := src.Code(context.Background(), domain.Challenge{CredentialID: "c1", Attempt: 1})
    if err != nil || code != "654321" {
        t.Fatalf("got %q %v", code, err)
    }
    if calls.Load() != 3 {
        t.Fatalf("expected 3 polls, got %d", calls.Load())
    }
}

func TestPollingSourceGivesUp(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusNoContent)
    }))
    defer srv.Close()

    src := NewPollingSource(srv.URL, 5*time.Millisecond, 30*time.Millisecond)
    if _, err := src.Code(context.Background(), domain.Challenge{CredentialID: "c1"}); !errors.Is(err, domain.ErrNoCode) {
        t.Fatalf("expected ErrNoCode, got %v", err)
    }
}

type stubSource struct {
    code string
    err  error
}

func (s stubSource) Code(context.Context, domain.Challenge) (string, error) { return s.code, s.err }

func TestChain(t *testing.T) {
    c := Chain{stubSource{err: domain.ErrNoCode}, stubSource{code: "111111"}}
    if code, err := c.Code(context.Background(), domain.Challenge{}); err != nil || code != "111111" {
        t.Fatalf("got %q %v", code, err)
    }
    boom := errors.New("boom")
    c = Chain{stubSource{err: boom}, stubSource{code: "111111"}}
    if _, err := c.Code(context.Background(), domain.Challenge{}); !errors.Is(err, boom) {
        t.Fatalf("expected boom, got %v", err)
    }
    if _, err := (Chain{}).Code(context.Background(), domain.Challenge{}); !errors.Is(err, domain.ErrNoCode) {
        t.Fatalf("expected ErrNoCode, got %v", err)
    }
}
