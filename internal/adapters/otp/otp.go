// Package otp provides second-factor code sources: codes computed from a stored TOTP
// seed, codes polled from an external relay, and a chain of both.
package otp

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/pquerna/otp"
    "github.com/pquerna/otp/totp"
    "github.com/sethvargo/go-retry"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
)

const period = 30

var totpOpts = totp.ValidateOpts{Period: period, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}

// TOTPSource computes codes from the credential's seed. A retry after a rejected
// code waits for the next time step so the portal sees a fresh code.
type TOTPSource struct {
    now   func() time.Time
    sleep func(ctx context.Context, d time.Duration) error
}

func NewTOTPSource() *TOTPSource {
    return &TOTPSource{now: time.Now, sleep: sleepCtx}
}

func (s *TOTPSource) Code(ctx context.Context, ch domain.Challenge) (string, error) {
    if ch.Seed.Empty() {
        return "", domain.ErrNoCode
    }
    now := s.now()
    if ch.Attempt > 1 {
        wait := time.Duration(period-now.Unix()%period) * time.Second
        if err := s.sleep(ctx, wait); err != nil {
            return "", err
        }
        now = now.Add(wait)
    }
    seed := strings.ToUpper(strings.ReplaceAll(ch.Seed.Reveal(), " ", ""))
    code, err := totp.GenerateCodeCustom(seed, now, totpOpts)
    if err != nil {
        return "", fmt.Errorf("totp seed of credential %s: %w", ch.CredentialID, err)
    }
    return code, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

// PollingSource asks a relay service for a code someone entered out of band. The
// relay answers 200 {"code": "..."} once a code exists and 204 or 404 until then.
type PollingSource struct {
    endpoint string
    client   *http.Client
    interval time.Duration
    wait     time.Duration
}

func NewPollingSource(endpoint string, interval, wait time.Duration) *PollingSource {
    if interval <= 0 {
        interval = 2 * time.Second
    }
    if wait <= 0 {
        wait = 2 * time.Minute
    }
    return &PollingSource{endpoint: endpoint, client: &http.Client{Timeout: 10 * time.Second}, interval: interval, wait: wait}
}

var errPending = errors.New("code not yet available")

func (s *PollingSource) Code(ctx context.Context, ch domain.Challenge) (string, error) {
    u, err := url.Parse(s.endpoint)
    if err != nil {
        return "", err
    }
    q := u.Query()
    q.Set("credentialId", ch.CredentialID)
    q.Set("lawyerId", ch.LawyerID)
    q.Set("tribunal", ch.Tribunal)
    q.Set("instanceLevel", string(ch.Level))
    q.Set("attempt", strconv.Itoa(ch.Attempt))
    u.RawQuery = q.Encode()

    var code string
    backoff := retry.WithMaxDuration(s.wait, retry.NewConstant(s.interval))
    err = retry.Do(ctx, backoff, func(ctx context.Context) error {
        c, err := s.poll(ctx, u.String())
        if err != nil {
            return retry.RetryableError(err)
        }
        code = c
        return nil
    })
    switch {
    case err == nil:
        return code, nil
    case ctx.Err() != nil:
        return "", ctx.Err()
    case errors.Is(err, errPending):
        return "", domain.ErrNoCode
    }
    return "", fmt.Errorf("%w: %v", domain.ErrNoCode, err)
}

func (s *PollingSource) poll(ctx context.Context, u string) (string, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil {
        return "", err
    }
    req.Header.Set("Accept", "application/json")
    resp, err := s.client.Do(req)
    if err != nil {
        return "", err
    }
    defer resp.Body.Close()
    switch resp.StatusCode {
    case http.StatusOK:
    case http.StatusNoContent, http.StatusNotFound:
        return "", errPending
    default:
        return "", fmt.Errorf("relay status %d", resp.StatusCode)
    }
    var body struct {
        Code string `json:"code"`
    }
    if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
        return "", err
    }
    if body.Code == "" {
        return "", errPending
    }
    return body.Code, nil
}

// Chain asks each source in turn and returns the first code. domain.ErrNoCode from a
// source moves on to the next one; any other error stops the chain.
type Chain []ports.SecondFactorSource

func (c Chain) Code(ctx context.Context, ch domain.Challenge) (string, error) {
    for _, src := range c {
        code, err := src.Code(ctx, ch)
        if err == nil {
            return code, nil
        }
        if !errors.Is(err, domain.ErrNoCode) {
            return "", err
        }
    }
    return "", domain.ErrNoCode
}
