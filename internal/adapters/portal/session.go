package portal

import (
    "context"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"

    "juscapture/internal/domain"
)

// Session is one authenticated portal session. It owns its HTTP client, so Logout
// tears the transport down with it.
type Session struct {
    inst   Instance
    base   *url.URL
    agent  string
    client *http.Client
    xsrf   string
}

func (s *Session) FetchPage(ctx context.Context, ct domain.CaptureType, params domain.FetchParams, cursor string) (domain.Page, error) {
    ep, ok := s.inst.Endpoints[ct]
    if !ok || ep.Path == "" {
        return domain.Page{}, &domain.TransportError{Op: string(ct), Err: fmt.Errorf("capture type not configured for %s/%s", s.inst.Tribunal, s.inst.Level)}
    }
    ep = ep.withDefaults()
    u := s.resolve(ep.Path)
    q := u.Query()
    if params.PageSize > 0 {
        q.Set(ep.SizeParam, strconv.Itoa(params.PageSize))
    }
    if cursor != "" {
        q.Set(ep.CursorParam, cursor)
    }
    if r := params.Range; r != nil {
        if !r.From.IsZero() {
            q.Set(ep.FromParam, r.From.Format("2006-01-02"))
        }
        if !r.To.IsZero() {
            q.Set(ep.ToParam, r.To.Format("2006-01-02"))
        }
    }
    for k, v := range params.Extra {
        q.Set(k, v)
    }
    u.RawQuery = q.Encode()

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
    if err != nil {
        return domain.Page{}, err
    }
    req.Header.Set("Accept", "application/json")
    req.Header.Set("User-Agent", s.agent)
    if s.xsrf != "" {
        req.Header.Set("X-XSRF-TOKEN", s.xsrf)
    }
    resp, err := s.client.Do(req)
    if err != nil {
        if ctx.Err() != nil {
            return domain.Page{}, ctx.Err()
        }
        return domain.Page{}, &domain.TransportError{Op: string(ct), Err: err}
    }
    defer resp.Body.Close()
    switch {
    case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
        return domain.Page{}, fmt.Errorf("%w: status %d", domain.ErrSessionExpired, resp.StatusCode)
    case resp.StatusCode >= 300:
        return domain.Page{}, &domain.TransportError{Op: string(ct), Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
    }
    body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
    if err != nil {
        return domain.Page{}, &domain.TransportError{Op: string(ct), Err: err}
    }
    pg, err := decodePage(body, ep)
    if err != nil {
        return domain.Page{}, &domain.TransportError{Op: string(ct), Status: resp.StatusCode, Err: err}
    }
    return pg, nil
}

// Logout ends the portal session best-effort and releases the transport.
func (s *Session) Logout(ctx context.Context) error {
    defer s.client.CloseIdleConnections()
    if s.inst.LogoutPath == "" {
        return nil
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resolve(s.inst.LogoutPath).String(), nil)
    if err != nil {
        return err
    }
    req.Header.Set("User-Agent", s.agent)
    if s.xsrf != "" {
        req.Header.Set("X-XSRF-TOKEN", s.xsrf)
    }
    resp, err := s.client.Do(req)
    if err != nil {
        return err
    }
    _, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
    return resp.Body.Close()
}
