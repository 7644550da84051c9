package portal

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "io"
    "log"
    "net/http"
    "net/http/cookiejar"
    "net/url"
    "strings"
    "time"

    "golang.org/x/net/publicsuffix"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
)

const maxBody = 8 << 20

type AuthConfig struct {
    RequestTimeout time.Duration
    // CodeAttempts bounds how many second-factor codes one login may submit.
    CodeAttempts int
    UserAgent    string
}

// Authenticator implements ports.Authenticator against the instances of a Catalog.
type Authenticator struct {
    catalog *Catalog
    codes   ports.SecondFactorSource
    cfg     AuthConfig
}

func NewAuthenticator(catalog *Catalog, codes ports.SecondFactorSource, cfg AuthConfig) *Authenticator {
    if cfg.RequestTimeout <= 0 {
        cfg.RequestTimeout = 30 * time.Second
    }
    if cfg.CodeAttempts <= 0 {
        cfg.CodeAttempts = 3
    }
    if cfg.UserAgent == "" {
        cfg.UserAgent = "juscapture/1.0"
    }
    return &Authenticator{catalog: catalog, codes: codes, cfg: cfg}
}

type page struct {
    status int
    url    *url.URL
    forms  []form
}

func (a *Authenticator) Login(ctx context.Context, cred domain.Credential) (ports.PortalSession, error) {
    inst, err := a.catalog.Lookup(cred.Tribunal, cred.Level)
    if err != nil {
        return nil, err
    }
    base, err := url.Parse(inst.BaseURL + "/")
    if err != nil {
        return nil, err
    }
    jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
    if err != nil {
        return nil, err
    }
    s := &Session{
        inst:   inst,
        base:   base,
        agent:  a.cfg.UserAgent,
        client: &http.Client{Jar: jar, Timeout: a.cfg.RequestTimeout},
    }
    fail := func(kind domain.AuthErrorKind, err error) error {
        s.client.CloseIdleConnections()
        return &domain.AuthError{Kind: kind, Tribunal: inst.Tribunal, Level: inst.Level, Err: err}
    }

    p, err := s.load(ctx, http.MethodGet, s.resolve(inst.LoginPath), nil)
    if err != nil {
        return nil, fail(domain.PortalUnavailable, err)
    }
    kind, f := classify(p.forms)
    if kind != pageLogin {
        return nil, fail(domain.PortalUnavailable, errors.New("login form not found"))
    }
    user, ok := f.has(isUser)
    if !ok {
        return nil, fail(domain.PortalUnavailable, errors.New("login field not found"))
    }
    pw, ok := f.has(isPassword)
    if !ok {
        return nil, fail(domain.PortalUnavailable, errors.New("password field not found"))
    }
    vals := cloneValues(f.Values)
    vals.Set(user.Name, cred.Login)
    vals.Set(pw.Name, cred.Secret.Reveal())
    p, err = s.submit(ctx, f, vals)
    if err != nil {
        return nil, fail(domain.PortalUnavailable, err)
    }
    if p.status == http.StatusUnauthorized || p.status == http.StatusForbidden {
        return nil, fail(domain.InvalidCredential, fmt.Errorf("status %d", p.status))
    }

    codes := 0
    for {
        kind, f = classify(p.forms)
        if kind == pageOther {
            break
        }
        if kind == pageLogin {
            if codes == 0 {
                return nil, fail(domain.InvalidCredential, errors.New("portal returned to the login form"))
            }
            return nil, fail(domain.SecondFactorTimeout, errors.New("portal restarted login after a code"))
        }
        if a.codes == nil {
            return nil, fail(domain.SecondFactorRequired, nil)
        }
        if codes >= a.cfg.CodeAttempts {
            return nil, fail(domain.SecondFactorTimeout, fmt.Errorf("%d codes rejected", codes))
        }
        codes++
        code, err := a.codes.Code(ctx, domain.Challenge{
            CredentialID: cred.ID,
            LawyerID:     cred.LawyerID,
            Tribunal:     inst.Tribunal,
            Level:        inst.Level,
            Attempt:      codes,
            Seed:         cred.TOTPSeed,
        })
        if err != nil {
            return nil, fail(domain.SecondFactorTimeout, err)
        }
        field, _ := f.has(isCode)
        vals := cloneValues(f.Values)
        vals.Set(field.Name, code)
        if p, err = s.submit(ctx, f, vals); err != nil {
            return nil, fail(domain.PortalUnavailable, err)
        }
    }

    if err := s.confirm(ctx); err != nil {
        var ae *domain.AuthError
        if errors.As(err, &ae) {
            s.client.CloseIdleConnections()
            return nil, err
        }
        return nil, fail(domain.PortalUnavailable, err)
    }
    log.Printf("portal: login ok tribunal=%s level=%s codes=%d", inst.Tribunal, inst.Level, codes)
    return s, nil
}

func cloneValues(v url.Values) url.Values {
    out := make(url.Values, len(v))
    for k, vs := range v {
        out[k] = append([]string(nil), vs...)
    }
    return out
}

func (s *Session) resolve(path string) *url.URL {
    u, err := s.base.Parse(strings.TrimLeft(path, "/"))
    if err != nil {
        return s.base
    }
    return u
}

func (s *Session) submit(ctx context.Context, f form, vals url.Values) (page, error) {
    if f.Method == http.MethodGet {
        u := *f.Action
        u.RawQuery = vals.Encode()
        return s.load(ctx, http.MethodGet, &u, nil)
    }
    return s.load(ctx, http.MethodPost, f.Action, vals)
}

// load performs one step of the login dance and parses the forms of the result.
func (s *Session) load(ctx context.Context, method string, u *url.URL, vals url.Values) (page, error) {
    var body io.Reader
    if vals != nil {
        body = strings.NewReader(vals.Encode())
    }
    req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
    if err != nil {
        return page{}, err
    }
    req.Header.Set("User-Agent", s.agent)
    if vals != nil {
        req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
    }
    resp, err := s.client.Do(req)
    if err != nil {
        return page{}, err
    }
    defer resp.Body.Close()
    if resp.StatusCode >= 500 {
        return page{}, fmt.Errorf("%s %s: status %d", method, u.Path, resp.StatusCode)
    }
    raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
    if err != nil {
        return page{}, err
    }
    p := page{status: resp.StatusCode, url: resp.Request.URL}
    if p.forms, err = parseForms(bytes.NewReader(raw), p.url); err != nil {
        return page{}, err
    }
    return p, nil
}

// confirm checks the authenticated landing state on the profile endpoint and picks
// up the XSRF token the API calls must echo.
func (s *Session) confirm(ctx context.Context) error {
    if s.inst.ProfilePath == "" {
        s.xsrf = s.cookie("XSRF-TOKEN")
        return nil
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resolve(s.inst.ProfilePath).String(), nil)
    if err != nil {
        return err
    }
    req.Header.Set("Accept", "application/json")
    req.Header.Set("User-Agent", s.agent)
    resp, err := s.client.Do(req)
    if err != nil {
        return err
    }
    defer resp.Body.Close()
    _, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
    switch {
    case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
        return &domain.AuthError{Kind: domain.InvalidCredential, Tribunal: s.inst.Tribunal, Level: s.inst.Level,
            Err: fmt.Errorf("profile status %d", resp.StatusCode)}
    case resp.StatusCode >= 300:
        return fmt.Errorf("profile status %d", resp.StatusCode)
    }
    s.xsrf = resp.Header.Get("X-XSRF-TOKEN")
    if s.xsrf == "" {
        s.xsrf = s.cookie("XSRF-TOKEN")
    }
    return nil
}

func (s *Session) cookie(name string) string {
    for _, c := range s.client.Jar.Cookies(s.base) {
        if c.Name == name {
            return c.Value
        }
    }
    return ""
}
