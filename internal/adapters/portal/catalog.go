// Package portal is the HTTP client for tribunal portals: form login with an optional
// second factor, then a JSON paged API behind a cookie session and an XSRF header.
// Each tribunal instance is configured in the Catalog; no wire format is assumed
// beyond what envelope decoding tolerates.
package portal

import (
    "fmt"
    "net/url"
    "strings"

    "juscapture/internal/domain"
)

// Endpoint describes how one capture type is paged on an instance. Empty fields fall
// back to the names the known portals use.
type Endpoint struct {
    Path         string
    CursorParam  string
    SizeParam    string
    FromParam    string
    ToParam      string
    RecordsField string
    NextField    string
    TotalField   string
}

func (e Endpoint) withDefaults() Endpoint {
    if e.CursorParam == "" {
        e.CursorParam = "pagina"
    }
    if e.SizeParam == "" {
        e.SizeParam = "tamanhoPagina"
    }
    if e.FromParam == "" {
        e.FromParam = "dataInicio"
    }
    if e.ToParam == "" {
        e.ToParam = "dataFim"
    }
    return e
}

// Instance is one portal deployment: a tribunal at one instance level.
type Instance struct {
    Tribunal    string
    Level       domain.InstanceLevel
    System      string
    BaseURL     string
    LoginPath   string
    ProfilePath string
    LogoutPath  string
    Endpoints   map[domain.CaptureType]Endpoint
}

type Catalog struct {
    instances map[string]Instance
}

func catalogKey(tribunal string, level domain.InstanceLevel) string {
    return domain.NormalizeTribunal(tribunal) + "/" + string(level)
}

func NewCatalog(instances ...Instance) (*Catalog, error) {
    c := &Catalog{instances: map[string]Instance{}}
    for _, in := range instances {
        if !in.Level.Valid() {
            return nil, fmt.Errorf("portal %s: invalid instance level %q", in.Tribunal, in.Level)
        }
        if _, err := url.Parse(in.BaseURL); err != nil || in.BaseURL == "" {
            return nil, fmt.Errorf("portal %s/%s: invalid base url", in.Tribunal, in.Level)
        }
        if in.System == "" {
            in.System = "pje"
        }
        in.Tribunal = domain.NormalizeTribunal(in.Tribunal)
        in.BaseURL = strings.TrimRight(in.BaseURL, "/")
        key := catalogKey(in.Tribunal, in.Level)
        if _, dup := c.instances[key]; dup {
            return nil, fmt.Errorf("portal %s configured twice", key)
        }
        c.instances[key] = in
    }
    return c, nil
}

func (c *Catalog) Lookup(tribunal string, level domain.InstanceLevel) (Instance, error) {
    in, ok := c.instances[catalogKey(tribunal, level)]
    if !ok {
        return Instance{}, &domain.ValidationError{Field: "tribunal", Reason: fmt.Sprintf("no portal configured for %s/%s", domain.NormalizeTribunal(tribunal), level)}
    }
    return in, nil
}

// System names the portal software of an instance, "pje" when unknown.
func (c *Catalog) System(tribunal string, level domain.InstanceLevel) string {
    if in, err := c.Lookup(tribunal, level); err == nil {
        return in.System
    }
    return "pje"
}

func (c *Catalog) Len() int { return len(c.instances) }
