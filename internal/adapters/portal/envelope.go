package portal

import (
    "bytes"
    "encoding/json"
    "errors"
    "strconv"

    "juscapture/internal/domain"
)

// Field names seen across portal versions, tried in order when the endpoint does
// not name its own.
var (
    recordFields = []string{"resultado", "content", "items", "data", "records", "registros"}
    totalFields  = []string{"totalRegistros", "total", "totalElements", "count", "qtdRegistros"}
    nextFields   = []string{"proximaPagina", "next", "nextCursor", "cursor"}
)

var errEnvelope = errors.New("unrecognized page envelope")

// decodePage reads a page in whichever envelope the portal used: a bare array, an
// object holding the records under a known field, or one nested level of either.
func decodePage(body []byte, ep Endpoint) (domain.Page, error) {
    return decodeLevel(bytes.TrimSpace(body), ep, 0)
}

func decodeLevel(body []byte, ep Endpoint, depth int) (domain.Page, error) {
    if len(body) == 0 || bytes.Equal(body, []byte("null")) {
        return domain.Page{}, nil
    }
    if body[0] == '[' {
        var recs []json.RawMessage
        if err := json.Unmarshal(body, &recs); err != nil {
            return domain.Page{}, err
        }
        return domain.Page{Records: recs}, nil
    }
    var env map[string]json.RawMessage
    if err := json.Unmarshal(body, &env); err != nil {
        return domain.Page{}, err
    }
    raw, ok := pick(env, ep.RecordsField, recordFields)
    if !ok {
        return domain.Page{}, errEnvelope
    }
    raw = bytes.TrimSpace(raw)
    var pg domain.Page
    switch {
    case len(raw) > 0 && raw[0] == '{' && depth == 0:
        inner, err := decodeLevel(raw, ep, depth+1)
        if err != nil {
            return domain.Page{}, err
        }
        pg = inner
    case bytes.Equal(raw, []byte("null")):
    default:
        if err := json.Unmarshal(raw, &pg.Records); err != nil {
            return domain.Page{}, err
        }
    }
    if v, ok := pick(env, ep.TotalField, totalFields); ok {
        if n, ok := number(v); ok {
            pg.Reported = int(n)
        }
    }
    if next := nextCursor(env, ep); next != "" {
        pg.Next = next
    }
    return pg, nil
}

func pick(env map[string]json.RawMessage, named string, fallback []string) (json.RawMessage, bool) {
    if named != "" {
        v, ok := env[named]
        return v, ok
    }
    for _, k := range fallback {
        if v, ok := env[k]; ok {
            return v, true
        }
    }
    return nil, false
}

func nextCursor(env map[string]json.RawMessage, ep Endpoint) string {
    if v, ok := pick(env, ep.NextField, nextFields); ok {
        return scalar(v)
    }
    if last, ok := env["last"]; ok && string(bytes.TrimSpace(last)) == "true" {
        return ""
    }
    // 1-based page number plus page count
    if cur, ok := numberField(env, "pagina"); ok {
        if pages, ok := numberField(env, "qtdPaginas"); ok && cur < pages {
            return strconv.FormatInt(cur+1, 10)
        }
        return ""
    }
    // 0-based page number plus page count
    if cur, ok := numberField(env, "number"); ok {
        if pages, ok := numberField(env, "totalPages"); ok && cur+1 < pages {
            return strconv.FormatInt(cur+1, 10)
        }
    }
    return ""
}

func numberField(env map[string]json.RawMessage, key string) (int64, bool) {
    v, ok := env[key]
    if !ok {
        return 0, false
    }
    return number(v)
}

func number(v json.RawMessage) (int64, bool) {
    s := scalar(v)
    if s == "" {
        return 0, false
    }
    n, err := strconv.ParseInt(s, 10, 64)
    if err != nil {
        f, ferr := strconv.ParseFloat(s, 64)
        if ferr != nil {
            return 0, false
        }
        return int64(f), true
    }
    return n, true
}

// scalar renders a JSON string or number as text; null, false and objects give "".
func scalar(v json.RawMessage) string {
    v = bytes.TrimSpace(v)
    if len(v) == 0 {
        return ""
    }
    switch v[0] {
    case '"':
        var s string
        if json.Unmarshal(v, &s) == nil {
            return s
        }
    case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
        return string(v)
    }
    return ""
}
