package extraction

import (
    "bytes"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "strconv"
    "strings"
    "time"
)

// obj is a decoded portal object. Field names drift between portal versions, so
// every getter takes the candidate keys in preference order.
type obj map[string]any

func decode(raw json.RawMessage) (obj, error) {
    dec := json.NewDecoder(bytes.NewReader(raw))
    dec.UseNumber()
    var o obj
    if err := dec.Decode(&o); err != nil {
        return nil, err
    }
    return o, nil
}

func (o obj) first(keys ...string) (any, bool) {
    for _, k := range keys {
        if v, ok := o[k]; ok && v != nil {
            return v, true
        }
    }
    return nil, false
}

func (o obj) str(keys ...string) string {
    v, ok := o.first(keys...)
    if !ok {
        return ""
    }
    return stringOf(v)
}

func stringOf(v any) string {
    switch t := v.(type) {
    case string:
        return strings.TrimSpace(t)
    case json.Number:
        return t.String()
    case bool:
        return strconv.FormatBool(t)
    case map[string]any:
        // {"id": 3, "descricao": "Instrução"} style lookups
        return obj(t).str("descricao", "nome", "sigla", "valor")
    }
    return ""
}

func (o obj) int64(keys ...string) int64 {
    v, ok := o.first(keys...)
    if !ok {
        return 0
    }
    switch t := v.(type) {
    case json.Number:
        if n, err := t.Int64(); err == nil {
            return n
        }
        if f, err := t.Float64(); err == nil {
            return int64(f)
        }
    case string:
        if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
            return n
        }
    case float64:
        return int64(t)
    }
    return 0
}

func (o obj) boolean(keys ...string) (bool, bool) {
    v, ok := o.first(keys...)
    if !ok {
        return false, false
    }
    switch t := v.(type) {
    case bool:
        return t, true
    case string:
        switch strings.ToLower(strings.TrimSpace(t)) {
        case "true", "s", "sim", "1":
            return true, true
        case "false", "n", "nao", "não", "0":
            return false, true
        }
    case json.Number:
        return t.String() != "0", true
    }
    return false, false
}

func (o obj) child(keys ...string) obj {
    v, ok := o.first(keys...)
    if !ok {
        return nil
    }
    if m, ok := v.(map[string]any); ok {
        return obj(m)
    }
    return nil
}

// list accepts an array of objects or a single object.
func (o obj) list(key string) []obj {
    v, ok := o[key]
    if !ok || v == nil {
        return nil
    }
    switch t := v.(type) {
    case []any:
        out := make([]obj, 0, len(t))
        for _, item := range t {
            if m, ok := item.(map[string]any); ok {
                out = append(out, obj(m))
            }
        }
        return out
    case map[string]any:
        return []obj{obj(t)}
    }
    return nil
}

// portalZone is the portals' wall clock (no DST since 2019).
var portalZone = time.FixedZone("BRT", -3*60*60)

var timeLayouts = []string{
    "2006-01-02T15:04:05.000",
    "2006-01-02T15:04:05",
    "2006-01-02 15:04:05",
    "2006-01-02T15:04",
    "2006-01-02",
    "02/01/2006 15:04:05",
    "02/01/2006 15:04",
    "02/01/2006",
}

func (o obj) time(keys ...string) *time.Time {
    v, ok := o.first(keys...)
    if !ok {
        return nil
    }
    switch t := v.(type) {
    case json.Number:
        n, err := t.Int64()
        if err != nil || n <= 0 {
            return nil
        }
        var ts time.Time
        if n > 100_000_000_000 {
            ts = time.UnixMilli(n).UTC()
        } else {
            ts = time.Unix(n, 0).UTC()
        }
        return &ts
    case string:
        return parseTimeString(t)
    }
    return nil
}

func parseTimeString(s string) *time.Time {
    s = strings.TrimSpace(s)
    if s == "" {
        return nil
    }
    for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
        if ts, err := time.Parse(layout, s); err == nil {
            ts = ts.UTC()
            return &ts
        }
    }
    for _, layout := range timeLayouts {
        if ts, err := time.ParseInLocation(layout, s, portalZone); err == nil {
            ts = ts.UTC()
            return &ts
        }
    }
    return nil
}

// ContentHash is the SHA-256 of the canonical JSON form (sorted keys) of a record.
func ContentHash(raw json.RawMessage) (string, error) {
    o, err := decode(raw)
    if err != nil {
        return "", err
    }
    return hashObj(o, nil), nil
}

func hashObj(o obj, skip map[string]bool) string {
    m := make(map[string]any, len(o))
    for k, v := range o {
        if skip[k] {
            continue
        }
        m[k] = v
    }
    b, _ := json.Marshal(m)
    sum := sha256.Sum256(b)
    return hex.EncodeToString(sum[:])
}
