package extraction

import (
    "encoding/json"
    "fmt"
    "sort"

    "juscapture/internal/domain"
)

// EntryHash hashes a raw timeline entry without its instance annotation.
func EntryHash(raw json.RawMessage) (string, error) {
    o, err := decode(raw)
    if err != nil {
        return "", err
    }
    return hashObj(o, instanceFields), nil
}

// TimelineMerge is the result of folding several timeline records of one process.
type TimelineMerge struct {
    Record     json.RawMessage
    Entries    int
    Duplicates int
    Ambiguous  []domain.AmbiguousKey
}

// MergeTimelines unions the timeline entries of records that describe the same process.
// The first record supplies the process fields. Entries are deduplicated by timeline key
// and entry hash; entries sharing a key with different content are all kept and reported.
// Every kept entry is annotated with the instance it came from.
func MergeTimelines(src Source, processKey string, records []json.RawMessage, indexes []int) (TimelineMerge, error) {
    if len(records) == 0 {
        return TimelineMerge{}, fmt.Errorf("merge timelines: no records")
    }
    base, err := decode(records[0])
    if err != nil {
        return TimelineMerge{}, fmt.Errorf("merge timelines: %w", err)
    }

    type seenEntry struct {
        hashes  []string
        records []int
    }
    var (
        out    TimelineMerge
        merged []any
        byKey  = map[string]*seenEntry{}
        order  []string
    )
    for i, raw := range records {
        o, err := decode(raw)
        if err != nil {
            return TimelineMerge{}, fmt.Errorf("merge timelines: record %d: %w", indexes[i], err)
        }
        recInstance := src.Level
        if s := o.str("instancia", "grau"); s != "" {
            if lvl, err := domain.ParseInstanceLevel(s); err == nil {
                recInstance = lvl
            }
        }
        for _, e := range o.list("timeline") {
            entry := timelineEntry(src, processKey, e)
            seen, ok := byKey[entry.NaturalKey]
            if !ok {
                seen = &seenEntry{}
                byKey[entry.NaturalKey] = seen
                order = append(order, entry.NaturalKey)
            }
            dup := false
            for _, h := range seen.hashes {
                if h == entry.ContentHash {
                    dup = true
                    break
                }
            }
            if dup {
                out.Duplicates++
                continue
            }
            seen.hashes = append(seen.hashes, entry.ContentHash)
            seen.records = append(seen.records, indexes[i])
            if _, has := e["instancia"]; !has {
                e["instancia"] = string(recInstance)
            }
            merged = append(merged, map[string]any(e))
        }
    }
    for _, key := range order {
        seen := byKey[key]
        if len(seen.hashes) > 1 {
            hashes := append([]string(nil), seen.hashes...)
            sort.Strings(hashes)
            out.Ambiguous = append(out.Ambiguous, domain.AmbiguousKey{Key: key, Hashes: hashes, Records: seen.records})
        }
    }

    base["timeline"] = merged
    b, err := json.Marshal(map[string]any(base))
    if err != nil {
        return TimelineMerge{}, fmt.Errorf("merge timelines: %w", err)
    }
    out.Record = b
    out.Entries = len(merged)
    return out, nil
}
