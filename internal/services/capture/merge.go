package capture

import (
    "encoding/json"
    "sort"
    "strconv"

    "juscapture/internal/domain"
    "juscapture/internal/extraction"
)

// mergeResult is the deduplicated record list plus what was dropped or flagged.
type mergeResult struct {
    Records    []json.RawMessage
    Duplicates int
    Merged     int
    Ambiguous  []domain.AmbiguousKey
}

type keyedRecord struct {
    index int
    key   string
    hash  string
    data  json.RawMessage
}

// mergeRecords drops exact duplicates (same natural key and content hash). Records that
// share a key but differ in content are all kept and reported as ambiguous. Timeline
// records of one process are folded into a single record, and entries inside it are
// deduplicated the same way.
func mergeRecords(src extraction.Source, raw []domain.RawRecord) mergeResult {
    var (
        out    mergeResult
        keyed  []keyedRecord
        groups = map[string][]int{}
        order  []string
    )
    for i, r := range raw {
        kr := keyedRecord{index: i, data: r.Data}
        kr.hash, _ = extraction.ContentHash(r.Data)
        kr.key, _ = extraction.RecordKey(src, r.Data)
        group := kr.key
        if group == "" {
            // unreadable records stay as they are and fail at persist time
            group = "unkeyed#" + strconv.Itoa(i)
        }
        pos := len(keyed)
        keyed = append(keyed, kr)
        if _, ok := groups[group]; !ok {
            order = append(order, group)
        }
        groups[group] = append(groups[group], pos)
    }

    for _, key := range order {
        members := groups[key]
        if src.Type == domain.CaptureTimeline && keyed[members[0]].key != "" {
            out.mergeTimeline(src, key, keyed, members)
            continue
        }
        var (
            hashes  []string
            records []int
        )
        for _, pos := range members {
            kr := keyed[pos]
            if contains(hashes, kr.hash) {
                out.Duplicates++
                continue
            }
            hashes = append(hashes, kr.hash)
            records = append(records, len(out.Records))
            out.Records = append(out.Records, kr.data)
        }
        if len(hashes) > 1 {
            sort.Strings(hashes)
            out.Ambiguous = append(out.Ambiguous, domain.AmbiguousKey{Key: key, Hashes: hashes, Records: records})
        }
    }
    return out
}

func (m *mergeResult) mergeTimeline(src extraction.Source, key string, keyed []keyedRecord, members []int) {
    recs := make([]json.RawMessage, 0, len(members))
    idx := make([]int, 0, len(members))
    for _, pos := range members {
        recs = append(recs, keyed[pos].data)
        idx = append(idx, keyed[pos].index)
    }
    tm, err := extraction.MergeTimelines(src, key, recs, idx)
    if err != nil {
        // keep the records unmerged rather than lose them
        m.Records = append(m.Records, recs...)
        return
    }
    m.Merged += len(members) - 1
    m.Duplicates += tm.Duplicates
    for _, a := range tm.Ambiguous {
        // entries of a merged record all live in the one output record
        a.Records = []int{len(m.Records)}
        m.Ambiguous = append(m.Ambiguous, a)
    }
    m.Records = append(m.Records, tm.Record)
}

func contains(list []string, s string) bool {
    for _, v := range list {
        if v == s {
            return true
        }
    }
    return false
}
