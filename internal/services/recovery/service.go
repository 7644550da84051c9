// Package recovery reconciles stored raw payloads against the relational store.
// Reads take no lock; Repersist holds the same tuple lock as captures.
package recovery

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "time"

    "juscapture/internal/domain"
    "juscapture/internal/extraction"
    "juscapture/internal/ports"
    "juscapture/internal/services/persist"
)

type Service struct {
    rawLogs   ports.RawLogRepository
    persister *persist.Service
    locker    ports.Locker
    lockWait  time.Duration
}

func New(rawLogs ports.RawLogRepository, persister *persist.Service, locker ports.Locker, lockWait time.Duration) *Service {
    if lockWait <= 0 {
        lockWait = time.Minute
    }
    return &Service{rawLogs: rawLogs, persister: persister, locker: locker, lockWait: lockWait}
}

func (s *Service) List(ctx context.Context, filter domain.RawLogFilter) ([]domain.RawCaptureLog, error) {
    if filter.Limit <= 0 || filter.Limit > 500 {
        filter.Limit = 50
    }
    filter.Tribunal = domain.NormalizeTribunal(filter.Tribunal)
    return s.rawLogs.ListRawLogs(ctx, filter)
}

func (s *Service) Get(ctx context.Context, rawLogID string, analyzeGaps, includePayload bool) (domain.RecoveryView, error) {
    raw, err := s.rawLogs.GetRawLog(ctx, rawLogID)
    if err != nil {
        return domain.RecoveryView{}, err
    }
    view := domain.RecoveryView{Log: raw}
    if includePayload {
        view.RawPayload = raw.RawPayload
    }
    view.Log.RawPayload = nil
    if analyzeGaps {
        rep, err := s.analyze(ctx, raw)
        if err != nil {
            return domain.RecoveryView{}, err
        }
        view.GapReport = &rep
    }
    return view, nil
}

// Analyze lists every element of the stored payload with its current persistence status.
// Elements come back in payload order.
func (s *Service) Analyze(ctx context.Context, rawLogID string) (domain.GapReport, error) {
    raw, err := s.rawLogs.GetRawLog(ctx, rawLogID)
    if err != nil {
        return domain.GapReport{}, err
    }
    return s.analyze(ctx, raw)
}

type loaded struct {
    src   extraction.Source
    units []extraction.Unit
}

func load(raw domain.RawCaptureLog) (loaded, bool, error) {
    if len(raw.RawPayload) == 0 || string(raw.RawPayload) == "null" {
        return loaded{}, false, nil
    }
    var payload domain.CapturePayload
    if err := json.Unmarshal(raw.RawPayload, &payload); err != nil {
        return loaded{}, true, fmt.Errorf("decode payload of %s: %w", raw.ID, err)
    }
    if payload.CaptureType == "" {
        payload.CaptureType = raw.CaptureType
    }
    if payload.Tribunal == "" {
        payload.Tribunal = raw.Tribunal
    }
    if payload.Level == "" {
        payload.Level = raw.Level
    }
    src := extraction.SourceOf(payload)
    return loaded{src: src, units: extraction.Extract(src, payload.Records)}, true, nil
}

func scopeOf(src extraction.Source) persist.Scope {
    return persist.Scope{System: src.System, Tribunal: src.Tribunal, Level: src.Level}
}

func (s *Service) analyze(ctx context.Context, raw domain.RawCaptureLog) (domain.GapReport, error) {
    rep := domain.GapReport{RawLogID: raw.ID, Elements: []domain.ElementStatus{}}
    l, ok, err := load(raw)
    if err != nil || !ok {
        return rep, err
    }
    rep.PayloadAvailable = true
    scope := scopeOf(l.src)
    for _, u := range l.units {
        res, err := s.persister.Inspect(ctx, scope, u)
        if err != nil {
            return domain.GapReport{}, fmt.Errorf("analyze %s: %w", raw.ID, err)
        }
        if res.Unreadable {
            rep.Unreadable++
        }
        for _, el := range res.Elements {
            rep.Totals.Count(el.Status)
            rep.Elements = append(rep.Elements, el)
        }
    }
    return rep, nil
}

// Elements is Analyze narrowed by filter. In byPartyKind mode person elements are
// grouped by pole and everything else lands in the "process" group.
func (s *Service) Elements(ctx context.Context, rawLogID string, filter domain.ElementFilter, mode domain.ListingMode) (domain.ElementListing, error) {
    rep, err := s.Analyze(ctx, rawLogID)
    if err != nil {
        return domain.ElementListing{}, err
    }
    out := domain.ElementListing{RawLogID: rawLogID, Filter: filter, Mode: mode}
    var selected []domain.ElementStatus
    for _, el := range rep.Elements {
        if !filter.Match(el.Status) {
            continue
        }
        out.Totals.Count(el.Status)
        selected = append(selected, el)
    }
    if mode != domain.ModeByPartyKind {
        out.Elements = selected
        if out.Elements == nil {
            out.Elements = []domain.ElementStatus{}
        }
        return out, nil
    }
    out.Groups = map[string][]domain.ElementStatus{}
    for _, el := range selected {
        group := "process"
        if el.Pole != "" {
            group = string(el.Pole)
        }
        out.Groups[group] = append(out.Groups[group], el)
    }
    return out, nil
}

// Repersist upserts the elements of the stored payload that match filter. It reads
// nothing but the stored payload and can be run any number of times.
func (s *Service) Repersist(ctx context.Context, rawLogID string, filter domain.ElementFilter) (domain.RepersistResult, error) {
    raw, err := s.rawLogs.GetRawLog(ctx, rawLogID)
    if err != nil {
        return domain.RepersistResult{}, err
    }
    out := domain.RepersistResult{RawLogID: rawLogID, Filter: filter}
    l, ok, err := load(raw)
    if err != nil {
        return out, err
    }
    if !ok {
        return out, nil
    }

    lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
    lease, err := s.locker.Acquire(lockCtx, domain.LockKey(raw.LawyerID, raw.Tribunal, raw.Level))
    cancel()
    if err != nil {
        return out, err
    }
    defer func() {
        if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
            log.Printf("recovery: release lock: %v", err)
        }
    }()

    scope := scopeOf(l.src)
    for _, u := range l.units {
        if u.Err != nil {
            continue
        }
        // status is read under the lock so a capture that just finished is seen
        res, err := s.persister.Inspect(ctx, scope, u)
        if err != nil {
            return out, fmt.Errorf("repersist %s: %w", rawLogID, err)
        }
        var paths []string
        for _, el := range res.Elements {
            if filter.Match(el.Status) {
                paths = append(paths, el.Path)
            }
        }
        if len(paths) == 0 {
            continue
        }
        out.Selected += len(paths)
        sel := persist.NewPaths(paths...)
        written := s.persister.PersistUnit(ctx, scope, u, sel)
        failed := map[string]bool{}
        for _, f := range written.Failures {
            if sel.Selected(f.Path) {
                failed[f.Path] = true
            }
        }
        out.Failed += len(failed)
        out.Persisted += len(paths) - len(failed)
        out.Failures = append(out.Failures, written.Failures...)
    }
    log.Printf("recovery: repersist %s filter=%s selected=%d persisted=%d failed=%d", rawLogID, filter, out.Selected, out.Persisted, out.Failed)
    return out, nil
}
