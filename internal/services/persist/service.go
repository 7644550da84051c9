// Package persist writes extracted payload units into the relational store and answers
// which of their elements already exist. Both directions share one traversal.
package persist

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/sethvargo/go-retry"

    "juscapture/internal/domain"
    "juscapture/internal/extraction"
    "juscapture/internal/ports"
)

type Service struct {
    entities ports.EntityRepository
    resolver *Resolver
    // conflictBackoff spaces the single retry of an upsert that hit a unique violation.
    conflictBackoff time.Duration
}

func New(entities ports.EntityRepository, identity ports.IdentityRepository) *Service {
    return &Service{
        entities:        entities,
        resolver:        NewResolver(entities, identity),
        conflictBackoff: 10 * time.Millisecond,
    }
}

// UnitResult is the outcome of one traversal of a unit.
type UnitResult struct {
    Index      int
    Kind       domain.ElementKind
    NaturalKey string
    Created    bool
    // Elements is filled by Inspect, in payload order.
    Elements []domain.ElementStatus
    Written  int
    Failures []domain.ElementFailure
    // Unreadable is set when the record could not be extracted; it has no elements.
    Unreadable bool
}

// Record converts the result into the per-record entry of a processed summary.
func (r UnitResult) Record() domain.RecordResult {
    return domain.RecordResult{
        Index:      r.Index,
        Kind:       r.Kind,
        NaturalKey: r.NaturalKey,
        OK:         len(r.Failures) == 0,
        Created:    r.Created,
        Elements:   r.Written,
        Failures:   r.Failures,
    }
}

// PersistUnit upserts the selected elements of a unit. Unselected prerequisites are
// looked up and only written when absent. Failures are recorded per element; the
// remaining elements of the unit are still attempted where their prerequisites exist.
func (s *Service) PersistUnit(ctx context.Context, scope Scope, u extraction.Unit, sel Selector) UnitResult {
    if sel == nil {
        sel = All
    }
    w := &walk{s: s, ctx: ctx, scope: scope, sel: sel, write: true}
    w.run(u)
    return w.res
}

// Inspect classifies every element of a unit as existing or missing without writing.
func (s *Service) Inspect(ctx context.Context, scope Scope, u extraction.Unit) (UnitResult, error) {
    w := &walk{s: s, ctx: ctx, scope: scope, sel: All}
    w.run(u)
    return w.res, w.err
}

type walk struct {
    s     *Service
    ctx   context.Context
    scope Scope
    sel   Selector
    write bool

    res UnitResult
    err error // first lookup error in inspect mode
}

// elementRef is what the traversal knows about an element after visiting it.
type elementRef struct {
    id  int64
    key string
    ok  bool
}

func (w *walk) fail(el domain.Element, err error) {
    w.res.Failures = append(w.res.Failures, domain.ElementFailure{
        Kind:       el.Kind,
        NaturalKey: el.NaturalKey,
        Path:       el.Path,
        Error:      err.Error(),
    })
}

func (w *walk) upsert(kind domain.ElementKind, key string, fn func(context.Context) (domain.UpsertResult, error)) (domain.UpsertResult, error) {
    var res domain.UpsertResult
    b := retry.WithMaxRetries(1, retry.NewConstant(w.s.conflictBackoff))
    err := retry.Do(w.ctx, b, func(ctx context.Context) error {
        r, err := fn(ctx)
        if errors.Is(err, domain.ErrConflict) {
            return retry.RetryableError(err)
        }
        if err != nil {
            return err
        }
        res = r
        return nil
    })
    if err != nil {
        return res, &domain.PersistenceError{Kind: kind, NaturalKey: key, Err: err}
    }
    return res, nil
}

// visit handles one element. needed marks an unselected element some selected
// element depends on.
func (w *walk) visit(el domain.Element, needed bool, fn func(context.Context) (domain.UpsertResult, error)) elementRef {
    if w.err != nil {
        return elementRef{}
    }
    if !w.write {
        id, found, err := w.s.entities.LookupEntity(w.ctx, el.Kind, el.NaturalKey)
        if err != nil {
            w.err = fmt.Errorf("lookup %s %s: %w", el.Kind, el.NaturalKey, err)
            return elementRef{}
        }
        status := domain.StatusMissing
        if found {
            status = domain.StatusExisting
        }
        w.res.Elements = append(w.res.Elements, domain.ElementStatus{Element: el, Status: status})
        return elementRef{id: id, key: el.NaturalKey, ok: found}
    }

    selected := w.sel.Selected(el.Path)
    if !selected {
        if !needed {
            return elementRef{key: el.NaturalKey}
        }
        id, found, err := w.s.entities.LookupEntity(w.ctx, el.Kind, el.NaturalKey)
        if err != nil {
            w.fail(el, err)
            return elementRef{key: el.NaturalKey}
        }
        if found {
            return elementRef{id: id, key: el.NaturalKey, ok: true}
        }
    }
    res, err := w.upsert(el.Kind, el.NaturalKey, fn)
    if err != nil {
        w.fail(el, err)
        return elementRef{key: el.NaturalKey}
    }
    if selected {
        w.res.Written++
        if el.Path == w.primaryPath() && el.Kind == w.res.Kind {
            w.res.Created = res.Created
        }
    }
    return elementRef{id: res.ID, key: el.NaturalKey, ok: true}
}

func (w *walk) primaryPath() string { return fmt.Sprintf("records[%d]", w.res.Index) }

func (w *walk) run(u extraction.Unit) {
    w.res.Index = u.Index
    w.res.Kind = u.PrimaryKind()
    w.res.NaturalKey = u.PrimaryKey()

    if u.Err != nil {
        w.res.Unreadable = true
        if w.write && w.sel.Selected(u.Path) {
            w.fail(domain.Element{Kind: w.res.Kind, Path: u.Path, Record: u.Index}, u.Err)
        }
        return
    }

    unitNeeded := w.sel.Under(u.Path)
    if w.write && !unitNeeded {
        return
    }

    proc := w.process(u, unitNeeded)

    switch {
    case u.Hearing != nil:
        h := *u.Hearing
        el := domain.Element{Kind: domain.KindHearing, NaturalKey: h.NaturalKey, Path: u.Path, Record: u.Index, Label: h.Type}
        w.dependent(el, proc, func(ctx context.Context) (domain.UpsertResult, error) {
            h.ProcessID = proc.id
            return w.s.entities.UpsertHearing(ctx, h)
        })
    case u.Pending != nil:
        p := *u.Pending
        el := domain.Element{Kind: domain.KindPendingItem, NaturalKey: p.NaturalKey, Path: u.Path, Record: u.Index, Label: p.Kind}
        w.dependent(el, proc, func(ctx context.Context) (domain.UpsertResult, error) {
            p.ProcessID = proc.id
            return w.s.entities.UpsertPendingItem(ctx, p)
        })
    }

    for _, pu := range u.Parties {
        w.party(u, pu, proc)
    }
    for _, tu := range u.Timeline {
        e := tu.Entry
        el := domain.Element{Kind: domain.KindTimelineEntry, NaturalKey: e.NaturalKey, Path: tu.Path, Record: u.Index, Label: e.Title}
        w.dependent(el, proc, func(ctx context.Context) (domain.UpsertResult, error) {
            e.ProcessID = proc.id
            return w.s.entities.UpsertTimelineEntry(ctx, e)
        })
    }
}

// process visits the record's process. For hearings it is a prerequisite only.
func (w *walk) process(u extraction.Unit, unitNeeded bool) elementRef {
    if u.Process == nil {
        return elementRef{}
    }
    p := *u.Process
    path := u.Path
    if u.PrimaryKind() != domain.KindProcess {
        path = u.Path + ".processo"
    }
    el := domain.Element{Kind: domain.KindProcess, NaturalKey: p.NaturalKey, Path: path, Record: u.Index, Label: p.Number}
    upsert := func(ctx context.Context) (domain.UpsertResult, error) { return w.s.entities.UpsertProcess(ctx, p) }
    if !u.ProcessIsElement {
        if !w.write {
            return elementRef{key: p.NaturalKey}
        }
        res, err := w.prerequisite(el, upsert)
        if err != nil {
            w.fail(el, err)
            return elementRef{key: p.NaturalKey}
        }
        return res
    }
    return w.visit(el, unitNeeded, upsert)
}

func (w *walk) prerequisite(el domain.Element, fn func(context.Context) (domain.UpsertResult, error)) (elementRef, error) {
    id, found, err := w.s.entities.LookupEntity(w.ctx, el.Kind, el.NaturalKey)
    if err != nil {
        return elementRef{}, err
    }
    if found {
        return elementRef{id: id, key: el.NaturalKey, ok: true}, nil
    }
    res, err := w.upsert(el.Kind, el.NaturalKey, fn)
    if err != nil {
        return elementRef{}, err
    }
    return elementRef{id: res.ID, key: el.NaturalKey, ok: true}, nil
}

// dependent visits an element that needs its process row. Without it the element
// is recorded as failed rather than written with a dangling reference.
func (w *walk) dependent(el domain.Element, parent elementRef, fn func(context.Context) (domain.UpsertResult, error)) elementRef {
    if w.write && w.sel.Selected(el.Path) && !parent.ok {
        w.fail(el, &domain.PersistenceError{Kind: el.Kind, NaturalKey: el.NaturalKey, Err: errMissingProcess})
        return elementRef{key: el.NaturalKey}
    }
    return w.visit(el, w.sel.Under(el.Path), fn)
}

var (
    errMissingProcess = errors.New("process not persisted")
    errMissingParty   = errors.New("party not persisted")
)

func (w *walk) party(u extraction.Unit, pu extraction.PartyUnit, proc elementRef) {
    if w.err != nil {
        return
    }
    needed := w.sel.Under(pu.Path)
    if w.write && !needed {
        return
    }
    el := domain.Element{
        Kind:           domain.KindParty,
        Path:           pu.Path,
        Record:         u.Index,
        Label:          pu.Party.Name,
        PortalPersonID: pu.PortalPersonID,
        Pole:           pu.Pole,
    }
    res, err := w.s.resolver.Resolve(w.ctx, w.scope, domain.KindParty, pu.PortalPersonID, pu.Party.NaturalKey)
    if errors.Is(err, ErrUnaddressable) {
        return
    }
    if err != nil {
        if !w.write {
            w.err = err
        } else if w.sel.Selected(pu.Path) {
            w.fail(el, err)
        }
        return
    }
    el.NaturalKey = res.Key
    party := pu.Party
    party.NaturalKey = res.Key

    var ref elementRef
    if !w.write && res.Mapped {
        w.res.Elements = append(w.res.Elements, domain.ElementStatus{Element: el, Status: domain.StatusExisting})
        ref = elementRef{id: res.EntityID, key: res.Key, ok: true}
    } else {
        ref = w.visit(el, needed, func(ctx context.Context) (domain.UpsertResult, error) {
            return w.s.entities.UpsertParty(ctx, party)
        })
    }
    if w.write && ref.ok {
        if pu.PortalPersonID != 0 && !res.Mapped {
            m, err := w.s.resolver.Bind(w.ctx, w.scope, domain.KindParty, pu.PortalPersonID, ref.id, map[string]any{"name": party.Name})
            if err != nil {
                w.fail(el, err)
            } else if m.EntityID != ref.id {
                log.Printf("persist: party %s bound to entity %d by a concurrent writer", res.Key, m.EntityID)
                ref.id = m.EntityID
            }
        }
        if w.sel.Selected(pu.Path) && proc.ok {
            if err := w.s.entities.LinkProcessParty(w.ctx, domain.ProcessParty{ProcessID: proc.id, PartyID: ref.id, Pole: pu.Pole, Role: pu.Role}); err != nil {
                w.fail(el, &domain.PersistenceError{Kind: domain.KindParty, NaturalKey: res.Key, Err: fmt.Errorf("link process: %w", err)})
            }
        }
    }

    for _, au := range pu.Addresses {
        a := au.Address
        a.NaturalKey = domain.AddressKey(res.Key, a)
        ael := domain.Element{Kind: domain.KindAddress, NaturalKey: a.NaturalKey, Path: au.Path, Record: u.Index, Label: a.City, Pole: pu.Pole}
        if w.write && w.sel.Selected(au.Path) && !ref.ok {
            w.fail(ael, &domain.PersistenceError{Kind: domain.KindAddress, NaturalKey: a.NaturalKey, Err: errMissingParty})
            continue
        }
        w.visit(ael, false, func(ctx context.Context) (domain.UpsertResult, error) {
            a.PartyID = ref.id
            return w.s.entities.UpsertAddress(ctx, a)
        })
    }
    for _, ru := range pu.Representatives {
        w.representative(u, ru, pu.Pole, ref, proc)
    }
}

func (w *walk) representative(u extraction.Unit, ru extraction.RepresentativeUnit, pole domain.Pole, party, proc elementRef) {
    if w.err != nil {
        return
    }
    if w.write && !w.sel.Selected(ru.Path) {
        return
    }
    rep := ru.Representative
    el := domain.Element{
        Kind:           domain.KindRepresentative,
        Path:           ru.Path,
        Record:         u.Index,
        Label:          rep.Name,
        PortalPersonID: ru.PortalPersonID,
        Pole:           pole,
    }
    res, err := w.s.resolver.Resolve(w.ctx, w.scope, domain.KindRepresentative, ru.PortalPersonID, rep.NaturalKey)
    if errors.Is(err, ErrUnaddressable) {
        return
    }
    if err != nil {
        if !w.write {
            w.err = err
        } else {
            w.fail(el, err)
        }
        return
    }
    el.NaturalKey = res.Key
    rep.NaturalKey = res.Key
    if !w.write && res.Mapped {
        w.res.Elements = append(w.res.Elements, domain.ElementStatus{Element: el, Status: domain.StatusExisting})
        return
    }
    ref := w.visit(el, false, func(ctx context.Context) (domain.UpsertResult, error) {
        return w.s.entities.UpsertRepresentative(ctx, rep)
    })
    if !w.write || !ref.ok {
        return
    }
    if ru.PortalPersonID != 0 && !res.Mapped {
        if _, err := w.s.resolver.Bind(w.ctx, w.scope, domain.KindRepresentative, ru.PortalPersonID, ref.id, map[string]any{"oab": rep.OAB}); err != nil {
            w.fail(el, err)
        }
    }
    if !party.ok || !proc.ok {
        return
    }
    link := domain.Representation{ProcessID: proc.id, PartyID: party.id, RepresentativeID: ref.id}
    if err := w.s.entities.LinkRepresentation(w.ctx, link); err != nil {
        w.fail(el, &domain.PersistenceError{Kind: domain.KindRepresentative, NaturalKey: res.Key, Err: fmt.Errorf("link representation: %w", err)})
    }
}
