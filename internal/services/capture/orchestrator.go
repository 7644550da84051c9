package capture

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/google/uuid"
    "github.com/sethvargo/go-retry"

    "juscapture/internal/domain"
    "juscapture/internal/extraction"
    "juscapture/internal/ports"
    "juscapture/internal/services/persist"
    "juscapture/internal/services/session"
)

// Sessions opens and closes portal session handles; *session.Manager is the implementation.
type Sessions interface {
    Open(ctx context.Context, cred domain.Credential) (*session.Handle, error)
    Close(ctx context.Context, h *session.Handle)
}

type Config struct {
    AttemptTimeout time.Duration
    LockWait       time.Duration
    SessionRetries int
    SessionBackoff time.Duration
    PageSize       int
    // SystemOf names the portal software a tribunal instance runs ("pje").
    SystemOf func(tribunal string, level domain.InstanceLevel) string
}

type Orchestrator struct {
    creds       ports.CredentialStore
    sessions    Sessions
    locker      ports.Locker
    rawLogs     ports.RawLogRepository
    captureLogs ports.CaptureLogRepository
    persister   *persist.Service
    fetcher     *Fetcher
    cfg         Config
    now         func() time.Time
}

func NewOrchestrator(
    creds ports.CredentialStore,
    sessions Sessions,
    locker ports.Locker,
    rawLogs ports.RawLogRepository,
    captureLogs ports.CaptureLogRepository,
    persister *persist.Service,
    fetcher *Fetcher,
    cfg Config,
) *Orchestrator {
    if cfg.AttemptTimeout <= 0 {
        cfg.AttemptTimeout = 10 * time.Minute
    }
    if cfg.LockWait <= 0 {
        cfg.LockWait = cfg.AttemptTimeout
    }
    if cfg.SessionBackoff <= 0 {
        cfg.SessionBackoff = time.Second
    }
    if cfg.PageSize <= 0 {
        cfg.PageSize = 100
    }
    if cfg.SystemOf == nil {
        cfg.SystemOf = func(string, domain.InstanceLevel) string { return "pje" }
    }
    return &Orchestrator{
        creds:       creds,
        sessions:    sessions,
        locker:      locker,
        rawLogs:     rawLogs,
        captureLogs: captureLogs,
        persister:   persister,
        fetcher:     fetcher,
        cfg:         cfg,
        now:         time.Now,
    }
}

// attempt carries the state of one run between its steps.
type attempt struct {
    req       domain.CaptureRequest
    system    string
    cred      domain.Credential
    startedAt time.Time

    records  []domain.RawRecord
    fetched  int
    reported int
    pages    int
    complete bool
    fetchErr error
}

// Run executes one Capture Attempt. Every valid request leaves a raw log entry, including
// one that never obtained the tuple lock. The returned error is non-nil when the request
// is invalid, the lock could not be acquired or the raw log could not be stored.
func (o *Orchestrator) Run(ctx context.Context, req domain.CaptureRequest) (domain.CaptureOutcome, error) {
    if err := req.Validate(); err != nil {
        return domain.CaptureOutcome{Status: domain.StatusError, CaptureLogID: domain.NoCaptureLogID, Message: domain.Sanitize(err)}, err
    }
    req.Tribunal = domain.NormalizeTribunal(req.Tribunal)

    a := &attempt{req: req, system: o.cfg.SystemOf(req.Tribunal, req.Level), startedAt: o.now()}

    lockCtx, cancelLock := context.WithTimeout(ctx, o.cfg.LockWait)
    lease, err := o.locker.Acquire(lockCtx, req.LockKey())
    cancelLock()
    if err != nil {
        log.Printf("capture: lock %s not acquired: %v", req.LockKey(), err)
        a.fetchErr = err
        out, rerr := o.record(ctx, a)
        if rerr != nil {
            log.Printf("capture: %v", rerr)
        }
        return out, err
    }
    defer func() {
        if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
            log.Printf("capture: release lock %s: %v", req.LockKey(), err)
        }
    }()

    runCtx, cancelRun := context.WithCancel(ctx)
    defer cancelRun()
    go func() {
        select {
        case <-lease.Lost():
            log.Printf("capture: lock %s lost, cancelling attempt", req.LockKey())
            cancelRun()
        case <-runCtx.Done():
        }
    }()

    log.Printf("capture: start type=%s tribunal=%s level=%s lawyer=%s", req.Type, req.Tribunal, req.Level, req.LawyerID)

    o.acquireAndFetch(runCtx, a)
    return o.record(runCtx, a)
}

// acquireAndFetch resolves the credential, opens a session and drains the fetcher,
// all under the attempt deadline. Every failure lands in a.fetchErr.
func (o *Orchestrator) acquireAndFetch(ctx context.Context, a *attempt) {
    actx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
    defer cancel()

    cred, err := o.creds.GetCredential(actx, a.req.LawyerID, a.req.Tribunal, a.req.Level)
    if err != nil {
        a.fetchErr = fmt.Errorf("resolve credential: %w", err)
        return
    }
    if !cred.Active {
        a.fetchErr = &domain.AuthError{Kind: domain.InvalidCredential, Tribunal: a.req.Tribunal, Level: a.req.Level, Err: errors.New("credential inactive")}
        a.cred = cred
        return
    }
    a.cred = cred

    h, err := o.openSession(actx, cred)
    if err != nil {
        if domain.IsAuthKind(err, domain.InvalidCredential) {
            if derr := o.creds.DeactivateCredential(context.WithoutCancel(ctx), cred.ID, "portal rejected credential"); derr != nil {
                log.Printf("capture: deactivate credential %s: %v", cred.ID, derr)
            }
        }
        a.fetchErr = err
        return
    }
    defer o.sessions.Close(context.WithoutCancel(ctx), h)

    params := domain.FetchParams{PageSize: o.cfg.PageSize, Range: a.req.Range}
    stream := o.fetcher.Fetch(h, a.req.Type, params)
    for stream.Next(actx) {
        a.records = append(a.records, stream.Record())
    }
    a.fetched = stream.Count()
    a.reported = stream.Reported()
    a.pages = stream.Pages()
    a.complete = stream.Complete()
    a.fetchErr = stream.Err()
}

func (o *Orchestrator) openSession(ctx context.Context, cred domain.Credential) (*session.Handle, error) {
    var (
        h    *session.Handle
        last error
    )
    b := retry.WithMaxRetries(uint64(max(o.cfg.SessionRetries, 0)), retry.NewExponential(o.cfg.SessionBackoff))
    err := retry.Do(ctx, b, func(ctx context.Context) error {
        hh, err := o.sessions.Open(ctx, cred)
        if err != nil {
            last = err
            var ae *domain.AuthError
            if errors.As(err, &ae) && ae.Retryable() {
                log.Printf("capture: login %s/%s failed (%s), retrying", cred.Tribunal, cred.Level, ae.Kind)
                return retry.RetryableError(err)
            }
            return err
        }
        h = hh
        return nil
    })
    if err != nil {
        // a deadline hit while backing off reports the login failure that caused the wait
        if cancelled(err) && last != nil {
            return nil, last
        }
        return nil, err
    }
    return h, nil
}

func cancelled(err error) bool {
    return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// record writes the raw log, persists what was fetched and finalizes both logs.
func (o *Orchestrator) record(ctx context.Context, a *attempt) (domain.CaptureOutcome, error) {
    wctx := context.WithoutCancel(ctx)
    src := extraction.Source{System: a.system, Tribunal: a.req.Tribunal, Level: a.req.Level, Type: a.req.Type}

    var (
        payload json.RawMessage
        merged  mergeResult
    )
    if len(a.records) > 0 || a.fetchErr == nil {
        merged = mergeRecords(src, a.records)
        doc := domain.CapturePayload{
            CaptureType: a.req.Type,
            Tribunal:    a.req.Tribunal,
            Level:       a.req.Level,
            System:      a.system,
            Records:     merged.Records,
            Meta: domain.PayloadMeta{
                Fetched:    a.fetched,
                Reported:   a.reported,
                Pages:      a.pages,
                Complete:   a.complete,
                Duplicates: merged.Duplicates,
                Merged:     merged.Merged,
                Ambiguous:  merged.Ambiguous,
                FetchedAt:  o.now().UTC(),
            },
        }
        if doc.Records == nil {
            doc.Records = []json.RawMessage{}
        }
        b, err := json.Marshal(doc)
        if err != nil {
            return o.failOutcome(err), fmt.Errorf("encode payload: %w", err)
        }
        payload = b
    }

    captureLogID, err := o.captureLogs.CreateCaptureLog(wctx, domain.CaptureLog{
        CaptureType: a.req.Type,
        LawyerID:    a.req.LawyerID,
        Tribunal:    a.req.Tribunal,
        Level:       a.req.Level,
        Status:      domain.StatusPending,
        StartedAt:   a.startedAt,
    })
    if err != nil {
        log.Printf("capture: summary row: %v", err)
        captureLogID = domain.NoCaptureLogID
    }

    now := o.now()
    raw := domain.RawCaptureLog{
        ID:            uuid.NewString(),
        CaptureLogID:  captureLogID,
        CaptureType:   a.req.Type,
        LawyerID:      a.req.LawyerID,
        CredentialID:  a.cred.ID,
        Tribunal:      a.req.Tribunal,
        Level:         a.req.Level,
        Status:        domain.StatusPending,
        RequestParams: requestParams(a.req, o.cfg.PageSize),
        RawPayload:    payload,
        ErrorDetail:   domain.Sanitize(a.fetchErr),
        CreatedAt:     now,
        UpdatedAt:     now,
    }
    if err := o.rawLogs.InsertRawLog(wctx, raw); err != nil {
        o.completeSummary(wctx, captureLogID, domain.StatusError, domain.PersistenceSummary{})
        return o.failOutcome(err), fmt.Errorf("write raw log: %w", err)
    }
    if a.fetchErr != nil {
        log.Printf("capture: raw log %s fetch ended with %v", raw.ID, a.fetchErr)
    }

    var (
        status      domain.CaptureStatus
        summary     domain.ProcessedSummary
        errorDetail = raw.ErrorDetail
        message     string
    )
    switch {
    case payload == nil:
        status = domain.StatusError
    case cancelled(a.fetchErr):
        status = domain.StatusError
        summary.Skipped = "attempt deadline reached before persistence; use recovery to persist the stored payload"
    default:
        summary = o.persistAll(ctx, src, merged.Records)
        status = domain.StatusSuccess
        if !a.complete || summary.Errors > 0 {
            status = domain.StatusPartial
        }
        if cerr := ctx.Err(); cerr != nil {
            // failures after cancellation say nothing about the records
            status = domain.StatusError
            summary.Skipped = "attempt cancelled during persistence; use recovery to persist the stored payload"
            message = domain.Sanitize(cerr)
            if errorDetail == "" {
                errorDetail = message
            }
        }
    }

    var sumPtr *domain.ProcessedSummary
    if payload != nil {
        sumPtr = &summary
    }
    if err := o.rawLogs.FinalizeRawLog(wctx, raw.ID, status, sumPtr, errorDetail); err != nil {
        log.Printf("capture: finalize raw log %s: %v", raw.ID, err)
    }
    o.completeSummary(wctx, captureLogID, status, summary.PersistenceSummary)

    out := domain.CaptureOutcome{
        RawLogID:       raw.ID,
        CaptureLogID:   captureLogID,
        Status:         status,
        ProcessedCount: summary.Total,
        Summary:        summary.PersistenceSummary,
    }
    switch {
    case a.fetchErr != nil:
        out.Message = domain.Sanitize(a.fetchErr)
    case message != "":
        out.Message = message
    case summary.Errors > 0:
        out.Message = fmt.Sprintf("%d of %d records failed to persist", summary.Errors, summary.Total)
    }
    log.Printf("capture: done raw=%s status=%s records=%d created=%d updated=%d errors=%d",
        raw.ID, status, summary.Total, summary.Created, summary.Updated, summary.Errors)
    return out, nil
}

// persistAll persists each record independently; one failing record never stops the rest.
func (o *Orchestrator) persistAll(ctx context.Context, src extraction.Source, records []json.RawMessage) domain.ProcessedSummary {
    scope := persist.Scope{System: src.System, Tribunal: src.Tribunal, Level: src.Level}
    summary := domain.ProcessedSummary{Records: []domain.RecordResult{}}
    for _, u := range extraction.Extract(src, records) {
        res := o.persister.PersistUnit(ctx, scope, u, persist.All)
        summary.Add(res.Record())
    }
    return summary
}

func (o *Orchestrator) completeSummary(ctx context.Context, id int64, status domain.CaptureStatus, s domain.PersistenceSummary) {
    if id == domain.NoCaptureLogID {
        return
    }
    if err := o.captureLogs.CompleteCaptureLog(ctx, id, status, s); err != nil {
        log.Printf("capture: complete summary row %d: %v", id, err)
    }
}

func (o *Orchestrator) failOutcome(err error) domain.CaptureOutcome {
    return domain.CaptureOutcome{Status: domain.StatusError, CaptureLogID: domain.NoCaptureLogID, Message: domain.Sanitize(err)}
}

func requestParams(req domain.CaptureRequest, pageSize int) domain.CaptureParams {
    p := domain.CaptureParams{
        CaptureType: req.Type,
        LawyerID:    req.LawyerID,
        Tribunal:    req.Tribunal,
        Level:       req.Level,
        PageSize:    pageSize,
    }
    if req.Range != nil {
        if !req.Range.From.IsZero() {
            from := req.Range.From
            p.DateFrom = &from
        }
        if !req.Range.To.IsZero() {
            to := req.Range.To
            p.DateTo = &to
        }
    }
    return p
}
