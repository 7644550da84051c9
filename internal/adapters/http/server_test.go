package httpadapter

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "juscapture/internal/domain"
)

type fakeQueue struct {
    enqueued []domain.CaptureRequest
}

func (f *fakeQueue) Enqueue(ctx context.Context, req domain.CaptureRequest) (string, error) {
    f.enqueued = append(f.enqueued, req)
    return "job-q", nil
}

func (f *fakeQueue) Job(ctx context.Context, id string) (domain.CaptureJob, error) {
    if id != "job-q" {
        return domain.CaptureJob{}, domain.ErrNotFound
    }
    return domain.CaptureJob{ID: id, Status: "queued", QueuedAt: time.Now()}, nil
}

type fakeCapturer struct {
    outcome domain.CaptureOutcome
    err     error
    got     domain.CaptureRequest
}

func (f *fakeCapturer) Run(ctx context.Context, req domain.CaptureRequest) (domain.CaptureOutcome, error) {
    f.got = req
    return f.outcome, f.err
}

type fakeJobs struct {
    mu       sync.Mutex
    finished map[string]string
}

func (f *fakeJobs) EnqueueJob(context.Context, domain.CaptureRequest) (string, error) { return "", nil }
func (f *fakeJobs) ClaimNext(context.Context) (domain.CaptureJob, bool, error) {
    return domain.CaptureJob{}, false, nil
}
func (f *fakeJobs) StartJob(context.Context, domain.CaptureRequest) (string, error) { return "job-i", nil }
func (f *fakeJobs) MarkCompleted(_ context.Context, id string, _ domain.CaptureOutcome) error {
    f.mark(id, "completed")
    return nil
}
func (f *fakeJobs) MarkFailed(_ context.Context, id string, _ string) error {
    f.mark(id, "failed")
    return nil
}
func (f *fakeJobs) GetJob(context.Context, string) (domain.CaptureJob, error) {
    return domain.CaptureJob{}, domain.ErrNotFound
}
func (f *fakeJobs) mark(id, status string) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.finished == nil {
        f.finished = map[string]string{}
    }
    f.finished[id] = status
}

type fakeRecovery struct {
    repersistFilter domain.ElementFilter
    listFilter      domain.RawLogFilter
}

func (f *fakeRecovery) Get(ctx context.Context, id string, analyze, include bool) (domain.RecoveryView, error) {
    if id != "r1" {
        return domain.RecoveryView{}, domain.ErrNotFound
    }
    v := domain.RecoveryView{Log: domain.RawCaptureLog{ID: id, Status: domain.StatusPartial}}
    if analyze {
        v.GapReport = &domain.GapReport{RawLogID: id, PayloadAvailable: true, Totals: domain.GapTotals{Total: 2, Existing: 1, Missing: 1}}
    }
    if include {
        v.RawPayload = json.RawMessage(`{"records":[]}`)
    }
    return v, nil
}

func (f *fakeRecovery) Analyze(ctx context.Context, id string) (domain.GapReport, error) {
    return domain.GapReport{RawLogID: id}, nil
}

func (f *fakeRecovery) Elements(ctx context.Context, id string, filter domain.ElementFilter, mode domain.ListingMode) (domain.ElementListing, error) {
    return domain.ElementListing{RawLogID: id, Filter: filter, Mode: mode}, nil
}

func (f *fakeRecovery) Repersist(ctx context.Context, id string, filter domain.ElementFilter) (domain.RepersistResult, error) {
    f.repersistFilter = filter
    if id == "busy" {
        return domain.RepersistResult{}, domain.ErrLockTimeout
    }
    return domain.RepersistResult{RawLogID: id, Filter: filter, Selected: 1, Persisted: 1}, nil
}

func (f *fakeRecovery) List(ctx context.Context, filter domain.RawLogFilter) ([]domain.RawCaptureLog, error) {
    f.listFilter = filter
    return nil, nil
}

type fixture struct {
    srv      http.Handler
    queue    *fakeQueue
    capturer *fakeCapturer
    jobs     *fakeJobs
    recovery *fakeRecovery
}

func newFixture() fixture {
    f := fixture{
        queue:    &fakeQueue{},
        capturer: &fakeCapturer{outcome: domain.CaptureOutcome{RawLogID: "r1", Status: domain.StatusSuccess, ProcessedCount: 3}},
        jobs:     &fakeJobs{},
        recovery: &fakeRecovery{},
    }
    f.srv = New(f.queue, f.capturer, f.jobs, f.recovery).Routes()
    return f
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
    t.Helper()
    req := httptest.NewRequest(method, target, strings.NewReader(body))
    rec := httptest.NewRecorder()
    f.srv.ServeHTTP(rec, req)
    return rec
}

const captureJSON = `{"lawyerId":"l1","tribunal":"trt2","instanceLevel":"primeiro_grau","dateFrom":"2026-01-01"}`

func TestPostCaptureWaits(t *testing.T) {
    f := newFixture()
    rec := f.do(t, http.MethodPost, "/captures/acervo_geral", captureJSON)
    if rec.Code != http.StatusOK {
        t.Fatalf("status %d: %s", rec.Code, rec.Body)
    }
    var got captureResponse
    if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if got.JobID != "job-i" || got.RawLogID != "r1" || got.Status != domain.StatusSuccess {
        t.Fatalf("unexpected response %+v", got)
    }
    if f.capturer.got.Level != domain.LevelFirst || f.capturer.got.Range == nil {
        t.Fatalf("request not parsed: %+v", f.capturer.got)
    }
    if f.jobs.finished["job-i"] != "completed" {
        t.Fatalf("inline job not completed: %v", f.jobs.finished)
    }
}

func TestPostCaptureQueues(t *testing.T) {
    f := newFixture()
    rec := f.do(t, http.MethodPost, "/captures/audiencias?wait=false", captureJSON)
    if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), "job-q") {
        t.Fatalf("status %d: %s", rec.Code, rec.Body)
    }
    if len(f.queue.enqueued) != 1 || f.queue.enqueued[0].Type != domain.CaptureHearings {
        t.Fatalf("enqueued %+v", f.queue.enqueued)
    }
}

func TestPostCaptureRejectsBadInput(t *testing.T) {
    f := newFixture()
    for _, tc := range []struct{ target, body string }{
        {"/captures/unknown", captureJSON},
        {"/captures/acervo_geral", `{"lawyerId":"l1","tribunal":"trt2","instanceLevel":"quinto"}`},
        {"/captures/acervo_geral", `{"lawyerId":"","tribunal":"trt2","instanceLevel":"1"}`},
        {"/captures/acervo_geral?wait=maybe", captureJSON},
        {"/captures/acervo_geral", `{"lawyerId":"l1","tribunal":"trt2","instanceLevel":"1","dateFrom":"yesterday"}`},
        {"/captures/acervo_geral", `{"unexpected":true}`},
    } {
        if rec := f.do(t, http.MethodPost, tc.target, tc.body); rec.Code != http.StatusBadRequest {
            t.Fatalf("%s %s: status %d", tc.target, tc.body, rec.Code)
        }
    }
}

func TestPostCaptureLockBusy(t *testing.T) {
    f := newFixture()
    f.capturer.err = domain.ErrLockTimeout
    rec := f.do(t, http.MethodPost, "/captures/acervo_geral", captureJSON)
    if rec.Code != http.StatusConflict {
        t.Fatalf("status %d", rec.Code)
    }
    if f.jobs.finished["job-i"] != "failed" {
        t.Fatalf("job not failed: %v", f.jobs.finished)
    }
}

func TestCaptureJob(t *testing.T) {
    f := newFixture()
    if rec := f.do(t, http.MethodGet, "/captures/jobs/job-q", ""); rec.Code != http.StatusOK {
        t.Fatalf("status %d", rec.Code)
    }
    rec := f.do(t, http.MethodGet, "/captures/jobs/nope", "")
    if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "request_id") {
        t.Fatalf("status %d: %s", rec.Code, rec.Body)
    }
}

func TestRecoveryEndpoints(t *testing.T) {
    f := newFixture()

    rec := f.do(t, http.MethodGet, "/recovery/r1?analyzeGaps=true", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("get: status %d", rec.Code)
    }
    var view domain.RecoveryView
    _ = json.Unmarshal(rec.Body.Bytes(), &view)
    if view.GapReport == nil || view.GapReport.Totals.Missing != 1 || view.RawPayload != nil {
        t.Fatalf("unexpected view %s", rec.Body)
    }
    if rec := f.do(t, http.MethodGet, "/recovery/missing", ""); rec.Code != http.StatusNotFound {
        t.Fatalf("missing: status %d", rec.Code)
    }

    rec = f.do(t, http.MethodGet, "/recovery/r1/elements?filter=missing&mode=byPartyKind", "")
    var listing domain.ElementListing
    _ = json.Unmarshal(rec.Body.Bytes(), &listing)
    if rec.Code != http.StatusOK || listing.Filter != domain.FilterMissing || listing.Mode != domain.ModeByPartyKind {
        t.Fatalf("elements: %d %s", rec.Code, rec.Body)
    }
    if rec := f.do(t, http.MethodGet, "/recovery/r1/elements?filter=bogus", ""); rec.Code != http.StatusBadRequest {
        t.Fatalf("bad filter: status %d", rec.Code)
    }

    if rec := f.do(t, http.MethodPost, "/recovery/r1/repersist?filter=missing", ""); rec.Code != http.StatusOK || f.recovery.repersistFilter != domain.FilterMissing {
        t.Fatalf("repersist: %d filter=%s", rec.Code, f.recovery.repersistFilter)
    }
    if rec := f.do(t, http.MethodPost, "/recovery/r1/repersist?filter=existing", ""); rec.Code != http.StatusBadRequest {
        t.Fatalf("repersist existing: status %d", rec.Code)
    }
    if rec := f.do(t, http.MethodPost, "/recovery/busy/repersist", ""); rec.Code != http.StatusConflict {
        t.Fatalf("repersist busy: status %d", rec.Code)
    }

    rec = f.do(t, http.MethodGet, "/recovery?captureType=pendentes_manifestacao&status=error&tribunal=trt2&limit=5", "")
    if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"items":[]`) {
        t.Fatalf("list: %d %s", rec.Code, rec.Body)
    }
    lf := f.recovery.listFilter
    if lf.CaptureType != domain.CapturePending || lf.Status != domain.StatusError || lf.Tribunal != "TRT2" || lf.Limit != 5 {
        t.Fatalf("list filter %+v", lf)
    }
    if rec := f.do(t, http.MethodGet, "/recovery?limit=abc", ""); rec.Code != http.StatusBadRequest {
        t.Fatalf("bad limit: status %d", rec.Code)
    }
}

func TestHealthz(t *testing.T) {
    f := newFixture()
    rec := f.do(t, http.MethodGet, "/healthz", "")
    if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
        t.Fatalf("healthz: %d %v", rec.Code, rec.Header())
    }
}
