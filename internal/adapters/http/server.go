package httpadapter

import (
    "context"
    "errors"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/oapi-codegen/runtime"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
    "juscapture/internal/workers/capturerunner"
)

// Server exposes capture triggers and the recovery API.
type Server struct {
    queue    ports.CaptureQueue
    capturer ports.Capturer
    jobs     ports.JobRepository
    recovery ports.Recovery
}

func New(queue ports.CaptureQueue, capturer ports.Capturer, jobs ports.JobRepository, recovery ports.Recovery) *Server {
    return &Server{queue: queue, capturer: capturer, jobs: jobs, recovery: recovery}
}

// Routes returns a chi.Router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
    r := chi.NewRouter()
    r.Use(withRequestID, middleware.Recoverer)
    r.Get("/healthz", s.getHealthz)
    r.Post("/captures/{captureType}", s.postCapture)
    r.Get("/captures/jobs/{jobId}", s.getCaptureJob)
    r.Get("/recovery", s.listRecovery)
    r.Get("/recovery/{rawLogId}", s.getRecovery)
    r.Get("/recovery/{rawLogId}/elements", s.getRecoveryElements)
    r.Post("/recovery/{rawLogId}/repersist", s.postRepersist)
    return r
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
    WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type captureBody struct {
    LawyerID      string `json:"lawyerId"`
    Tribunal      string `json:"tribunal"`
    InstanceLevel string `json:"instanceLevel"`
    DateFrom      string `json:"dateFrom,omitempty"`
    DateTo        string `json:"dateTo,omitempty"`
}

func (b captureBody) request(ct domain.CaptureType) (domain.CaptureRequest, error) {
    level, err := domain.ParseInstanceLevel(b.InstanceLevel)
    if err != nil {
        return domain.CaptureRequest{}, err
    }
    req := domain.CaptureRequest{LawyerID: b.LawyerID, Tribunal: b.Tribunal, Level: level, Type: ct}
    if b.DateFrom != "" || b.DateTo != "" {
        req.Range = &domain.DateRange{}
        if req.Range.From, err = parseDate("dateFrom", b.DateFrom); err != nil {
            return req, err
        }
        if req.Range.To, err = parseDate("dateTo", b.DateTo); err != nil {
            return req, err
        }
    }
    return req, req.Validate()
}

func parseDate(field, s string) (time.Time, error) {
    if s == "" {
        return time.Time{}, nil
    }
    for _, layout := range []string{time.RFC3339, "2006-01-02"} {
        if t, err := time.Parse(layout, s); err == nil {
            return t, nil
        }
    }
    return time.Time{}, &domain.ValidationError{Field: field, Reason: "expected YYYY-MM-DD or RFC 3339"}
}

type captureResponse struct {
    JobID string `json:"jobId"`
    domain.CaptureOutcome
}

func (s *Server) postCapture(w http.ResponseWriter, r *http.Request) {
    var rawType string
    if err := runtime.BindStyledParameterWithOptions("simple", "captureType", chi.URLParam(r, "captureType"), &rawType,
        runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true}); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return
    }
    ct, err := domain.ParseCaptureType(rawType)
    if err != nil {
        s.fail(w, r, err)
        return
    }
    var wait *bool
    if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return
    }
    var body captureBody
    if err := ReadJSON(r, &body); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: "invalid body"})
        return
    }
    req, err := body.request(ct)
    if err != nil {
        s.fail(w, r, err)
        return
    }

    if wait != nil && !*wait {
        id, err := s.queue.Enqueue(r.Context(), req)
        if err != nil {
            s.fail(w, r, err)
            return
        }
        WriteJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
        return
    }
    // Blocking path: the attempt outlives a dropped client, bounded by its own deadline.
    jobID, outcome, err := capturerunner.ProcessInline(context.WithoutCancel(r.Context()), s.jobs, s.capturer, req)
    if err != nil {
        s.fail(w, r, err)
        return
    }
    WriteJSON(w, http.StatusOK, captureResponse{JobID: jobID, CaptureOutcome: outcome})
}

type jobView struct {
    ID            string                `json:"jobId"`
    Status        string                `json:"status"`
    Request       domain.CaptureRequest `json:"request"`
    Attempts      int                   `json:"attempts"`
    RawLogID      string                `json:"rawLogId,omitempty"`
    OutcomeStatus domain.CaptureStatus  `json:"outcomeStatus,omitempty"`
    Message       string                `json:"message,omitempty"`
    QueuedAt      time.Time             `json:"queuedAt"`
    StartedAt     *time.Time            `json:"startedAt,omitempty"`
    FinishedAt    *time.Time            `json:"finishedAt,omitempty"`
}

func (s *Server) getCaptureJob(w http.ResponseWriter, r *http.Request) {
    var id string
    if err := runtime.BindStyledParameterWithOptions("simple", "jobId", chi.URLParam(r, "jobId"), &id,
        runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true}); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return
    }
    job, err := s.queue.Job(r.Context(), id)
    if err != nil {
        s.fail(w, r, err)
        return
    }
    WriteJSON(w, http.StatusOK, jobView{
        ID: job.ID, Status: job.Status, Request: job.Request, Attempts: job.Attempts,
        RawLogID: job.RawLogID, OutcomeStatus: job.OutcomeStatus, Message: job.LastError,
        QueuedAt: job.QueuedAt, StartedAt: job.StartedAt, FinishedAt: job.FinishedAt,
    })
}

func (s *Server) listRecovery(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    var (
        captureType, status, tribunal, lawyerID *string
        limit                                   *int
    )
    for name, dest := range map[string]any{
        "captureType": &captureType, "status": &status, "tribunal": &tribunal, "lawyerId": &lawyerID, "limit": &limit,
    } {
        if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
            s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
            return
        }
    }
    var f domain.RawLogFilter
    var err error
    if captureType != nil {
        if f.CaptureType, err = domain.ParseCaptureType(*captureType); err != nil {
            s.fail(w, r, err)
            return
        }
    }
    if status != nil {
        if f.Status, err = domain.ParseCaptureStatus(*status); err != nil {
            s.fail(w, r, err)
            return
        }
    }
    if tribunal != nil {
        f.Tribunal = domain.NormalizeTribunal(*tribunal)
    }
    if lawyerID != nil {
        f.LawyerID = *lawyerID
    }
    if limit != nil {
        f.Limit = *limit
    }
    logs, err := s.recovery.List(r.Context(), f)
    if err != nil {
        s.fail(w, r, err)
        return
    }
    if logs == nil {
        logs = []domain.RawCaptureLog{}
    }
    WriteJSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (s *Server) rawLogID(w http.ResponseWriter, r *http.Request) (string, bool) {
    var id string
    if err := runtime.BindStyledParameterWithOptions("simple", "rawLogId", chi.URLParam(r, "rawLogId"), &id,
        runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true}); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return "", false
    }
    return id, true
}

func (s *Server) boolQuery(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
    var v *bool
    if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return false, false
    }
    return v != nil && *v, true
}

func (s *Server) getRecovery(w http.ResponseWriter, r *http.Request) {
    id, ok := s.rawLogID(w, r)
    if !ok {
        return
    }
    analyze, ok := s.boolQuery(w, r, "analyzeGaps")
    if !ok {
        return
    }
    include, ok := s.boolQuery(w, r, "includePayload")
    if !ok {
        return
    }
    view, err := s.recovery.Get(r.Context(), id, analyze, include)
    if err != nil {
        s.fail(w, r, err)
        return
    }
    WriteJSON(w, http.StatusOK, view)
}

func (s *Server) getRecoveryElements(w http.ResponseWriter, r *http.Request) {
    id, ok := s.rawLogID(w, r)
    if !ok {
        return
    }
    var filterParam, modeParam *string
    q := r.URL.Query()
    if err := runtime.BindQueryParameter("form", true, false, "filter", q, &filterParam); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return
    }
    if err := runtime.BindQueryParameter("form", true, false, "mode", q, &modeParam); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return
    }
    filter, err := domain.ParseElementFilter(deref(filterParam))
    if err != nil {
        s.fail(w, r, err)
        return
    }
    mode, err := domain.ParseListingMode(deref(modeParam))
    if err != nil {
        s.fail(w, r, err)
        return
    }
    listing, err := s.recovery.Elements(r.Context(), id, filter, mode)
    if err != nil {
        s.fail(w, r, err)
        return
    }
    WriteJSON(w, http.StatusOK, listing)
}

func (s *Server) postRepersist(w http.ResponseWriter, r *http.Request) {
    id, ok := s.rawLogID(w, r)
    if !ok {
        return
    }
    var filterParam *string
    if err := runtime.BindQueryParameter("form", true, false, "filter", r.URL.Query(), &filterParam); err != nil {
        s.fail(w, r, &runtimeError{code: http.StatusBadRequest, msg: err.Error()})
        return
    }
    filter, err := domain.ParseElementFilter(deref(filterParam))
    if err != nil {
        s.fail(w, r, err)
        return
    }
    if filter == domain.FilterExisting {
        s.fail(w, r, &domain.ValidationError{Field: "filter", Reason: "repersist takes all or missing"})
        return
    }
    res, err := s.recovery.Repersist(context.WithoutCancel(r.Context()), id, filter)
    if err != nil {
        s.fail(w, r, err)
        return
    }
    WriteJSON(w, http.StatusOK, res)
}

func deref(s *string) string {
    if s == nil {
        return ""
    }
    return strings.TrimSpace(*s)
}

// fail maps err to a status code. Internal errors are logged with the request id and
// answered with a fixed message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
    var (
        rt *runtimeError
        ve *domain.ValidationError
    )
    switch {
    case errors.As(err, &rt):
        WriteError(w, r, rt.code, "bad_request", rt.msg)
    case errors.As(err, &ve):
        WriteError(w, r, http.StatusBadRequest, "invalid_request", ve.Error())
    case errors.Is(err, domain.ErrNotFound):
        WriteError(w, r, http.StatusNotFound, "not_found", "not found")
    case errors.Is(err, domain.ErrLockTimeout):
        WriteError(w, r, http.StatusConflict, "busy", domain.Sanitize(err))
    default:
        log.Printf("http: %s %s request_id=%s: %v", r.Method, r.URL.Path, requestID(r), err)
        WriteError(w, r, http.StatusInternalServerError, "internal", "internal error")
    }
}

type runtimeError struct {
    code int
    msg  string
}

func (e *runtimeError) Error() string { return e.msg }
