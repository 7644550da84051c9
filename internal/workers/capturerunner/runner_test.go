package capturerunner

import (
    "context"
    "fmt"
    "path/filepath"
    "sync"
    "testing"
    "time"

    "juscapture/internal/adapters/sqlite"
    "juscapture/internal/domain"
)

type fakeCapturer struct {
    mu    sync.Mutex
    calls []domain.CaptureRequest
    err   error
}

func (f *fakeCapturer) Run(ctx context.Context, req domain.CaptureRequest) (domain.CaptureOutcome, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.calls = append(f.calls, req)
    if f.err != nil {
        return domain.CaptureOutcome{}, f.err
    }
    return domain.CaptureOutcome{RawLogID: fmt.Sprintf("raw-%d", len(f.calls)), Status: domain.StatusSuccess}, nil
}

func (f *fakeCapturer) count() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.calls)
}

func openStore(t *testing.T) *sqlite.Store {
    t.Helper()
    s, err := sqlite.Open(filepath.Join(t.TempDir(), "jobs.db"), nil)
    if err != nil {
        t.Fatalf("open: %v", err)
    }
    t.Cleanup(func() { _ = s.Close() })
    return s
}

func request(lawyer string) domain.CaptureRequest {
    return domain.CaptureRequest{LawyerID: lawyer, Tribunal: "TRT2", Level: domain.LevelFirst, Type: domain.CaptureDocket}
}

func TestProcessInlineCompletesJob(t *testing.T) {
    store := openStore(t)
    capturer := &fakeCapturer{}
    jobID, outcome, err := ProcessInline(context.Background(), store, capturer, request("l1"))
    if err != nil {
        t.Fatalf("inline: %v", err)
    }
    job, err := store.GetJob(context.Background(), jobID)
    if err != nil {
        t.Fatalf("get: %v", err)
    }
    if job.Status != "completed" || job.RawLogID != outcome.RawLogID || job.OutcomeStatus != domain.StatusSuccess {
        t.Fatalf("unexpected job: %+v", job)
    }
}

func TestProcessInlineRecordsFailure(t *testing.T) {
    store := openStore(t)
    capturer := &fakeCapturer{err: domain.ErrLockTimeout}
    jobID, _, err := ProcessInline(context.Background(), store, capturer, request("l1"))
    if err == nil {
        t.Fatal("expected error")
    }
    job, _ := store.GetJob(context.Background(), jobID)
    if job.Status != "failed" || job.LastError != domain.Sanitize(domain.ErrLockTimeout) {
        t.Fatalf("unexpected job: %+v", job)
    }
}

func TestRunDrainsQueue(t *testing.T) {
    store := openStore(t)
    capturer := &fakeCapturer{}
    var ids []string
    for _, l := range []string{"l1", "l2", "l3"} {
        id, err := store.EnqueueJob(context.Background(), request(l))
        if err != nil {
            t.Fatalf("enqueue: %v", err)
        }
        ids = append(ids, id)
    }

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() {
        Run(ctx, store, capturer, 2, 5*time.Millisecond)
        close(done)
    }()
    deadline := time.After(5 * time.Second)
    for capturer.count() < 3 {
        select {
        case <-deadline:
            t.Fatalf("only %d jobs ran", capturer.count())
        case <-time.After(5 * time.Millisecond):
        }
    }
    cancel()
    <-done

    for _, id := range ids {
        job, err := store.GetJob(context.Background(), id)
        if err != nil || job.Status != "completed" {
            t.Fatalf("job %s: %+v %v", id, job, err)
        }
    }
}
