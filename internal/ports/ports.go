package ports

import (
    "context"

    "juscapture/internal/domain"
)

// Authenticator logs into a tribunal portal and returns a live session.
type Authenticator interface {
    Login(ctx context.Context, cred domain.Credential) (PortalSession, error)
}

// PortalSession is an authenticated transport context against one portal instance.
type PortalSession interface {
    FetchPage(ctx context.Context, captureType domain.CaptureType, params domain.FetchParams, cursor string) (domain.Page, error)
    Logout(ctx context.Context) error
}

// SecondFactorSource yields one-time codes. domain.ErrNoCode means none arrived in time.
type SecondFactorSource interface {
    Code(ctx context.Context, ch domain.Challenge) (string, error)
}

// Lease is a held per-tuple lock.
type Lease interface {
    Release(ctx context.Context) error
    // Lost is closed when a refresh finds the lock taken over.
    Lost() <-chan struct{}
}

type Locker interface {
    Acquire(ctx context.Context, key string) (Lease, error)
}

// Capturer runs one Capture Attempt.
type Capturer interface {
    Run(ctx context.Context, req domain.CaptureRequest) (domain.CaptureOutcome, error)
}

// Recovery is the read and repair side over raw capture logs.
type Recovery interface {
    Get(ctx context.Context, rawLogID string, analyzeGaps, includePayload bool) (domain.RecoveryView, error)
    Analyze(ctx context.Context, rawLogID string) (domain.GapReport, error)
    Elements(ctx context.Context, rawLogID string, filter domain.ElementFilter, mode domain.ListingMode) (domain.ElementListing, error)
    Repersist(ctx context.Context, rawLogID string, filter domain.ElementFilter) (domain.RepersistResult, error)
    List(ctx context.Context, filter domain.RawLogFilter) ([]domain.RawCaptureLog, error)
}

// CaptureQueue queues capture requests for the background workers.
type CaptureQueue interface {
    Enqueue(ctx context.Context, req domain.CaptureRequest) (jobID string, err error)
    Job(ctx context.Context, jobID string) (domain.CaptureJob, error)
}
