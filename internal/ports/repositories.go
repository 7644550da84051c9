package ports

import (
    "context"
    "time"

    "juscapture/internal/domain"
)

// RawLogRepository is the append-only Raw Capture Log Store. Payloads are written once
// by InsertRawLog; FinalizeRawLog only moves a pending entry to a terminal status.
type RawLogRepository interface {
    InsertRawLog(ctx context.Context, log domain.RawCaptureLog) error
    FinalizeRawLog(ctx context.Context, id string, status domain.CaptureStatus, summary *domain.ProcessedSummary, errorDetail string) error
    GetRawLog(ctx context.Context, id string) (domain.RawCaptureLog, error)
    // ListRawLogs returns entries newest first without their payloads.
    ListRawLogs(ctx context.Context, filter domain.RawLogFilter) ([]domain.RawCaptureLog, error)
}

// CaptureLogRepository stores the relational summary row of each attempt.
type CaptureLogRepository interface {
    CreateCaptureLog(ctx context.Context, log domain.CaptureLog) (int64, error)
    CompleteCaptureLog(ctx context.Context, id int64, status domain.CaptureStatus, summary domain.PersistenceSummary) error
}

// EntityRepository upserts normalized entities by natural key. Upserts never blank out
// a known column with an empty value and always bump updated_at. A unique violation
// that survives the upsert surfaces as domain.ErrConflict.
type EntityRepository interface {
    UpsertProcess(ctx context.Context, p domain.Process) (domain.UpsertResult, error)
    UpsertHearing(ctx context.Context, h domain.Hearing) (domain.UpsertResult, error)
    UpsertPendingItem(ctx context.Context, p domain.PendingItem) (domain.UpsertResult, error)
    UpsertParty(ctx context.Context, p domain.Party) (domain.UpsertResult, error)
    UpsertAddress(ctx context.Context, a domain.Address) (domain.UpsertResult, error)
    UpsertRepresentative(ctx context.Context, r domain.Representative) (domain.UpsertResult, error)
    UpsertTimelineEntry(ctx context.Context, e domain.TimelineEntry) (domain.UpsertResult, error)
    LinkProcessParty(ctx context.Context, link domain.ProcessParty) error
    LinkRepresentation(ctx context.Context, link domain.Representation) error
    // LookupEntity resolves a natural key to an entity id.
    LookupEntity(ctx context.Context, kind domain.ElementKind, naturalKey string) (id int64, found bool, err error)
    // EntityKey is the reverse lookup used after an identity mapping hit.
    EntityKey(ctx context.Context, kind domain.ElementKind, id int64) (naturalKey string, found bool, err error)
}

// IdentityRepository stores portal person id → entity mappings.
type IdentityRepository interface {
    FindMapping(ctx context.Context, key domain.IdentityKey) (domain.IdentityMapping, bool, error)
    // CreateMapping returns domain.ErrConflict when the key already exists.
    CreateMapping(ctx context.Context, m domain.IdentityMapping) (domain.IdentityMapping, error)
}

// LockRepository backs the distributed, expiring per-tuple lock.
type LockRepository interface {
    // TryAcquire takes the lock when free or expired.
    TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
    // Refresh extends the deadline; false means the lock is no longer ours.
    Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
    Release(ctx context.Context, key, owner string) error
}

// CredentialStore resolves decrypted credentials. Secrets are decrypted in memory only.
type CredentialStore interface {
    GetCredential(ctx context.Context, lawyerID, tribunal string, level domain.InstanceLevel) (domain.Credential, error)
    DeactivateCredential(ctx context.Context, credentialID, reason string) error
}

// CredentialWriter seals and stores a credential (operator tooling only).
type CredentialWriter interface {
    PutCredential(ctx context.Context, c domain.Credential) (string, error)
}

// Store is everything a database adapter provides.
type Store interface {
    RawLogRepository
    CaptureLogRepository
    EntityRepository
    IdentityRepository
    LockRepository
    JobRepository
}
