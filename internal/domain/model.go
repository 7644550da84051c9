package domain

import (
    "encoding/json"
    "fmt"
    "strings"
    "time"
)

// Core domain models. Portal wire shapes stay in the extraction and portal packages;
// these types are what the stores and services exchange.

// Secret holds decrypted credential material. It never renders its value.
type Secret string

func (s Secret) String() string                 { return "[redacted]" }
func (s Secret) GoString() string               { return "domain.Secret([redacted])" }
func (s Secret) MarshalJSON() ([]byte, error)   { return []byte(`"[redacted]"`), nil }
func (s Secret) Reveal() string                 { return string(s) }
func (s Secret) Empty() bool                    { return s == "" }

type Credential struct {
    ID       string
    LawyerID string
    Tribunal string
    Level    InstanceLevel
    Login    string
    Secret   Secret
    TOTPSeed Secret
    Active   bool
}

type DateRange struct {
    From time.Time `json:"from"`
    To   time.Time `json:"to"`
}

type CaptureRequest struct {
    LawyerID string        `json:"lawyerId"`
    Tribunal string        `json:"tribunal"`
    Level    InstanceLevel `json:"instanceLevel"`
    Type     CaptureType   `json:"captureType"`
    Range    *DateRange    `json:"dateRange,omitempty"`
}

func (r CaptureRequest) Validate() error {
    if strings.TrimSpace(r.LawyerID) == "" {
        return &ValidationError{Field: "lawyerId", Reason: "required"}
    }
    if strings.TrimSpace(r.Tribunal) == "" {
        return &ValidationError{Field: "tribunal", Reason: "required"}
    }
    if !r.Level.Valid() {
        return &ValidationError{Field: "instanceLevel", Reason: "invalid"}
    }
    if !r.Type.Valid() {
        return &ValidationError{Field: "captureType", Reason: "invalid"}
    }
    if r.Range != nil && !r.Range.From.IsZero() && !r.Range.To.IsZero() && r.Range.To.Before(r.Range.From) {
        return &ValidationError{Field: "dateRange", Reason: "end before start"}
    }
    return nil
}

// LockKey identifies the portal identity a capture or repersist works against.
func LockKey(lawyerID, tribunal string, level InstanceLevel) string {
    return fmt.Sprintf("capture:%s:%s:%s", lawyerID, NormalizeTribunal(tribunal), level.Code())
}

func (r CaptureRequest) LockKey() string { return LockKey(r.LawyerID, r.Tribunal, r.Level) }

// CaptureStatus is the outcome of a Capture Attempt. Pending is the window between
// the raw write and finalization; every other value is terminal.
type CaptureStatus string

const (
    StatusPending CaptureStatus = "pending"
    StatusSuccess CaptureStatus = "success"
    StatusPartial CaptureStatus = "partial"
    StatusError   CaptureStatus = "error"
)

func (s CaptureStatus) Terminal() bool {
    return s == StatusSuccess || s == StatusPartial || s == StatusError
}

func ParseCaptureStatus(s string) (CaptureStatus, error) {
    switch st := CaptureStatus(strings.ToLower(strings.TrimSpace(s))); st {
    case StatusPending, StatusSuccess, StatusPartial, StatusError:
        return st, nil
    }
    return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// NoCaptureLogID marks raw logs written before a summary row could exist.
const NoCaptureLogID int64 = -1

// CaptureParams is the request side of a raw log, minus anything secret.
type CaptureParams struct {
    CaptureType CaptureType   `json:"captureType"`
    LawyerID    string        `json:"lawyerId"`
    Tribunal    string        `json:"tribunal"`
    Level       InstanceLevel `json:"instanceLevel"`
    DateFrom    *time.Time    `json:"dateFrom,omitempty"`
    DateTo      *time.Time    `json:"dateTo,omitempty"`
    PageSize    int           `json:"pageSize"`
}

type RawCaptureLog struct {
    ID               string            `json:"rawLogId"`
    CaptureLogID     int64             `json:"captureLogId"`
    CaptureType      CaptureType       `json:"captureType"`
    LawyerID         string            `json:"lawyerId"`
    CredentialID     string            `json:"credentialId"`
    Tribunal         string            `json:"tribunal"`
    Level            InstanceLevel     `json:"instanceLevel"`
    Status           CaptureStatus     `json:"status"`
    RequestParams    CaptureParams     `json:"requestParams"`
    RawPayload       json.RawMessage   `json:"rawPayload,omitempty"`
    ProcessedSummary *ProcessedSummary `json:"processedSummary,omitempty"`
    ErrorDetail      string            `json:"errorDetail,omitempty"`
    CreatedAt        time.Time         `json:"createdAt"`
    UpdatedAt        time.Time         `json:"updatedAt"`
}

type RawLogFilter struct {
    CaptureType CaptureType
    Status      CaptureStatus
    Tribunal    string
    LawyerID    string
    Limit       int
}

// CapturePayload is the document stored as a raw log payload.
type CapturePayload struct {
    CaptureType CaptureType       `json:"captureType"`
    Tribunal    string            `json:"tribunal"`
    Level       InstanceLevel     `json:"instanceLevel"`
    System      string            `json:"system"`
    Records     []json.RawMessage `json:"records"`
    Meta        PayloadMeta       `json:"meta"`
}

type PayloadMeta struct {
    Fetched    int            `json:"fetched"`
    Reported   int            `json:"reported"`
    Pages      int            `json:"pages"`
    Complete   bool           `json:"complete"`
    Duplicates int            `json:"duplicates"`
    Merged     int            `json:"merged"`
    Ambiguous  []AmbiguousKey `json:"ambiguous,omitempty"`
    FetchedAt  time.Time      `json:"fetchedAt"`
}

// AmbiguousKey flags records (or timeline entries) sharing a natural key with different content.
type AmbiguousKey struct {
    Key     string   `json:"key"`
    Hashes  []string `json:"hashes"`
    Records []int    `json:"records"`
}

// RawRecord is one portal record as fetched, before merging.
type RawRecord struct {
    Page int
    Data json.RawMessage
}

type FetchParams struct {
    PageSize int
    Range    *DateRange
    Extra    map[string]string
}

// Page is one portal response. An empty Next ends the sequence.
type Page struct {
    Records  []json.RawMessage
    Next     string
    Reported int
}

// ElementKind names an addressable, persistable element of a payload.
type ElementKind string

const (
    KindProcess        ElementKind = "process"
    KindHearing        ElementKind = "hearing"
    KindPendingItem    ElementKind = "pending_item"
    KindParty          ElementKind = "party"
    KindAddress        ElementKind = "address"
    KindRepresentative ElementKind = "representative"
    KindTimelineEntry  ElementKind = "timeline_entry"
)

type UpsertResult struct {
    ID      int64
    Created bool
}

type Process struct {
    ID           int64
    NaturalKey   string
    Number       string
    Tribunal     string
    Level        InstanceLevel
    PortalID     int64
    Class        string
    Court        string
    Subject      string
    FiledAt      *time.Time
    Archived     *bool
    Confidential bool
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

type Hearing struct {
    ID         int64
    NaturalKey string
    ProcessID  int64
    PortalID   int64
    StartsAt   time.Time
    EndsAt     *time.Time
    Type       string
    Room       string
    Status     string
    URL        string
}

type PendingItem struct {
    ID             int64
    NaturalKey     string
    ProcessID      int64
    PortalItemID   int64
    Kind           string
    AcknowledgedAt *time.Time
    DueAt          *time.Time
    DeadlineDays   int
}

type Party struct {
    ID           int64
    NaturalKey   string
    Name         string
    DocumentType string
    Document     string
    PersonType   string
}

type Address struct {
    ID         int64
    NaturalKey string
    PartyID    int64
    Street     string
    Number     string
    Complement string
    District   string
    City       string
    State      string
    PostalCode string
}

type Representative struct {
    ID         int64
    NaturalKey string
    Name       string
    Document   string
    OAB        string
    Kind       string
}

type TimelineEntry struct {
    ID          int64
    NaturalKey  string
    ProcessID   int64
    Instance    InstanceLevel
    OccurredAt  time.Time
    Kind        string
    Title       string
    DocumentID  int64
    ContentHash string
}

type ProcessParty struct {
    ProcessID int64
    PartyID   int64
    Pole      Pole
    Role      string
}

type Representation struct {
    ProcessID        int64
    PartyID          int64
    RepresentativeID int64
}

// IdentityKey is the uniqueness tuple of an identity mapping.
type IdentityKey struct {
    EntityType     ElementKind
    PortalPersonID int64
    System         string
    Tribunal       string
    Level          InstanceLevel
}

type IdentityMapping struct {
    ID             int64
    EntityType     ElementKind
    EntityID       int64
    PortalPersonID int64
    System         string
    Tribunal       string
    Level          InstanceLevel
    ExtraData      map[string]any
    CreatedAt      time.Time
}

func (m IdentityMapping) Key() IdentityKey {
    return IdentityKey{EntityType: m.EntityType, PortalPersonID: m.PortalPersonID, System: m.System, Tribunal: m.Tribunal, Level: m.Level}
}

// CaptureLog is the relational summary row of one attempt.
type CaptureLog struct {
    ID          int64
    CaptureType CaptureType
    LawyerID    string
    Tribunal    string
    Level       InstanceLevel
    Status      CaptureStatus
    Summary     PersistenceSummary
    StartedAt   time.Time
    FinishedAt  *time.Time
}

type PersistenceSummary struct {
    Total   int `json:"total"`
    Created int `json:"created"`
    Updated int `json:"updated"`
    Errors  int `json:"errors"`
}

type ElementFailure struct {
    Kind       ElementKind `json:"kind"`
    NaturalKey string      `json:"naturalKey"`
    Path       string      `json:"path"`
    Error      string      `json:"error"`
}

// RecordResult is the per-record entry of a processed summary.
type RecordResult struct {
    Index      int              `json:"index"`
    Kind       ElementKind      `json:"kind"`
    NaturalKey string           `json:"naturalKey"`
    OK         bool             `json:"ok"`
    Created    bool             `json:"created"`
    Elements   int              `json:"elements"`
    Failures   []ElementFailure `json:"failures,omitempty"`
}

type ProcessedSummary struct {
    PersistenceSummary
    Skipped string         `json:"skipped,omitempty"`
    Records []RecordResult `json:"records"`
}

func (s *ProcessedSummary) Add(r RecordResult) {
    s.Records = append(s.Records, r)
    s.Total++
    switch {
    case !r.OK:
        s.Errors++
    case r.Created:
        s.Created++
    default:
        s.Updated++
    }
}

type CaptureOutcome struct {
    RawLogID       string             `json:"rawLogId"`
    CaptureLogID   int64              `json:"captureLogId"`
    Status         CaptureStatus      `json:"status"`
    ProcessedCount int                `json:"processedCount"`
    Summary        PersistenceSummary `json:"persistenceSummary"`
    Message        string             `json:"message,omitempty"`
}

// CaptureJob is a queued or inline capture request.
type CaptureJob struct {
    ID            string
    Request       CaptureRequest
    Status        string // queued|running|completed|failed
    Attempts      int
    RawLogID      string
    OutcomeStatus CaptureStatus
    LastError     string
    QueuedAt      time.Time
    StartedAt     *time.Time
    FinishedAt    *time.Time
}

// Challenge describes one second-factor prompt.
type Challenge struct {
    CredentialID string
    LawyerID     string
    Tribunal     string
    Level        InstanceLevel
    Attempt      int
    Seed         Secret
}
