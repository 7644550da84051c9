package sqlite

import "time"

type rawLogRow struct {
    ID               string `gorm:"primaryKey;size:36"`
    CaptureLogID     int64  `gorm:"index"`
    CaptureType      string `gorm:"index;size:32"`
    LawyerID         string `gorm:"index;size:64"`
    CredentialID     string `gorm:"size:64"`
    Tribunal         string `gorm:"index;size:16"`
    Level            string `gorm:"size:16"`
    Status           string `gorm:"index;size:16"`
    RequestParams    string `gorm:"type:text"`
    RawPayload       *string `gorm:"type:text"`
    ProcessedSummary *string `gorm:"type:text"`
    ErrorDetail      string  `gorm:"type:text"`
    CreatedAt        time.Time `gorm:"index"`
    UpdatedAt        time.Time
}

func (rawLogRow) TableName() string { return "raw_capture_logs" }

type captureLogRow struct {
    ID          int64  `gorm:"primaryKey;autoIncrement"`
    CaptureType string `gorm:"size:32"`
    LawyerID    string `gorm:"index;size:64"`
    Tribunal    string `gorm:"size:16"`
    Level       string `gorm:"size:16"`
    Status      string `gorm:"index;size:16"`
    Total       int
    Created     int
    Updated     int
    Errors      int
    StartedAt   time.Time
    FinishedAt  *time.Time
}

func (captureLogRow) TableName() string { return "capture_logs" }

type processRow struct {
    ID           int64  `gorm:"primaryKey;autoIncrement"`
    NaturalKey   string `gorm:"uniqueIndex;size:255"`
    Number       string `gorm:"index;size:32"`
    Tribunal     string `gorm:"size:16"`
    Level        string `gorm:"size:16"`
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

func (processRow) TableName() string { return "processes" }

type hearingRow struct {
    ID         int64  `gorm:"primaryKey;autoIncrement"`
    NaturalKey string `gorm:"uniqueIndex;size:255"`
    ProcessID  int64  `gorm:"index"`
    PortalID   int64
    StartsAt   time.Time
    EndsAt     *time.Time
    Type       string
    Room       string
    Status     string
    URL        string
    CreatedAt  time.Time
    UpdatedAt  time.Time
}

func (hearingRow) TableName() string { return "hearings" }

type pendingRow struct {
    ID             int64  `gorm:"primaryKey;autoIncrement"`
    NaturalKey     string `gorm:"uniqueIndex;size:255"`
    ProcessID      int64  `gorm:"index"`
    PortalItemID   int64
    Kind           string
    AcknowledgedAt *time.Time
    DueAt          *time.Time
    DeadlineDays   int
    CreatedAt      time.Time
    UpdatedAt      time.Time
}

func (pendingRow) TableName() string { return "pending_items" }

type partyRow struct {
    ID           int64  `gorm:"primaryKey;autoIncrement"`
    NaturalKey   string `gorm:"uniqueIndex;size:255"`
    Name         string
    DocumentType string `gorm:"size:8"`
    Document     string `gorm:"size:32"`
    PersonType   string `gorm:"size:16"`
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

func (partyRow) TableName() string { return "parties" }

type addressRow struct {
    ID         int64  `gorm:"primaryKey;autoIncrement"`
    NaturalKey string `gorm:"uniqueIndex;size:512"`
    PartyID    int64  `gorm:"index"`
    Street     string
    Number     string
    Complement string
    District   string
    City       string
    State      string `gorm:"size:2"`
    PostalCode string `gorm:"size:9"`
    CreatedAt  time.Time
    UpdatedAt  time.Time
}

func (addressRow) TableName() string { return "addresses" }

type representativeRow struct {
    ID         int64  `gorm:"primaryKey;autoIncrement"`
    NaturalKey string `gorm:"uniqueIndex;size:255"`
    Name       string
    Document   string `gorm:"size:32"`
    OAB        string `gorm:"column:oab;size:32"`
    Kind       string `gorm:"size:32"`
    CreatedAt  time.Time
    UpdatedAt  time.Time
}

func (representativeRow) TableName() string { return "representatives" }

type timelineRow struct {
    ID          int64  `gorm:"primaryKey;autoIncrement"`
    NaturalKey  string `gorm:"uniqueIndex;size:512"`
    ProcessID   int64  `gorm:"index"`
    Instance    string `gorm:"size:16"`
    OccurredAt  time.Time
    Kind        string
    Title       string
    DocumentID  int64
    ContentHash string `gorm:"size:64"`
    CreatedAt   time.Time
    UpdatedAt   time.Time
}

func (timelineRow) TableName() string { return "timeline_entries" }

type processPartyRow struct {
    ProcessID int64  `gorm:"primaryKey"`
    PartyID   int64  `gorm:"primaryKey"`
    Pole      string `gorm:"primaryKey;size:16"`
    Role      string
    CreatedAt time.Time
    UpdatedAt time.Time
}

func (processPartyRow) TableName() string { return "process_parties" }

type representationRow struct {
    ProcessID        int64 `gorm:"primaryKey"`
    PartyID          int64 `gorm:"primaryKey"`
    RepresentativeID int64 `gorm:"primaryKey"`
    CreatedAt        time.Time
    UpdatedAt        time.Time
}

func (representationRow) TableName() string { return "party_representatives" }

type identityRow struct {
    ID             int64  `gorm:"primaryKey;autoIncrement"`
    EntityType     string `gorm:"uniqueIndex:uniq_identity;size:32"`
    PortalPersonID int64  `gorm:"uniqueIndex:uniq_identity"`
    System         string `gorm:"uniqueIndex:uniq_identity;size:16"`
    Tribunal       string `gorm:"uniqueIndex:uniq_identity;size:16"`
    Level          string `gorm:"uniqueIndex:uniq_identity;size:16"`
    EntityID       int64  `gorm:"index"`
    ExtraData      string `gorm:"type:text"`
    CreatedAt      time.Time
}

func (identityRow) TableName() string { return "identity_mappings" }

type lockRow struct {
    Key       string `gorm:"column:lock_key;primaryKey;size:255"`
    Owner     string `gorm:"size:36"`
    ExpiresAt time.Time
}

func (lockRow) TableName() string { return "capture_locks" }

type jobRow struct {
    ID            string `gorm:"primaryKey;size:36"`
    LawyerID      string `gorm:"size:64"`
    Tribunal      string `gorm:"size:16"`
    Level         string `gorm:"size:16"`
    CaptureType   string `gorm:"size:32"`
    DateFrom      *time.Time
    DateTo        *time.Time
    Status        string `gorm:"index;size:16"`
    Attempts      int
    RawLogID      string `gorm:"size:36"`
    OutcomeStatus string `gorm:"size:16"`
    LastError     string `gorm:"type:text"`
    QueuedAt      time.Time `gorm:"index"`
    StartedAt     *time.Time
    FinishedAt    *time.Time
}

func (jobRow) TableName() string { return "capture_jobs" }

type credentialRow struct {
    ID                string `gorm:"primaryKey;size:36"`
    LawyerID          string `gorm:"uniqueIndex:uniq_credential;size:64"`
    Tribunal          string `gorm:"uniqueIndex:uniq_credential;size:16"`
    Level             string `gorm:"uniqueIndex:uniq_credential;size:16"`
    Login             string
    SecretSealed      []byte
    TOTPSealed        []byte `gorm:"column:totp_sealed"`
    Active            bool
    DeactivatedReason string
    CreatedAt         time.Time
    UpdatedAt         time.Time
}

func (credentialRow) TableName() string { return "credentials" }
