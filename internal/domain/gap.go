package domain

import "encoding/json"

type PersistenceStatus string

const (
    StatusExisting PersistenceStatus = "existing"
    StatusMissing  PersistenceStatus = "missing"
)

// Element is one addressable item of a raw payload. Path is its position in the
// payload ("records[2].poloAtivo[0].enderecos[1]") and is unique per payload.
type Element struct {
    Kind           ElementKind `json:"kind"`
    NaturalKey     string      `json:"naturalKey"`
    Path           string      `json:"path"`
    Record         int         `json:"record"`
    Label          string      `json:"label,omitempty"`
    PortalPersonID int64       `json:"portalPersonId,omitempty"`
    Pole           Pole        `json:"pole,omitempty"`
}

type ElementStatus struct {
    Element
    Status PersistenceStatus `json:"persistenceStatus"`
}

type GapTotals struct {
    Total    int `json:"total"`
    Existing int `json:"existing"`
    Missing  int `json:"missing"`
}

func (t *GapTotals) Count(s PersistenceStatus) {
    t.Total++
    if s == StatusExisting {
        t.Existing++
    } else {
        t.Missing++
    }
}

// GapReport is derived on demand from a raw log and the current relational state.
// Unreadable counts payload records that could not be extracted; they carry no elements.
type GapReport struct {
    RawLogID         string          `json:"rawLogId"`
    PayloadAvailable bool            `json:"payloadAvailable"`
    Totals           GapTotals       `json:"totals"`
    Unreadable       int             `json:"unreadable,omitempty"`
    Elements         []ElementStatus `json:"elements"`
}

type ElementFilter string

const (
    FilterAll      ElementFilter = "all"
    FilterMissing  ElementFilter = "missing"
    FilterExisting ElementFilter = "existing"
)

func ParseElementFilter(s string) (ElementFilter, error) {
    switch s {
    case "", "all":
        return FilterAll, nil
    case "missing", "missingOnly", "missing_only":
        return FilterMissing, nil
    case "existing":
        return FilterExisting, nil
    }
    return "", &ValidationError{Field: "filter", Reason: "expected all, missing or existing"}
}

func (f ElementFilter) Match(s PersistenceStatus) bool {
    switch f {
    case FilterMissing:
        return s == StatusMissing
    case FilterExisting:
        return s == StatusExisting
    }
    return true
}

type ListingMode string

const (
    ModeGeneric     ListingMode = "generic"
    ModeByPartyKind ListingMode = "byPartyKind"
)

func ParseListingMode(s string) (ListingMode, error) {
    switch s {
    case "", "generic":
        return ModeGeneric, nil
    case "byPartyKind", "by_party_kind", "partes":
        return ModeByPartyKind, nil
    }
    return "", &ValidationError{Field: "mode", Reason: "expected generic or byPartyKind"}
}

// ElementListing answers the elements endpoint. Groups is only set in byPartyKind mode.
type ElementListing struct {
    RawLogID string                     `json:"rawLogId"`
    Filter   ElementFilter              `json:"filter"`
    Mode     ListingMode                `json:"mode"`
    Totals   GapTotals                  `json:"totals"`
    Elements []ElementStatus            `json:"elements,omitempty"`
    Groups   map[string][]ElementStatus `json:"groups,omitempty"`
}

// RecoveryView is a raw log summary plus the optional gap report and payload.
type RecoveryView struct {
    Log        RawCaptureLog   `json:"log"`
    GapReport  *GapReport      `json:"gapReport,omitempty"`
    RawPayload json.RawMessage `json:"rawPayload,omitempty"`
}

type RepersistResult struct {
    RawLogID  string           `json:"rawLogId"`
    Filter    ElementFilter    `json:"filter"`
    Selected  int              `json:"selected"`
    Persisted int              `json:"persisted"`
    Failed    int              `json:"failed"`
    Failures  []ElementFailure `json:"failures,omitempty"`
}
