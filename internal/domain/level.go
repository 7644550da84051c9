package domain

import (
    "fmt"
    "strings"
)

// InstanceLevel is the procedural tier of a tribunal portal instance.
// Values are only produced by ParseInstanceLevel; call sites never compare raw strings.
type InstanceLevel string

const (
    LevelFirst    InstanceLevel = "first"
    LevelSecond   InstanceLevel = "second"
    LevelSuperior InstanceLevel = "superior"
)

var levelAliases = map[string]InstanceLevel{
    "1":                  LevelFirst,
    "1g":                 LevelFirst,
    "g1":                 LevelFirst,
    "first":              LevelFirst,
    "first_instance":     LevelFirst,
    "primeiro":           LevelFirst,
    "primeiro_grau":      LevelFirst,
    "primeirograu":       LevelFirst,
    "1_grau":             LevelFirst,
    "2":                  LevelSecond,
    "2g":                 LevelSecond,
    "g2":                 LevelSecond,
    "second":             LevelSecond,
    "second_instance":    LevelSecond,
    "segundo":            LevelSecond,
    "segundo_grau":       LevelSecond,
    "segundograu":        LevelSecond,
    "2_grau":             LevelSecond,
    "3":                  LevelSuperior,
    "superior":           LevelSuperior,
    "instancia_superior": LevelSuperior,
    "terceiro_grau":      LevelSuperior,
    "tst":                LevelSuperior,
}

var levelReplacer = strings.NewReplacer("º", "", "ª", "", "°", "", "-", "_", " ", "_", "â", "a", "ã", "a")

// ParseInstanceLevel normalizes every spelling seen in portal payloads, configuration
// and API input ("1", "primeiro_grau", "1º grau", "second", ...) into the closed enum.
func ParseInstanceLevel(s string) (InstanceLevel, error) {
    key := levelReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
    if lvl, ok := levelAliases[key]; ok {
        return lvl, nil
    }
    return "", &ValidationError{Field: "instanceLevel", Reason: fmt.Sprintf("unknown instance level %q", s)}
}

func (l InstanceLevel) Valid() bool {
    switch l {
    case LevelFirst, LevelSecond, LevelSuperior:
        return true
    }
    return false
}

// Code is the compact form used inside natural keys and lock keys.
func (l InstanceLevel) Code() string {
    switch l {
    case LevelFirst:
        return "1"
    case LevelSecond:
        return "2"
    case LevelSuperior:
        return "3"
    }
    return "0"
}

func (l InstanceLevel) String() string { return string(l) }

// UnmarshalText lets JSON and YAML inputs carry any accepted alias.
func (l *InstanceLevel) UnmarshalText(b []byte) error {
    lvl, err := ParseInstanceLevel(string(b))
    if err != nil {
        return err
    }
    *l = lvl
    return nil
}

// CaptureType names one of the scraping tasks run against a portal.
type CaptureType string

const (
    CaptureDocket   CaptureType = "acervo_geral"
    CaptureArchived CaptureType = "arquivados"
    CaptureHearings CaptureType = "audiencias"
    CapturePending  CaptureType = "pendentes_manifestacao"
    CaptureTimeline CaptureType = "timeline"
)

var captureAliases = map[string]CaptureType{
    "acervo_geral":           CaptureDocket,
    "acervo":                 CaptureDocket,
    "docket":                 CaptureDocket,
    "arquivados":             CaptureArchived,
    "archived":               CaptureArchived,
    "audiencias":             CaptureHearings,
    "hearings":               CaptureHearings,
    "pendentes_manifestacao": CapturePending,
    "pendentes":              CapturePending,
    "pending":                CapturePending,
    "timeline":               CaptureTimeline,
    "document_timeline":      CaptureTimeline,
}

// AllCaptureTypes lists the capture types in a stable order.
var AllCaptureTypes = []CaptureType{CaptureDocket, CaptureArchived, CaptureHearings, CapturePending, CaptureTimeline}

func ParseCaptureType(s string) (CaptureType, error) {
    key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
    if ct, ok := captureAliases[key]; ok {
        return ct, nil
    }
    return "", &ValidationError{Field: "captureType", Reason: fmt.Sprintf("unknown capture type %q", s)}
}

func (c CaptureType) Valid() bool {
    for _, ct := range AllCaptureTypes {
        if c == ct {
            return true
        }
    }
    return false
}

// PrimaryKind is the element kind a record of this capture type stands for.
func (c CaptureType) PrimaryKind() ElementKind {
    switch c {
    case CaptureHearings:
        return KindHearing
    case CapturePending:
        return KindPendingItem
    default:
        return KindProcess
    }
}

// Pole is the side of a process a party stands on.
type Pole string

const (
    PoleActive  Pole = "active"
    PolePassive Pole = "passive"
    PoleOther   Pole = "other"
)

func ParsePole(s string) Pole {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "ativo", "polo_ativo", "poloativo", "active", "a":
        return PoleActive
    case "passivo", "polo_passivo", "polopassivo", "passive", "p":
        return PolePassive
    default:
        return PoleOther
    }
}

// NormalizeTribunal upper-cases tribunal codes ("trt2" and " TRT2 " are the same portal).
func NormalizeTribunal(s string) string {
    return strings.ToUpper(strings.TrimSpace(s))
}
