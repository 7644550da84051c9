package domain

import (
    "fmt"
    "strings"
    "time"
    "unicode"
)

// Natural keys are stable across re-captures. They never embed a portal-internal
// person id except in the tribunal-scoped surrogate used when no document exists.

func digits(s string) string {
    var b strings.Builder
    for _, r := range s {
        if r >= '0' && r <= '9' {
            b.WriteRune(r)
        }
    }
    return b.String()
}

func alnumUpper(s string) string {
    var b strings.Builder
    for _, r := range strings.ToUpper(s) {
        if unicode.IsLetter(r) || unicode.IsDigit(r) {
            b.WriteRune(r)
        }
    }
    return b.String()
}

func slug(s string) string {
    fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
        return !unicode.IsLetter(r) && !unicode.IsDigit(r)
    })
    return strings.Join(fields, "-")
}

// ProcessKey keys a process by its official number within a tribunal instance.
func ProcessKey(tribunal string, level InstanceLevel, number string) string {
    n := digits(number)
    if n == "" {
        return ""
    }
    return fmt.Sprintf("process|%s|%s|%s", NormalizeTribunal(tribunal), level.Code(), n)
}

func processTail(processKey string) string {
    return strings.TrimPrefix(processKey, "process|")
}

func HearingKey(processKey string, startsAt time.Time, kind string) string {
    return fmt.Sprintf("hearing|%s|%s|%s", processTail(processKey), startsAt.UTC().Format(time.RFC3339), slug(kind))
}

func PendingKey(processKey string, portalItemID int64) string {
    return fmt.Sprintf("pending|%s|%d", processTail(processKey), portalItemID)
}

// TimelineKey prefers the portal document id. Without one the entry is keyed by time,
// kind and title, and an undated entry also carries a prefix of its content hash.
func TimelineKey(processKey string, occurredAt time.Time, kind, title string, documentID int64, contentHash string) string {
    tail := processTail(processKey)
    if documentID > 0 {
        return fmt.Sprintf("timeline|%s|doc:%d", tail, documentID)
    }
    key := fmt.Sprintf("timeline|%s|%s|%s|%s", tail, occurredAt.UTC().Format(time.RFC3339), slug(kind), slug(title))
    if occurredAt.IsZero() && contentHash != "" {
        if len(contentHash) > 16 {
            contentHash = contentHash[:16]
        }
        key += "|h:" + contentHash
    }
    return key
}

// PersonKey derives a key for a party or representative from a document number.
// CPF (11 digits) and CNPJ (14 digits) are recognized; anything else is kept alphanumeric.
func PersonKey(kind ElementKind, document string) (string, bool) {
    d := digits(document)
    switch {
    case len(d) == 11:
        return fmt.Sprintf("%s|cpf:%s", kind, d), true
    case len(d) == 14:
        return fmt.Sprintf("%s|cnpj:%s", kind, d), true
    }
    if a := alnumUpper(document); a != "" {
        return fmt.Sprintf("%s|doc:%s", kind, a), true
    }
    return "", false
}

// OABKey keys a lawyer by bar registration ("SP123456", "123.456/SP").
func OABKey(oab, state string) (string, bool) {
    num := digits(oab)
    uf := alnumUpper(state)
    if uf == "" {
        letters := strings.Map(func(r rune) rune {
            if unicode.IsLetter(r) {
                return unicode.ToUpper(r)
            }
            return -1
        }, oab)
        uf = letters
    }
    if num == "" || len(uf) != 2 {
        return "", false
    }
    return fmt.Sprintf("%s|oab:%s%s", KindRepresentative, uf, num), true
}

// SurrogatePersonKey scopes a portal person id to the system and tribunal instance that issued it.
func SurrogatePersonKey(kind ElementKind, system, tribunal string, level InstanceLevel, portalID int64) string {
    return fmt.Sprintf("%s|portal:%s:%s:%s:%d", kind, strings.ToLower(system), NormalizeTribunal(tribunal), level.Code(), portalID)
}

func AddressKey(partyKey string, a Address) string {
    return fmt.Sprintf("address|%s|%s|%s|%s", partyKey, digits(a.PostalCode), slug(a.Street), slug(a.Number))
}
