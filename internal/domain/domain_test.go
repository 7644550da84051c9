package domain

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "testing"
    "time"
)

func TestParseInstanceLevelAliases(t *testing.T) {
    for in, want := range map[string]InstanceLevel{
        "1":             LevelFirst,
        "primeiro_grau": LevelFirst,
        "1º Grau":       LevelFirst,
        "second":        LevelSecond,
        " 2 ":           LevelSecond,
    } {
        got, err := ParseInstanceLevel(in)
        if err != nil || got != want {
            t.Fatalf("%q: got %q %v", in, got, err)
        }
    }
    if _, err := ParseInstanceLevel("quinto"); !IsValidation(err) {
        t.Fatalf("expected a validation error, got %v", err)
    }
}

func TestNaturalKeysAreStable(t *testing.T) {
    a := ProcessKey("trt2", LevelFirst, "0001234-56.2024.5.02.0001")
    b := ProcessKey(" TRT2", LevelFirst, "00012345620245020001")
    if a == "" || a != b {
        t.Fatalf("process keys differ: %q %q", a, b)
    }
    if ProcessKey("TRT2", LevelFirst, "n/a") != "" {
        t.Fatal("a number without digits produced a key")
    }

    cpf, ok := PersonKey(KindParty, "123.456.789-01")
    if !ok || cpf != "party|cpf:12345678901" {
        t.Fatalf("cpf key %q", cpf)
    }
    cnpj, _ := PersonKey(KindParty, "12.345.678/0001-99")
    if !strings.HasPrefix(cnpj, "party|cnpj:") {
        t.Fatalf("cnpj key %q", cnpj)
    }
    if _, ok := PersonKey(KindParty, " - "); ok {
        t.Fatal("blank document produced a key")
    }

    for _, in := range [][2]string{{"SP123456", ""}, {"123.456", "sp"}} {
        k, ok := OABKey(in[0], in[1])
        if !ok || k != "representative|oab:SP123456" {
            t.Fatalf("oab %v: %q %v", in, k, ok)
        }
    }

    at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("BRT", -3*3600))
    h1 := HearingKey(a, at, "Audiência Inicial")
    h2 := HearingKey(a, at.UTC(), "audiência  inicial")
    if h1 != h2 {
        t.Fatalf("hearing keys differ: %q %q", h1, h2)
    }

    s1 := SurrogatePersonKey(KindParty, "PJE", "trt2", LevelFirst, 555)
    s2 := SurrogatePersonKey(KindParty, "pje", "TRT15", LevelFirst, 555)
    if s1 == s2 {
        t.Fatal("surrogate keys collide across tribunals")
    }
}

func TestCaptureRequestValidate(t *testing.T) {
    ok := CaptureRequest{LawyerID: "l1", Tribunal: "TRT2", Level: LevelFirst, Type: CaptureDocket}
    if err := ok.Validate(); err != nil {
        t.Fatalf("valid request rejected: %v", err)
    }
    from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
    for name, mutate := range map[string]func(*CaptureRequest){
        "lawyerId":      func(r *CaptureRequest) { r.LawyerID = " " },
        "tribunal":      func(r *CaptureRequest) { r.Tribunal = "" },
        "instanceLevel": func(r *CaptureRequest) { r.Level = "quinto" },
        "captureType":   func(r *CaptureRequest) { r.Type = "x" },
        "dateRange":     func(r *CaptureRequest) { r.Range = &DateRange{From: from, To: from.AddDate(0, 0, -1)} },
    } {
        r := ok
        mutate(&r)
        var ve *ValidationError
        if err := r.Validate(); !errors.As(err, &ve) || ve.Field != name {
            t.Fatalf("%s: got %v", name, err)
        }
    }
    if ok.LockKey() != "capture:l1:TRT2:1" {
        t.Fatalf("lock key %q", ok.LockKey())
    }
}

func TestSanitizeHidesPortalText(t *testing.T) {
    leak := errors.New("<html>stack trace with cpf 12345678901</html>")
    cases := []struct {
        err  error
        want string
    }{
        {&AuthError{Kind: InvalidCredential, Err: leak}, "portal rejected the stored credential; it has been deactivated"},
        {&AuthError{Kind: SecondFactorTimeout, Err: leak}, "second-factor code was not provided in time"},
        {&PartialFetchError{Fetched: 40, Reported: 120, Err: leak}, "portal stopped responding during pagination; partial results kept"},
        {&TransportError{Op: "fetch", Status: 500, Err: leak}, "portal request failed"},
        {fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "capture deadline exceeded"},
        {ErrLockTimeout, "another capture for this identity is still running"},
        {leak, "capture failed"},
    }
    for _, tc := range cases {
        if got := Sanitize(tc.err); got != tc.want {
            t.Fatalf("Sanitize(%v) = %q, want %q", tc.err, got, tc.want)
        }
    }
    if Sanitize(nil) != "" {
        t.Fatal("nil error sanitized to text")
    }
}

func TestSecretNeverPrinted(t *testing.T) {
    c := Credential{Login: "123", Secret: "hunter2", TOTPSeed: "JBSWY3DP"}
    for _, s := range []string{fmt.Sprintf("%v", c), fmt.Sprintf("%+v", c), fmt.Sprintf("%#v", c)} {
        if strings.Contains(s, "hunter2") || strings.Contains(s, "JBSWY3DP") {
            t.Fatalf("secret printed: %s", s)
        }
    }
    b, _ := json.Marshal(c)
    if strings.Contains(string(b), "hunter2") {
        t.Fatalf("secret marshalled: %s", b)
    }
    if c.Secret.Reveal() != "hunter2" {
        t.Fatal("Reveal lost the value")
    }
}

func TestProcessedSummaryAdd(t *testing.T) {
    var s ProcessedSummary
    s.Add(RecordResult{OK: true, Created: true})
    s.Add(RecordResult{OK: true})
    s.Add(RecordResult{OK: false})
    if s.Total != 3 || s.Created != 1 || s.Updated != 1 || s.Errors != 1 || len(s.Records) != 3 {
        t.Fatalf("summary %+v", s)
    }
}

func TestElementFilter(t *testing.T) {
    f, err := ParseElementFilter("missingOnly")
    if err != nil || f != FilterMissing {
        t.Fatalf("%q %v", f, err)
    }
    if !f.Match(StatusMissing) || f.Match(StatusExisting) {
        t.Fatal("missing filter mismatched")
    }
    if !FilterAll.Match(StatusExisting) || !FilterAll.Match(StatusMissing) {
        t.Fatal("all filter mismatched")
    }
    if _, err := ParseElementFilter("some"); !IsValidation(err) {
        t.Fatalf("expected validation error, got %v", err)
    }
    var totals GapTotals
    totals.Count(StatusExisting)
    totals.Count(StatusMissing)
    totals.Count(StatusMissing)
    if totals != (GapTotals{Total: 3, Existing: 1, Missing: 2}) {
        t.Fatalf("totals %+v", totals)
    }
}
