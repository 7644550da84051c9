package extraction

import (
    "encoding/json"
    "strings"
    "testing"
    "time"

    "juscapture/internal/domain"
)

var docket = Source{System: "pje", Tribunal: "trt2", Level: domain.LevelFirst, Type: domain.CaptureDocket}

const processRecord = `{
  "idProcesso": 9001,
  "numeroProcesso": "0001234-56.2024.5.02.0001",
  "classeJudicial": "ATOrd",
  "orgaoJulgador": "1ª Vara do Trabalho",
  "dataAutuacao": "15/03/2024 10:30",
  "segredoDeJustica": "N",
  "poloAtivo": [{
    "idPessoa": 555, "nome": "Maria", "documento": "123.456.789-01",
    "enderecos": [{"logradouro": "Rua A", "numero": "10", "cep": "01000-000"}],
    "representantes": [{"idPessoa": 77, "nome": "Dra. Ana", "oab": "SP123456"}]
  }],
  "poloPassivo": [{"idPessoa": 999, "nome": "ACME Ltda"}]
}`

func TestExtractProcessWithParties(t *testing.T) {
    u := ExtractRecord(docket, 3, json.RawMessage(processRecord))
    if u.Err != nil {
        t.Fatalf("extract: %v", u.Err)
    }
    if u.Path != "records[3]" || u.PrimaryKind() != domain.KindProcess || !u.ProcessIsElement {
        t.Fatalf("unit %+v", u)
    }
    p := u.Process
    if p.NaturalKey != "process|TRT2|1|00012345620245020001" || p.PortalID != 9001 || p.Class != "ATOrd" {
        t.Fatalf("process %+v", p)
    }
    if p.Archived == nil || *p.Archived {
        t.Fatal("docket capture must mark the process active")
    }
    if p.FiledAt == nil || p.FiledAt.Hour() != 13 {
        t.Fatalf("portal local time not converted to UTC: %v", p.FiledAt)
    }
    if len(u.Parties) != 2 {
        t.Fatalf("parties %+v", u.Parties)
    }
    active := u.Parties[0]
    if active.Pole != domain.PoleActive || active.Party.NaturalKey != "party|cpf:12345678901" || active.Party.DocumentType != "CPF" {
        t.Fatalf("active party %+v", active)
    }
    if active.Path != "records[3].poloAtivo[0]" || active.Addresses[0].Path != "records[3].poloAtivo[0].enderecos[0]" {
        t.Fatalf("paths %q %q", active.Path, active.Addresses[0].Path)
    }
    if rep := active.Representatives[0]; rep.Representative.NaturalKey != "representative|oab:SP123456" || rep.Representative.Kind != "ADVOGADO" {
        t.Fatalf("representative %+v", rep)
    }
    passive := u.Parties[1]
    if passive.Party.NaturalKey != "" || passive.PortalPersonID != 999 || passive.Pole != domain.PolePassive {
        t.Fatalf("documentless party %+v", passive)
    }
}

func TestExtractHearingReferencesProcess(t *testing.T) {
    src := docket
    src.Type = domain.CaptureHearings
    raw := `{"id": 1, "dataInicio": "2026-05-04T09:00:00-03:00", "tipo": "Inicial",
        "sala": {"nome": "Sala 3"}, "processo": {"id": 9001, "numero": "0001234-56.2024.5.02.0001"}}`
    u := ExtractRecord(src, 0, json.RawMessage(raw))
    if u.Err != nil {
        t.Fatalf("extract: %v", u.Err)
    }
    if u.PrimaryKind() != domain.KindHearing || u.ProcessIsElement {
        t.Fatalf("hearing unit %+v", u)
    }
    if u.Hearing.Room != "Sala 3" || !u.Hearing.StartsAt.Equal(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)) {
        t.Fatalf("hearing %+v", u.Hearing)
    }
    if u.Process.PortalID != 9001 {
        t.Fatalf("nested process id lost: %+v", u.Process)
    }
}

func TestExtractPendingNeedsPortalID(t *testing.T) {
    src := docket
    src.Type = domain.CapturePending
    ok := ExtractRecord(src, 0, json.RawMessage(`{"idExpediente": 42, "numeroProcesso": "0001234-56.2024.5.02.0001", "prazoLegal": 8}`))
    if ok.Err != nil || ok.Pending.NaturalKey != "pending|TRT2|1|00012345620245020001|42" || ok.Pending.DeadlineDays != 8 {
        t.Fatalf("pending %+v %v", ok.Pending, ok.Err)
    }
    if bad := ExtractRecord(src, 1, json.RawMessage(`{"numeroProcesso": "0001234-56.2024.5.02.0001"}`)); bad.Err == nil {
        t.Fatal("pending item without id accepted")
    }
}

func TestExtractKeepsUnreadableRecords(t *testing.T) {
    units := Extract(docket, []json.RawMessage{
        json.RawMessage(processRecord),
        json.RawMessage(`[1,2]`),
        json.RawMessage(`{"classe": "no number"}`),
    })
    if len(units) != 3 {
        t.Fatalf("expected one unit per record, got %d", len(units))
    }
    if units[0].Err != nil || units[1].Err == nil || units[2].Err == nil {
        t.Fatalf("errors %v %v %v", units[0].Err, units[1].Err, units[2].Err)
    }
    if units[2].Index != 2 {
        t.Fatalf("index %d", units[2].Index)
    }
}

func TestContentHashIgnoresKeyOrder(t *testing.T) {
    a, _ := ContentHash(json.RawMessage(`{"a":1,"b":[1,2]}`))
    b, _ := ContentHash(json.RawMessage(`{"b":[1,2],"a":1}`))
    c, _ := ContentHash(json.RawMessage(`{"a":2,"b":[1,2]}`))
    if a != b || a == c {
        t.Fatalf("hashes %s %s %s", a, b, c)
    }
}

func TestMergeTimelines(t *testing.T) {
    src := docket
    src.Type = domain.CaptureTimeline
    first := `{"numeroProcesso": "0001234-56.2024.5.02.0001", "timeline": [
        {"data": "2026-01-10T10:00:00Z", "tipo": "documento", "titulo": "Petição", "idDocumento": 1},
        {"data": "2026-01-11T10:00:00Z", "tipo": "movimento", "titulo": "Conclusos"}]}`
    second := `{"numeroProcesso": "0001234-56.2024.5.02.0001", "instancia": "2", "timeline": [
        {"data": "2026-01-10T10:00:00Z", "tipo": "documento", "titulo": "Petição", "idDocumento": 1},
        {"data": "2026-01-11T10:00:00Z", "tipo": "movimento", "titulo": "Conclusos", "extra": true},
        {"data": "2026-02-01T10:00:00Z", "tipo": "documento", "titulo": "Acórdão"}]}`
    key := domain.ProcessKey("TRT2", domain.LevelFirst, "0001234-56.2024.5.02.0001")
    m, err := MergeTimelines(src, key, []json.RawMessage{json.RawMessage(first), json.RawMessage(second)}, []int{0, 4})
    if err != nil {
        t.Fatalf("merge: %v", err)
    }
    if m.Entries != 4 || m.Duplicates != 1 {
        t.Fatalf("entries=%d duplicates=%d", m.Entries, m.Duplicates)
    }
    if len(m.Ambiguous) != 1 || len(m.Ambiguous[0].Hashes) != 2 || m.Ambiguous[0].Records[1] != 4 {
        t.Fatalf("ambiguous %+v", m.Ambiguous)
    }
    if !strings.Contains(string(m.Record), `"instancia":"second"`) {
        t.Fatalf("instance annotation missing: %s", m.Record)
    }

    u := ExtractRecord(src, 0, m.Record)
    if u.Err != nil || len(u.Timeline) != 4 {
        t.Fatalf("merged record not extractable: %v %d", u.Err, len(u.Timeline))
    }
    if u.Timeline[3].Entry.Instance != domain.LevelSecond {
        t.Fatalf("entry instance %q", u.Timeline[3].Entry.Instance)
    }

    // The same entry annotated with different instances hashes equally.
    h1, _ := EntryHash(json.RawMessage(`{"titulo":"x","instancia":"primeiro_grau"}`))
    h2, _ := EntryHash(json.RawMessage(`{"titulo":"x","instancia":"segundo_grau"}`))
    if h1 != h2 {
        t.Fatal("instance annotation changed the entry hash")
    }
}

func TestTimelineKeysSeparateDistinctDocuments(t *testing.T) {
    src := docket
    src.Type = domain.CaptureTimeline
    raw := `{"numeroProcesso": "0001234-56.2024.5.02.0001", "timeline": [
        {"data": "2024-03-01T10:00:00Z", "titulo": "Petição", "idDocumento": 101},
        {"data": "2024-03-01T10:00:00Z", "titulo": "Petição", "idDocumento": 102},
        {"titulo": "Certidão", "texto": "primeira"},
        {"titulo": "Certidão", "texto": "segunda"}]}`
    u := ExtractRecord(src, 0, json.RawMessage(raw))
    if u.Err != nil || len(u.Timeline) != 4 {
        t.Fatalf("extract: %v %d", u.Err, len(u.Timeline))
    }
    keys := map[string]bool{}
    for _, e := range u.Timeline {
        keys[e.Entry.NaturalKey] = true
    }
    if len(keys) != 4 {
        t.Fatalf("keys collide: %v", keys)
    }
    if !strings.HasSuffix(u.Timeline[0].Entry.NaturalKey, "|doc:101") {
        t.Fatalf("document id not in key: %s", u.Timeline[0].Entry.NaturalKey)
    }

    // the same undated entry captured twice keys the same way
    again := ExtractRecord(src, 0, json.RawMessage(raw))
    if again.Timeline[2].Entry.NaturalKey != u.Timeline[2].Entry.NaturalKey {
        t.Fatal("undated key not stable")
    }
}
