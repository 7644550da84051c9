// Package extraction turns portal records into normalized units. It is the only
// package that knows portal field names.
package extraction

import (
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "juscapture/internal/domain"
)

// Source identifies the portal instance and capture type a payload came from.
type Source struct {
    System   string
    Tribunal string
    Level    domain.InstanceLevel
    Type     domain.CaptureType
}

func SourceOf(p domain.CapturePayload) Source {
    return Source{System: p.System, Tribunal: p.Tribunal, Level: p.Level, Type: p.CaptureType}
}

type AddressUnit struct {
    Path    string
    Address domain.Address
}

type RepresentativeUnit struct {
    Path           string
    Representative domain.Representative
    PortalPersonID int64
}

// PartyUnit carries a party with its addresses and lawyers. Party.NaturalKey is the
// document-derived key and is empty when the portal gave no document.
type PartyUnit struct {
    Path            string
    Party           domain.Party
    PortalPersonID  int64
    Pole            domain.Pole
    Role            string
    Addresses       []AddressUnit
    Representatives []RepresentativeUnit
}

type TimelineUnit struct {
    Path  string
    Entry domain.TimelineEntry
}

// Unit is one payload record in normalized form.
type Unit struct {
    Index   int
    Path    string
    Process *domain.Process
    // ProcessIsElement is false when the record only references its process
    // (hearings); the process is then a prerequisite, not an element.
    ProcessIsElement bool
    Hearing          *domain.Hearing
    Pending          *domain.PendingItem
    Parties          []PartyUnit
    Timeline         []TimelineUnit
    Err              error
}

// PrimaryKind and PrimaryKey describe the element a record stands for.
func (u Unit) PrimaryKind() domain.ElementKind {
    switch {
    case u.Hearing != nil:
        return domain.KindHearing
    case u.Pending != nil:
        return domain.KindPendingItem
    }
    return domain.KindProcess
}

func (u Unit) PrimaryKey() string {
    switch {
    case u.Hearing != nil:
        return u.Hearing.NaturalKey
    case u.Pending != nil:
        return u.Pending.NaturalKey
    case u.Process != nil:
        return u.Process.NaturalKey
    }
    return ""
}

var errNoProcessNumber = errors.New("record has no process number")

// Extract normalizes every record of a payload. Records that cannot be read still
// yield a Unit with Err set so that callers account for them.
func Extract(src Source, records []json.RawMessage) []Unit {
    units := make([]Unit, 0, len(records))
    for i, raw := range records {
        units = append(units, ExtractRecord(src, i, raw))
    }
    return units
}

func ExtractRecord(src Source, index int, raw json.RawMessage) Unit {
    u := Unit{Index: index, Path: fmt.Sprintf("records[%d]", index)}
    o, err := decode(raw)
    if err != nil {
        u.Err = fmt.Errorf("decode record: %w", err)
        return u
    }
    switch src.Type {
    case domain.CaptureHearings:
        err = u.fillHearing(src, o)
    case domain.CapturePending:
        err = u.fillPending(src, o)
    default:
        err = u.fillProcess(src, o)
    }
    if err != nil {
        u.Err = err
        return u
    }
    u.Parties = parseParties(src, o, u.Path)
    return u
}

// RecordKey is the primary natural key of a raw record, used to merge duplicates.
func RecordKey(src Source, raw json.RawMessage) (string, error) {
    u := ExtractRecord(src, 0, raw)
    if u.Err != nil {
        return "", u.Err
    }
    return u.PrimaryKey(), nil
}

func processFrom(src Source, o obj, idKeys ...string) (*domain.Process, error) {
    base := o
    number := o.str("numeroProcesso", "numero", "nrProcesso")
    if nested := o.child("processo"); nested != nil {
        if number == "" {
            number = nested.str("numero", "numeroProcesso")
        }
        base = nested
        idKeys = append(idKeys, "id")
    } else if s, ok := o["processo"].(string); ok && number == "" {
        number = s
    }
    key := domain.ProcessKey(src.Tribunal, src.Level, number)
    if key == "" {
        return nil, errNoProcessNumber
    }
    p := &domain.Process{
        NaturalKey: key,
        Number:     strings.TrimSpace(number),
        Tribunal:   domain.NormalizeTribunal(src.Tribunal),
        Level:      src.Level,
        PortalID:   base.int64(idKeys...),
        Class:      base.str("classeJudicial", "classe", "descricaoClasse"),
        Court:      base.str("orgaoJulgador", "descricaoOrgaoJulgador", "vara"),
        Subject:    base.str("assuntoPrincipal", "assunto"),
        FiledAt:    base.time("dataAutuacao", "autuadoEm", "dataDistribuicao"),
    }
    if v, ok := base.boolean("segredoDeJustica", "segredoJustica", "sigiloso"); ok {
        p.Confidential = v
    }
    switch src.Type {
    case domain.CaptureArchived:
        archived := true
        p.Archived = &archived
    case domain.CaptureDocket:
        archived := false
        p.Archived = &archived
    default:
        if v, ok := base.boolean("arquivado"); ok {
            p.Archived = &v
        }
    }
    return p, nil
}

func (u *Unit) fillProcess(src Source, o obj) error {
    p, err := processFrom(src, o, "idProcesso", "id")
    if err != nil {
        return err
    }
    u.Process = p
    u.ProcessIsElement = true
    if src.Type == domain.CaptureTimeline {
        u.Timeline = parseTimeline(src, p.NaturalKey, o, u.Path)
    }
    return nil
}

func (u *Unit) fillHearing(src Source, o obj) error {
    p, err := processFrom(src, o, "idProcesso")
    if err != nil {
        return err
    }
    start := o.time("dataInicio", "inicio", "dataHoraInicio", "data")
    if start == nil {
        return errors.New("hearing has no start time")
    }
    kind := o.str("tipo", "tipoAudiencia", "descricaoTipo")
    room := ""
    if sala := o.child("sala", "salaAudiencia"); sala != nil {
        room = sala.str("nome", "descricao")
    } else {
        room = o.str("sala", "salaAudiencia")
    }
    u.Process = p
    u.Hearing = &domain.Hearing{
        NaturalKey: domain.HearingKey(p.NaturalKey, *start, kind),
        PortalID:   o.int64("id", "idAudiencia"),
        StartsAt:   *start,
        EndsAt:     o.time("dataFim", "fim", "dataHoraFim"),
        Type:       kind,
        Room:       room,
        Status:     o.str("situacao", "status", "statusAudiencia"),
        URL:        o.str("urlAudienciaVirtual", "urlVirtual", "url"),
    }
    return nil
}

func (u *Unit) fillPending(src Source, o obj) error {
    p, err := processFrom(src, o, "idProcesso")
    if err != nil {
        return err
    }
    itemID := o.int64("idExpediente", "id")
    if itemID == 0 {
        return errors.New("pending item has no portal id")
    }
    u.Process = p
    u.ProcessIsElement = true
    u.Pending = &domain.PendingItem{
        NaturalKey:     domain.PendingKey(p.NaturalKey, itemID),
        PortalItemID:   itemID,
        Kind:           o.str("tipoExpediente", "tipo", "meioComunicacao"),
        AcknowledgedAt: o.time("dataCienciaParte", "dataCiencia"),
        DueAt:          o.time("dataPrazoLegal", "prazoFinal", "dataLimite"),
        DeadlineDays:   int(o.int64("prazoLegal", "prazo")),
    }
    return nil
}

var poleLists = []struct {
    field string
    pole  domain.Pole
}{
    {"poloAtivo", domain.PoleActive},
    {"poloPassivo", domain.PolePassive},
    {"outrosInteressados", domain.PoleOther},
}

func parseParties(src Source, o obj, base string) []PartyUnit {
    var out []PartyUnit
    for i, p := range o.list("partes") {
        path := fmt.Sprintf("%s.partes[%d]", base, i)
        out = append(out, partyFrom(src, p, path, domain.ParsePole(p.str("polo", "tipoPolo"))))
    }
    for _, pl := range poleLists {
        for i, p := range o.list(pl.field) {
            path := fmt.Sprintf("%s.%s[%d]", base, pl.field, i)
            out = append(out, partyFrom(src, p, path, pl.pole))
        }
    }
    return out
}

func partyFrom(src Source, p obj, path string, pole domain.Pole) PartyUnit {
    doc := p.str("documento", "numeroDocumento", "cpf", "cnpj", "documentoPrincipal")
    docType := strings.ToUpper(p.str("tipoDocumento"))
    if docType == "" {
        switch len(digitsOf(doc)) {
        case 11:
            docType = "CPF"
        case 14:
            docType = "CNPJ"
        }
    }
    key, _ := domain.PersonKey(domain.KindParty, doc)
    pu := PartyUnit{
        Path: path,
        Party: domain.Party{
            NaturalKey:   key,
            Name:         p.str("nome", "nomeParte"),
            DocumentType: docType,
            Document:     doc,
            PersonType:   p.str("tipoPessoa"),
        },
        PortalPersonID: p.int64("idPessoa", "id"),
        Pole:           pole,
        Role:           p.str("tipoParte", "participacao", "papel"),
    }
    for i, a := range p.list("enderecos") {
        pu.Addresses = append(pu.Addresses, AddressUnit{
            Path:    fmt.Sprintf("%s.enderecos[%d]", path, i),
            Address: addressFrom(a),
        })
    }
    if len(pu.Addresses) == 0 {
        if a := p.child("endereco"); a != nil {
            pu.Addresses = append(pu.Addresses, AddressUnit{Path: path + ".endereco", Address: addressFrom(a)})
        }
    }
    reps := p.list("representantes")
    field := "representantes"
    if len(reps) == 0 {
        reps, field = p.list("advogados"), "advogados"
    }
    for i, r := range reps {
        pu.Representatives = append(pu.Representatives, representativeFrom(r, fmt.Sprintf("%s.%s[%d]", path, field, i)))
    }
    return pu
}

func addressFrom(a obj) domain.Address {
    return domain.Address{
        Street:     a.str("logradouro", "rua"),
        Number:     a.str("numero"),
        Complement: a.str("complemento"),
        District:   a.str("bairro"),
        City:       a.str("municipio", "cidade"),
        State:      a.str("estado", "uf"),
        PostalCode: a.str("cep"),
    }
}

func representativeFrom(r obj, path string) RepresentativeUnit {
    doc := r.str("documento", "cpf", "numeroDocumento")
    oab := r.str("oab", "numeroOab", "inscricaoOab")
    key, ok := domain.OABKey(oab, r.str("ufOab"))
    if !ok {
        key, _ = domain.PersonKey(domain.KindRepresentative, doc)
    }
    kind := r.str("tipo", "tipoRepresentante")
    if kind == "" {
        kind = "ADVOGADO"
    }
    return RepresentativeUnit{
        Path: path,
        Representative: domain.Representative{
            NaturalKey: key,
            Name:       r.str("nome"),
            Document:   doc,
            OAB:        oab,
            Kind:       kind,
        },
        PortalPersonID: r.int64("idPessoa", "id"),
    }
}

// instanceFields are annotations added when timelines of several instances are merged;
// they are excluded from entry hashes so the same document hashes equally in both.
var instanceFields = map[string]bool{"instancia": true, "grau": true}

func parseTimeline(src Source, processKey string, o obj, base string) []TimelineUnit {
    var out []TimelineUnit
    for i, e := range o.list("timeline") {
        out = append(out, TimelineUnit{
            Path:  fmt.Sprintf("%s.timeline[%d]", base, i),
            Entry: timelineEntry(src, processKey, e),
        })
    }
    return out
}

func timelineEntry(src Source, processKey string, e obj) domain.TimelineEntry {
    var occurred time.Time
    if ts := e.time("data", "dataJuntada", "dataHora", "dataMovimento"); ts != nil {
        occurred = *ts
    }
    kind := strings.ToLower(e.str("tipo"))
    if kind == "" {
        kind = "documento"
    }
    title := e.str("titulo", "descricao", "tipoDocumento")
    instance := src.Level
    if s := e.str("instancia", "grau"); s != "" {
        if lvl, err := domain.ParseInstanceLevel(s); err == nil {
            instance = lvl
        }
    }
    docID := e.int64("idDocumento", "id")
    hash := hashObj(e, instanceFields)
    return domain.TimelineEntry{
        NaturalKey:  domain.TimelineKey(processKey, occurred, kind, title, docID, hash),
        Instance:    instance,
        OccurredAt:  occurred,
        Kind:        kind,
        Title:       title,
        DocumentID:  docID,
        ContentHash: hash,
    }
}

func digitsOf(s string) string {
    return strings.Map(func(r rune) rune {
        if r >= '0' && r <= '9' {
            return r
        }
        return -1
    }, s)
}
