package config

import (
    "fmt"
    "os"
    "strings"

    "gopkg.in/yaml.v3"

    "juscapture/internal/domain"
)

// TribunalsFile is the portal catalogue:
//
//  tribunals:
//    - code: TRT2
//      system: pje
//      instances:
//        primeiro_grau:
//          base_url: https://pje.trt2.jus.br/primeirograu
//          login_path: /login.seam
//          profile_path: /pje-comum-api/api/usuarios/perfis
//          endpoints:
//            acervo_geral: {path: /pje-comum-api/api/paineladvogado/processos}
type TribunalsFile struct {
    Tribunals []Tribunal `yaml:"tribunals"`
}

type Tribunal struct {
    Code      string    `yaml:"code"`
    System    string    `yaml:"system"`
    Instances Instances `yaml:"instances"`
}

type Instance struct {
    BaseURL     string    `yaml:"base_url"`
    System      string    `yaml:"system"`
    LoginPath   string    `yaml:"login_path"`
    ProfilePath string    `yaml:"profile_path"`
    LogoutPath  string    `yaml:"logout_path"`
    Endpoints   Endpoints `yaml:"endpoints"`
}

type Endpoint struct {
    Path         string `yaml:"path"`
    CursorParam  string `yaml:"cursor_param"`
    SizeParam    string `yaml:"size_param"`
    FromParam    string `yaml:"from_param"`
    ToParam      string `yaml:"to_param"`
    RecordsField string `yaml:"records_field"`
    NextField    string `yaml:"next_field"`
    TotalField   string `yaml:"total_field"`
}

// Instances is keyed by instance level; any spelling ParseInstanceLevel accepts works.
type Instances map[domain.InstanceLevel]Instance

func (in *Instances) UnmarshalYAML(value *yaml.Node) error {
    if value.Kind != yaml.MappingNode {
        return fmt.Errorf("line %d: instances must be a mapping", value.Line)
    }
    out := Instances{}
    for i := 0; i+1 < len(value.Content); i += 2 {
        k, v := value.Content[i], value.Content[i+1]
        level, err := domain.ParseInstanceLevel(k.Value)
        if err != nil {
            return fmt.Errorf("line %d: %w", k.Line, err)
        }
        if _, dup := out[level]; dup {
            return fmt.Errorf("line %d: instance %s listed twice", k.Line, level)
        }
        var inst Instance
        if err := v.Decode(&inst); err != nil {
            return err
        }
        out[level] = inst
    }
    *in = out
    return nil
}

// Endpoints is keyed by capture type. A scalar value is shorthand for the path.
type Endpoints map[domain.CaptureType]Endpoint

func (e *Endpoints) UnmarshalYAML(value *yaml.Node) error {
    if value.Kind != yaml.MappingNode {
        return fmt.Errorf("line %d: endpoints must be a mapping", value.Line)
    }
    out := Endpoints{}
    for i := 0; i+1 < len(value.Content); i += 2 {
        k, v := value.Content[i], value.Content[i+1]
        ct, err := domain.ParseCaptureType(k.Value)
        if err != nil {
            return fmt.Errorf("line %d: %w", k.Line, err)
        }
        var ep Endpoint
        switch v.Kind {
        case yaml.ScalarNode:
            ep.Path = strings.TrimSpace(v.Value)
        default:
            if err := v.Decode(&ep); err != nil {
                return err
            }
        }
        out[ct] = ep
    }
    *e = out
    return nil
}

func LoadTribunals(path string) (*TribunalsFile, error) {
    b, err := os.ReadFile(path)
    if err != nil {
        return nil, err
    }
    return ParseTribunals(b)
}

func ParseTribunals(b []byte) (*TribunalsFile, error) {
    var f TribunalsFile
    if err := yaml.Unmarshal(b, &f); err != nil {
        return nil, err
    }
    for i, t := range f.Tribunals {
        if strings.TrimSpace(t.Code) == "" {
            return nil, fmt.Errorf("tribunal #%d: code required", i+1)
        }
        for level, inst := range t.Instances {
            if inst.BaseURL == "" {
                return nil, fmt.Errorf("tribunal %s/%s: base_url required", t.Code, level)
            }
        }
    }
    return &f, nil
}
