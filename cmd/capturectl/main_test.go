package main

import (
    "strings"
    "testing"

    "github.com/spf13/cobra"

    "juscapture/internal/domain"
)

func TestCaptureFlagsRequest(t *testing.T) {
    f := captureFlags{lawyer: "l1", tribunal: "trt2", level: "2", from: "2026-01-01", to: "2026-01-31"}
    req, err := f.request("pendentes")
    if err != nil {
        t.Fatalf("request: %v", err)
    }
    if req.Type != domain.CapturePending || req.Level != domain.LevelSecond || req.Range == nil || req.Range.To.Day() != 31 {
        t.Fatalf("unexpected request %+v", req)
    }
    f.from = "01/01/2026"
    if _, err := f.request("acervo_geral"); err == nil {
        t.Fatal("expected a date error")
    }
    if _, err := (captureFlags{lawyer: "l1", tribunal: "trt2", level: "1"}).request("nope"); err == nil {
        t.Fatal("expected a capture type error")
    }
}

func TestReadSecrets(t *testing.T) {
    cmd := &cobra.Command{}
    cmd.SetIn(strings.NewReader("hunter2\r\nJBSW Y3DP\n"))
    secret, seed, err := readSecrets(cmd)
    if err != nil || secret.Reveal() != "hunter2" || seed.Reveal() != "JBSW Y3DP" {
        t.Fatalf("%q %q %v", secret.Reveal(), seed.Reveal(), err)
    }
    cmd.SetIn(strings.NewReader(""))
    if _, _, err := readSecrets(cmd); err == nil {
        t.Fatal("expected an error for empty stdin")
    }
}

func TestRepersistRejectsExisting(t *testing.T) {
    root := newRootCmd()
    root.SetArgs([]string{"recovery", "repersist", "r1", "--filter", "existing"})
    root.SetOut(new(strings.Builder))
    root.SetErr(new(strings.Builder))
    if err := root.Execute(); err == nil {
        t.Fatal("expected a validation error")
    }
}
