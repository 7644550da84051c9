package main

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/spf13/cobra"

    "juscapture/internal/app"
    "juscapture/internal/domain"
)

func newCredentialsCmd() *cobra.Command {
    cmd := &cobra.Command{
        Use:   "credentials",
        Short: "Manage portal credentials",
    }
    cmd.AddCommand(newCredentialsPutCmd())
    return cmd
}

// readSecrets takes the password from the first stdin line and an optional TOTP seed
// from the second, so neither ends up in shell history or the process list.
func readSecrets(cmd *cobra.Command) (secret, seed domain.Secret, err error) {
    sc := bufio.NewScanner(cmd.InOrStdin())
    if sc.Scan() {
        secret = domain.Secret(strings.TrimRight(sc.Text(), "\r"))
    }
    if sc.Scan() {
        seed = domain.Secret(strings.TrimSpace(sc.Text()))
    }
    if err := sc.Err(); err != nil {
        return "", "", err
    }
    if secret.Empty() {
        return "", "", errors.New("no password on stdin")
    }
    return secret, seed, nil
}

func newCredentialsPutCmd() *cobra.Command {
    var lawyer, tribunal, level, login string
    cmd := &cobra.Command{
        Use:   "put",
        Short: "Store a credential; the password (and optional TOTP seed) are read from stdin",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            lvl, err := domain.ParseInstanceLevel(level)
            if err != nil {
                return err
            }
            secret, seed, err := readSecrets(cmd)
            if err != nil {
                return err
            }
            c := domain.Credential{LawyerID: lawyer, Tribunal: tribunal, Level: lvl, Login: login, Secret: secret, TOTPSeed: seed, Active: true}
            return withApp(cmd, func(ctx context.Context, a *app.App) error {
                id, err := a.Credentials.PutCredential(ctx, c)
                if err != nil {
                    return err
                }
                fmt.Fprintf(cmd.OutOrStdout(), "credential %s stored for %s %s %s\n", id, lawyer, domain.NormalizeTribunal(tribunal), lvl)
                return nil
            })
        },
    }
    cmd.Flags().StringVar(&lawyer, "lawyer", "", "lawyer id (required)")
    cmd.Flags().StringVar(&tribunal, "tribunal", "", "tribunal code (required)")
    cmd.Flags().StringVar(&level, "level", "primeiro_grau", "instance level")
    cmd.Flags().StringVar(&login, "login", "", "portal login, usually the CPF (required)")
    for _, name := range []string{"lawyer", "tribunal", "login"} {
        _ = cmd.MarkFlagRequired(name)
    }
    return cmd
}
