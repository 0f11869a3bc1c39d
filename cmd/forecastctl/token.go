package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erp/cashflow/internal/infrastructure/auth"
)

var (
	tokenSubject string
	tokenScopes  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a service token",
	Long:  "Signs a JWT with the configured secret. Without --scope every scope is granted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return issueToken(cmd.OutOrStdout(), auth.NewJWTService(cfg.JWT), tokenSubject, tokenScopes)
	},
}

func issueToken(out io.Writer, jwt *auth.JWTService, subject string, scopes []string) error {
	if strings.TrimSpace(subject) == "" {
		return errors.New("--subject is required")
	}
	token, err := jwt.IssueToken(subject, scopes)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token.AccessToken)
	return nil
}

var hashSecretCmd = &cobra.Command{
	Use:         "hash-secret [secret]",
	Short:       "Hash an API client secret for auth.clients",
	Long:        "Prints the bcrypt hash to put under auth.clients. The secret is read from stdin when not given as an argument.",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{"offline": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := ""
		if len(args) == 1 {
			secret = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			secret = strings.TrimRight(line, "\r\n")
		}
		if secret == "" {
			return errors.New("secret cannot be empty")
		}
		hash, err := auth.HashSecret(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, usually the calling service")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "scope to grant; repeatable")
	rootCmd.AddCommand(tokenCmd, hashSecretCmd)
}
