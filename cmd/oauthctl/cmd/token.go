package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/services"
)

func newTokenCmd(a *app) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:     "token",
		Short:   "Inspect, issue and revoke access tokens",
		Aliases: []string{"tokens"},
	}

	tokenCmd.AddCommand(
		newTokenListCmd(a),
		newTokenCountCmd(a),
		newTokenIssueCmd(a),
		newTokenRevokeCmd(a),
	)
	return tokenCmd
}

// parseIdentity treats decimal input as a numeric account ID.
func parseIdentity(s string) domain.Identity {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return domain.NumericIdentity(n)
	}
	return domain.TextIdentity(s)
}

func printTokens(cmd *cobra.Command, tokens []*domain.AccessToken) error {
	now := time.Now().UTC()
	views := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, newTokenView(t, now))
	}
	return printYAML(cmd.OutOrStdout(), views)
}

func newTokenListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tokens of a client or an identity, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientID, _ := cmd.Flags().GetString("client")
			identity, _ := cmd.Flags().GetString("identity")
			offset, _ := cmd.Flags().GetInt("offset")
			limit, _ := cmd.Flags().GetInt("limit")

			var (
				tokens []*domain.AccessToken
				err    error
			)
			switch {
			case identity != "":
				tokens, err = a.engine.Tokens.ForIdentity(cmd.Context(), parseIdentity(identity))
			case clientID != "":
				tokens, err = a.engine.Tokens.ForClient(cmd.Context(), clientID, offset, limit)
			default:
				return errors.New("one of --client or --identity is required")
			}
			if err != nil {
				return fmt.Errorf("failed to list tokens: %w", err)
			}
			return printTokens(cmd, tokens)
		},
	}
	cmd.Flags().String("client", "", "Client ID")
	cmd.Flags().String("identity", "", "Identity the tokens were issued to")
	cmd.Flags().Int("offset", 0, "Tokens to skip (with --client)")
	cmd.Flags().Int("limit", 50, "Maximum tokens to return (with --client, 0 for all)")
	return cmd
}

func newTokenCountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count tokens, optionally within the last N days",
		Long: `Count tokens. With --days, --revoked counts tokens revoked within the window
and otherwise tokens created within it. Without --days, --revoked=true|false
selects by current revocation state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f services.CountFilter
			f.ClientID, _ = cmd.Flags().GetString("client")
			f.Days, _ = cmd.Flags().GetInt("days")
			if cmd.Flags().Changed("revoked") {
				revoked, _ := cmd.Flags().GetBool("revoked")
				f.Revoked = &revoked
			}

			n, err := a.engine.Tokens.Count(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("failed to count tokens: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().String("client", "", "Restrict to one client")
	cmd.Flags().Int("days", 0, "Window size in days")
	cmd.Flags().Bool("revoked", false, "Count revoked (true) or unrevoked (false) tokens")
	return cmd
}

func newTokenIssueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for a client, reusing an active one with the same scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientID, _ := cmd.Flags().GetString("client")
			identity, _ := cmd.Flags().GetString("identity")
			scopes, _ := cmd.Flags().GetStringSlice("scope")
			expiresIn, _ := cmd.Flags().GetDuration("expires-in")
			fresh, _ := cmd.Flags().GetBool("new")

			if clientID == "" {
				return errors.New("client is required via --client flag")
			}

			var id domain.Identity
			if identity != "" {
				id = parseIdentity(identity)
			}

			var (
				tok *domain.AccessToken
				err error
			)
			if fresh || id.IsZero() {
				tok, err = a.engine.Tokens.CreateTokenFor(cmd.Context(), clientID, scopes, id, expiresIn)
			} else {
				tok, err = a.engine.Tokens.GetTokenFor(cmd.Context(), id, clientID, scopes, expiresIn)
			}
			if err != nil {
				return fmt.Errorf("token issuance failed: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), newTokenView(tok, time.Now().UTC()))
		},
	}
	cmd.Flags().String("client", "", "Client ID")
	cmd.Flags().String("identity", "", "Identity to issue for (empty for a client-only token)")
	cmd.Flags().StringSlice("scope", nil, "Requested scopes")
	cmd.Flags().Duration("expires-in", 0, "Token lifetime (0 uses the configured default)")
	cmd.Flags().Bool("new", false, "Always create a new token")
	return cmd
}

func newTokenRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [TOKEN]",
		Short: "Revoke an access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.Tokens.Revoke(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("token revocation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token revoked.")
			return nil
		},
	}
}
