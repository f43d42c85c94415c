package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/shadow-oauth/services"
)

func newIssuerCmd(a *app) *cobra.Command {
	issuerCmd := &cobra.Command{
		Use:     "issuer",
		Short:   "Manage trusted assertion issuers",
		Aliases: []string{"issuers"},
	}

	issuerCmd.AddCommand(
		newIssuerCreateCmd(a),
		newIssuerShowCmd(a),
		newIssuerUpdateCmd(a),
	)
	return issuerCmd
}

func addIssuerFlags(cmd *cobra.Command) {
	cmd.Flags().String("hmac-secret", "", "Shared secret for HS256/384/512 assertions")
	cmd.Flags().String("public-key-file", "", "PEM file with the RSA or ECDSA verification key")
	cmd.Flags().String("notes", "", "Free-form notes")
}

func readPublicKey(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("public-key-file")
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read public key: %w", err)
	}
	return string(raw), nil
}

func newIssuerCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [IDENTIFIER]",
		Short: "Register an issuer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := services.IssuerFields{Identifier: args[0]}
			f.HMACSecret, _ = cmd.Flags().GetString("hmac-secret")
			f.Notes, _ = cmd.Flags().GetString("notes")
			if cmd.Flags().Changed("public-key-file") {
				key, err := readPublicKey(cmd)
				if err != nil {
					return err
				}
				f.PublicKey = key
			}

			i, err := a.engine.Issuers.Create(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("issuer creation failed: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), newIssuerView(i))
		},
	}
	addIssuerFlags(cmd)
	return cmd
}

func newIssuerShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [IDENTIFIER]",
		Short: "Show an issuer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := a.engine.Issuers.Find(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get issuer: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), newIssuerView(i))
		},
	}
}

func newIssuerUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [IDENTIFIER]",
		Short: "Change the keys or notes of an issuer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p services.IssuerPatch
			if cmd.Flags().Changed("hmac-secret") {
				secret, _ := cmd.Flags().GetString("hmac-secret")
				p.HMACSecret = &secret
			}
			if cmd.Flags().Changed("notes") {
				notes, _ := cmd.Flags().GetString("notes")
				p.Notes = &notes
			}
			if cmd.Flags().Changed("public-key-file") {
				key, err := readPublicKey(cmd)
				if err != nil {
					return err
				}
				p.PublicKey = &key
			}

			i, err := a.engine.Issuers.Update(cmd.Context(), args[0], p)
			if err != nil {
				return fmt.Errorf("issuer update failed: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), newIssuerView(i))
		},
	}
	addIssuerFlags(cmd)
	return cmd
}
