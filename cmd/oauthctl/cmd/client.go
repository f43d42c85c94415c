package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/services"
)

func newClientCmd(a *app) *cobra.Command {
	clientCmd := &cobra.Command{
		Use:     "client",
		Short:   "Manage OAuth2 clients",
		Aliases: []string{"clients"},
	}

	clientCmd.AddCommand(
		newClientRegisterCmd(a),
		newClientListCmd(a),
		newClientShowCmd(a),
		newClientUpdateCmd(a),
		newClientRevokeCmd(a),
		newClientDeleteCmd(a),
	)
	return clientCmd
}

func addClientFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("link", "", "Homepage of the client application")
	cmd.Flags().String("image-url", "", "Logo URL")
	cmd.Flags().String("redirect-uri", "", "Registered redirect URI")
	cmd.Flags().StringSlice("scope", nil, "Allowed scopes (repeat or comma separate)")
	cmd.Flags().String("notes", "", "Free-form notes")
}

// applyClientFlags overlays the flags the user actually set onto f.
func applyClientFlags(cmd *cobra.Command, f *services.ClientFields) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		f.DisplayName, _ = flags.GetString("name")
	}
	if flags.Changed("link") {
		f.Link, _ = flags.GetString("link")
	}
	if flags.Changed("image-url") {
		f.ImageURL, _ = flags.GetString("image-url")
	}
	if flags.Changed("redirect-uri") {
		f.RedirectURI, _ = flags.GetString("redirect-uri")
	}
	if flags.Changed("scope") {
		f.Scope, _ = flags.GetStringSlice("scope")
	}
	if flags.Changed("notes") {
		f.Notes, _ = flags.GetString("notes")
	}
}

func newClientRegisterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new client and print its credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f services.ClientFields
			f.ID, _ = cmd.Flags().GetString("id")
			f.Secret, _ = cmd.Flags().GetString("secret")
			applyClientFlags(cmd, &f)

			if f.DisplayName == "" {
				return fmt.Errorf("display name is required via --name flag")
			}

			c, err := a.engine.Clients.Register(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("client registration failed: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), newClientView(c, true))
		},
	}
	cmd.Flags().String("id", "", "Client ID (generated when empty)")
	cmd.Flags().String("secret", "", "Client secret (generated when empty)")
	addClientFieldFlags(cmd)
	return cmd
}

func newClientListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients ordered by display name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clients, err := a.engine.Clients.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list clients: %w", err)
			}

			views := make([]clientView, 0, len(clients))
			for _, c := range clients {
				views = append(views, newClientView(c, false))
			}
			return printYAML(cmd.OutOrStdout(), views)
		},
	}
}

func newClientShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [CLIENT_ID_NAME_OR_LINK]",
		Short: "Show a client by ID, display name or link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.engine.Clients.Lookup(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get client: %w", err)
			}
			withSecret, _ := cmd.Flags().GetBool("show-secret")
			return printYAML(cmd.OutOrStdout(), newClientView(c, withSecret))
		},
	}
	cmd.Flags().Bool("show-secret", false, "Include the client secret")
	return cmd
}

func newClientUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [CLIENT_ID]",
		Short: "Update a client; a revoked client is reinstated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cur, err := a.engine.Clients.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get client: %w", err)
			}

			f := fieldsOf(cur)
			applyClientFlags(cmd, &f)

			c, err := a.engine.Clients.Update(ctx, cur.ID, f)
			if err != nil {
				return fmt.Errorf("client update failed: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), newClientView(c, false))
		},
	}
	addClientFieldFlags(cmd)
	return cmd
}

func fieldsOf(c *domain.Client) services.ClientFields {
	return services.ClientFields{
		DisplayName: c.DisplayName,
		Link:        c.Link,
		ImageURL:    c.ImageURL,
		RedirectURI: c.RedirectURI,
		Scope:       c.Scope.Slice(),
		Notes:       c.Notes,
	}
}

func newClientRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [CLIENT_ID]",
		Short: "Revoke a client with its requests, grants and tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.Clients.Revoke(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("client revocation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client %s revoked.\n", args[0])
			return nil
		},
	}
}

func newClientDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [CLIENT_ID]",
		Short: "Delete a client and every record that references it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.Clients.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("client deletion failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client %s deleted.\n", args[0])
			return nil
		},
	}
}
