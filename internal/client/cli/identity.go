package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophtex/internal/client/storage"
	pkgapi "github.com/iudanet/gophtex/pkg/api"
)

func newIdentityCommand(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage participant identity",
	}

	var issue pkgapi.IdentityRequest
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new participant identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.cli.runIdentityIssue(cmd.Context(), issue)
		},
	}
	issueCmd.Flags().StringVar(&issue.DisplayName, "name", "", "display name")
	issueCmd.Flags().StringVar(&issue.Color, "color", "", "presence color, e.g. #FF6B6B (random when empty)")
	_ = issueCmd.MarkFlagRequired("name")

	var update pkgapi.IdentityRequest
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Change display name or color",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.cli.runIdentityUpdate(cmd.Context(), update)
		},
	}
	updateCmd.Flags().StringVar(&update.DisplayName, "name", "", "new display name")
	updateCmd.Flags().StringVar(&update.Color, "color", "", "new presence color")

	showCmd := &cobra.Command{
		Use:         "show",
		Short:       "Show stored identity",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.cli.runIdentityShow()
		},
	}

	forgetCmd := &cobra.Command{
		Use:         "forget",
		Short:       "Remove stored identity",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.cli.runIdentityForget(cmd.Context())
		},
	}

	cmd.AddCommand(issueCmd, updateCmd, showCmd, forgetCmd)
	return cmd
}

func (c *Cli) runIdentityIssue(ctx context.Context, req pkgapi.IdentityRequest) error {
	resp, err := c.apiClient.IssueIdentity(ctx, req)
	if err != nil {
		return err
	}
	if err := c.saveIdentity(ctx, resp); err != nil {
		return err
	}

	c.io.Println("✓ Identity issued")
	c.printIdentity()
	return nil
}

func (c *Cli) runIdentityUpdate(ctx context.Context, req pkgapi.IdentityRequest) error {
	identity, err := c.requireIdentity()
	if err != nil {
		return err
	}
	if req.DisplayName == "" && req.Color == "" {
		return fmt.Errorf("nothing to update: set --name or --color")
	}
	if req.DisplayName == "" {
		req.DisplayName = identity.Participant.DisplayName
	}

	resp, err := c.apiClient.UpdateIdentity(ctx, req)
	if err != nil {
		return err
	}
	if err := c.saveIdentity(ctx, resp); err != nil {
		return err
	}

	c.io.Println("✓ Identity updated")
	c.printIdentity()
	return nil
}

func (c *Cli) runIdentityShow() error {
	if c.identity == nil {
		c.io.Println("No identity stored.")
		c.io.Println("Run 'gophtex identity issue --name <name>' to get one.")
		return nil
	}
	c.printIdentity()
	return nil
}

func (c *Cli) runIdentityForget(ctx context.Context) error {
	if err := c.store.DeleteIdentity(ctx); err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			c.io.Println("No identity stored.")
			return nil
		}
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	c.identity = nil
	c.apiClient.SetToken("")

	c.io.Println("✓ Identity removed")
	return nil
}

func (c *Cli) printIdentity() {
	identity := c.identity
	c.io.Printf("Participant: %s\n", identity.Participant.ID)
	c.io.Printf("Name:        %s\n", identity.Participant.DisplayName)
	c.io.Printf("Color:       %s\n", identity.Participant.Color)
	c.io.Printf("Server:      %s\n", identity.ServerURL)

	remaining := identity.ExpiresAt.Sub(c.now())
	if remaining > 0 {
		c.io.Printf("Expires:     %s (in %s)\n", identity.ExpiresAt.Format(time.RFC3339), remaining.Round(time.Second))
	} else {
		c.io.Printf("Expires:     %s (expired)\n", identity.ExpiresAt.Format(time.RFC3339))
	}
}
