package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show identity, server and unsent edits",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.cli.runStatus(cmd.Context())
		},
	}
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	if c.identity == nil {
		c.io.Println("Identity: none")
		c.io.Println("Run 'gophtex identity issue --name <name>' to get one.")
	} else {
		c.printIdentity()
	}
	c.io.Println()

	health, err := c.apiClient.Health(ctx)
	if err != nil {
		c.io.Printf("Server:   %s unreachable (%v)\n", c.apiClient.BaseURL(), err)
	} else {
		c.io.Printf("Server:   %s %s, node %s, %d active room(s)\n",
			c.apiClient.BaseURL(), health.Status, health.NodeID, health.Rooms)
	}

	last, err := c.store.GetLastRoom(ctx)
	if err != nil {
		return err
	}
	if last != "" {
		c.io.Printf("Last file: %s\n", last)
	}

	pending, err := c.store.PendingRooms(ctx)
	if err != nil {
		return err
	}
	c.io.Println()
	if len(pending) == 0 {
		c.io.Println("✓ No unsent edits")
		return nil
	}
	for _, key := range pending {
		updates, err := c.store.Load(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to read unsent edits: %w", err)
		}
		c.io.Printf("⚠️  %s: %d unsent update(s)\n", key, len(updates))
	}
	c.io.Println("Open the file with 'gophtex edit' to send them.")
	return nil
}
