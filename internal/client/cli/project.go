package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophtex/internal/models"
)

func newProjectCommand(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage projects, files and collaborators",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a project with main.tex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runProjectCreate(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List own and shared projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.cli.runProjectList(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runProjectShow(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <project-id> <name>",
		Short: "Rename a project (owner only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runProjectRename(cmd.Context(), args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add-file <project-id> <file>",
		Short: "Add a file to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runProjectAddFile(cmd.Context(), args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "invite <project-id> <participant-id>",
		Short: "Add a collaborator (owner only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runProjectInvite(cmd.Context(), args[0], args[1])
		},
	})

	var shareFile string
	shareCmd := &cobra.Command{
		Use:   "share <project-id>",
		Short: "Print a signed share link for a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runProjectShare(cmd.Context(), args[0], shareFile)
		},
	}
	shareCmd.Flags().StringVar(&shareFile, "file", models.DefaultFileName, "file to open by the link")
	cmd.AddCommand(shareCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "join <share-link>",
		Short: "Join a project by share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runProjectJoin(cmd.Context(), args[0])
		},
	})

	return cmd
}

func (c *Cli) runProjectCreate(ctx context.Context, name string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	project, err := c.apiClient.CreateProject(ctx, name)
	if err != nil {
		return err
	}

	c.io.Println("✓ Project created")
	c.printProject(project)
	return nil
}

func (c *Cli) runProjectList(ctx context.Context) error {
	identity, err := c.requireIdentity()
	if err != nil {
		return err
	}
	projects, err := c.apiClient.ListProjects(ctx)
	if err != nil {
		return err
	}

	c.io.Println("=== Projects ===")
	if len(projects) == 0 {
		c.io.Println("No projects found.")
		return nil
	}
	for i := range projects {
		p := &projects[i]
		role := "collaborator"
		if p.OwnerID == identity.Participant.ID {
			role = "owner"
		}
		c.io.Printf("%s  %-24s %-12s %d file(s)\n", p.ID, p.Name, role, len(p.Files))
	}
	return nil
}

func (c *Cli) runProjectShow(ctx context.Context, projectID string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	project, err := c.apiClient.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	c.printProject(project)
	return nil
}

func (c *Cli) runProjectRename(ctx context.Context, projectID, name string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	project, err := c.apiClient.RenameProject(ctx, projectID, name)
	if err != nil {
		return err
	}
	c.io.Printf("✓ Project renamed to %q\n", project.Name)
	return nil
}

func (c *Cli) runProjectAddFile(ctx context.Context, projectID, fileName string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	project, err := c.apiClient.AddFile(ctx, projectID, fileName)
	if err != nil {
		return err
	}
	c.io.Printf("✓ File %s added, project has %d file(s)\n", models.NormalizeFileName(fileName), len(project.Files))
	return nil
}

func (c *Cli) runProjectInvite(ctx context.Context, projectID, participantID string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	project, err := c.apiClient.AddCollaborator(ctx, projectID, participantID)
	if err != nil {
		return err
	}
	c.io.Printf("✓ %s can now edit %q\n", participantID, project.Name)
	return nil
}

func (c *Cli) runProjectShare(ctx context.Context, projectID, fileName string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	link, err := c.apiClient.ShareLink(ctx, projectID, fileName)
	if err != nil {
		return err
	}
	c.io.Println(link.URL)
	return nil
}

func (c *Cli) runProjectJoin(ctx context.Context, link string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	target, err := c.apiClient.ResolveShare(ctx, link)
	if err != nil {
		return err
	}

	c.io.Printf("✓ Joined project %s\n", target.ProjectID)
	c.io.Printf("Open the file with: gophtex edit %s %s\n", target.ProjectID, target.FileName)
	if err := c.store.SaveLastRoom(ctx, target.RoomKey); err != nil {
		return fmt.Errorf("failed to remember room: %w", err)
	}
	return nil
}
