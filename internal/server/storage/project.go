package storage

import (
	"context"

	"github.com/iudanet/gophtex/internal/models"
)

// ProjectStorage defines interface for project metadata persistence.
// Document contents are not stored: they live in room replicas.
type ProjectStorage interface {
	// CreateProject creates a project together with its initial files
	CreateProject(ctx context.Context, project *models.Project) error

	// GetProject retrieves project with files (in creation order) and collaborators
	// Returns ErrProjectNotFound if project doesn't exist
	GetProject(ctx context.Context, projectID string) (*models.Project, error)

	// ListProjects retrieves projects owned by participant or shared with it,
	// newest first. Returns empty slice if no projects found
	ListProjects(ctx context.Context, participantID string) ([]*models.Project, error)

	// RenameProject changes project name
	// Returns ErrProjectNotFound if project doesn't exist
	RenameProject(ctx context.Context, projectID, name string) error

	// AddFile appends file to the project
	// Returns ErrFileAlreadyExists if project already has this file
	AddFile(ctx context.Context, projectID, fileName string) error

	// AddCollaborator shares project with participant. Repeated calls are no-op
	AddCollaborator(ctx context.Context, projectID, participantID string) error

	// MarkSeeded records that initial content of the file was produced.
	// Returns true exactly once per file
	MarkSeeded(ctx context.Context, projectID, fileName string) (bool, error)
}

// Storage is the full server-side metadata store
type Storage interface {
	ProjectStorage
	ParticipantStorage
	Close() error
}
