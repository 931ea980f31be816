// Package postgres хранит метаданные проектов в PostgreSQL.
// Используется, когда несколько узлов сервера работают с общей базой.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Storage represents PostgreSQL storage implementation
type Storage struct {
	pool *pgxpool.Pool
}

var _ storage.Storage = (*Storage)(nil)

// New connects to PostgreSQL by dsn and applies migrations
func New(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the connection pool
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// runMigrations выполняет миграции через database/sql поверх того же пула
func (s *Storage) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

// CreateProject creates a project together with its initial files
func (s *Storage) CreateProject(ctx context.Context, project *models.Project) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO projects (id, name, owner_id, owner_name, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, project.ID, project.Name, project.OwnerID, project.OwnerName, project.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert project: %w", err)
		}

		for i, name := range project.Files {
			_, err = tx.Exec(ctx, `
				INSERT INTO project_files (project_id, name, position)
				VALUES ($1, $2, $3)
			`, project.ID, models.NormalizeFileName(name), i)
			if err != nil {
				return fmt.Errorf("failed to insert file %q: %w", name, err)
			}
		}

		for _, c := range project.Collaborators {
			_, err = tx.Exec(ctx, `
				INSERT INTO project_collaborators (project_id, participant_id, added_at)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
			`, project.ID, c.ID, project.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert collaborator: %w", err)
			}
		}
		return nil
	})
}

// GetProject retrieves project with files and collaborators
func (s *Storage) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	project := &models.Project{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, owner_id, owner_name, created_at
		FROM projects
		WHERE id = $1
	`, projectID).Scan(&project.ID, &project.Name, &project.OwnerID, &project.OwnerName, &project.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name FROM project_files WHERE project_id = $1 ORDER BY position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	project.Files, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT c.participant_id, COALESCE(p.display_name, ''), COALESCE(p.color, '')
		FROM project_collaborators c
		LEFT JOIN participants p ON p.id = c.participant_id
		WHERE c.project_id = $1
		ORDER BY c.added_at, c.participant_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaborators: %w", err)
	}
	project.Collaborators, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Participant, error) {
		var c models.Participant
		err := row.Scan(&c.ID, &c.DisplayName, &c.Color)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan collaborators: %w", err)
	}

	return project, nil
}

// ListProjects retrieves projects owned by participant or shared with it
func (s *Storage) ListProjects(ctx context.Context, participantID string) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id
		FROM projects p
		WHERE p.owner_id = $1
		   OR EXISTS (
		       SELECT 1 FROM project_collaborators c
		       WHERE c.project_id = p.id AND c.participant_id = $1
		   )
		ORDER BY p.created_at DESC, p.id
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan project ids: %w", err)
	}

	projects := make([]*models.Project, 0, len(ids))
	for _, id := range ids {
		project, err := s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// RenameProject changes project name
func (s *Storage) RenameProject(ctx context.Context, projectID, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE projects SET name = $1 WHERE id = $2`, name, projectID)
	if err != nil {
		return fmt.Errorf("failed to rename project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrProjectNotFound
	}
	return nil
}

// AddFile appends file to the project
func (s *Storage) AddFile(ctx context.Context, projectID, fileName string) error {
	fileName = models.NormalizeFileName(fileName)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// блокировка строки проекта упорядочивает параллельные добавления
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return storage.ErrProjectNotFound
			}
			return fmt.Errorf("failed to lock project: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO project_files (project_id, name, position)
			SELECT $1, $2, COALESCE(MAX(position), -1) + 1
			FROM project_files
			WHERE project_id = $1
			ON CONFLICT (project_id, name) DO NOTHING
		`, projectID, fileName)
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrFileAlreadyExists
		}
		return nil
	})
}

// AddCollaborator shares project with participant
func (s *Storage) AddCollaborator(ctx context.Context, projectID, participantID string) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO project_collaborators (project_id, participant_id, added_at)
		SELECT id, $2, $3 FROM projects WHERE id = $1
		ON CONFLICT DO NOTHING
	`, projectID, participantID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert collaborator: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	if !exists {
		return storage.ErrProjectNotFound
	}
	return nil
}

// MarkSeeded records that initial content of the file was produced
func (s *Storage) MarkSeeded(ctx context.Context, projectID, fileName string) (bool, error) {
	fileName = models.NormalizeFileName(fileName)

	tag, err := s.pool.Exec(ctx, `
		UPDATE project_files SET seeded = TRUE
		WHERE project_id = $1 AND name = $2 AND NOT seeded
	`, projectID, fileName)
	if err != nil {
		return false, fmt.Errorf("failed to mark file seeded: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM project_files WHERE project_id = $1 AND name = $2)
	`, projectID, fileName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check file: %w", err)
	}
	if !exists {
		return false, storage.ErrFileNotFound
	}
	return false, nil
}

// SaveParticipant creates participant or updates its display name and color
func (s *Storage) SaveParticipant(ctx context.Context, participant models.Participant) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, display_name, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			color = EXCLUDED.color,
			updated_at = EXCLUDED.updated_at
	`, participant.ID, participant.DisplayName, participant.Color, now)
	if err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves participant by ID
func (s *Storage) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	participant := &models.Participant{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, color FROM participants WHERE id = $1
	`, participantID).Scan(&participant.ID, &participant.DisplayName, &participant.Color)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return participant, nil
}
