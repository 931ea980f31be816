package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/storage"
)

// CreateProject creates a project together with its initial files
func (s *Storage) CreateProject(ctx context.Context, project *models.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, owner_id, owner_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.OwnerID, project.OwnerName, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	for i, name := range project.Files {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_files (project_id, name, position)
			VALUES (?, ?, ?)
		`, project.ID, models.NormalizeFileName(name), i)
		if err != nil {
			return fmt.Errorf("failed to insert file %q: %w", name, err)
		}
	}

	for _, c := range project.Collaborators {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO project_collaborators (project_id, participant_id, added_at)
			VALUES (?, ?, ?)
		`, project.ID, c.ID, project.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert collaborator: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetProject retrieves project with files and collaborators
func (s *Storage) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	project := &models.Project{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, owner_name, created_at
		FROM projects
		WHERE id = ?
	`, projectID).Scan(
		&project.ID,
		&project.Name,
		&project.OwnerID,
		&project.OwnerName,
		&project.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if project.Files, err = s.projectFiles(ctx, projectID); err != nil {
		return nil, err
	}
	if project.Collaborators, err = s.projectCollaborators(ctx, projectID); err != nil {
		return nil, err
	}

	return project, nil
}

// ListProjects retrieves projects owned by participant or shared with it
func (s *Storage) ListProjects(ctx context.Context, participantID string) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id
		FROM projects p
		WHERE p.owner_id = ?
		   OR EXISTS (
		       SELECT 1 FROM project_collaborators c
		       WHERE c.project_id = p.id AND c.participant_id = ?
		   )
		ORDER BY p.created_at DESC, p.id
	`, participantID, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}

	// Соединение одно, поэтому сначала дочитываем идентификаторы
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	_ = rows.Close()

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
	result, err := s.db.ExecContext(ctx, `UPDATE projects SET name = ? WHERE id = ?`, name, projectID)
	if err != nil {
		return fmt.Errorf("failed to rename project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrProjectNotFound
	}
	return nil
}

// AddFile appends file to the project
func (s *Storage) AddFile(ctx context.Context, projectID, fileName string) error {
	fileName = models.NormalizeFileName(fileName)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := requireProject(ctx, tx, projectID); err != nil {
		return err
	}

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM project_files WHERE project_id = ? AND name = ?
	`, projectID, fileName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check file: %w", err)
	}
	if exists > 0 {
		return storage.ErrFileAlreadyExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_files (project_id, name, position)
		SELECT ?, ?, COALESCE(MAX(position), -1) + 1
		FROM project_files
		WHERE project_id = ?
	`, projectID, fileName, projectID)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddCollaborator shares project with participant
func (s *Storage) AddCollaborator(ctx context.Context, projectID, participantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := requireProject(ctx, tx, projectID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO project_collaborators (project_id, participant_id, added_at)
		VALUES (?, ?, ?)
	`, projectID, participantID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert collaborator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkSeeded records that initial content of the file was produced
func (s *Storage) MarkSeeded(ctx context.Context, projectID, fileName string) (bool, error) {
	fileName = models.NormalizeFileName(fileName)

	result, err := s.db.ExecContext(ctx, `
		UPDATE project_files SET seeded = 1
		WHERE project_id = ? AND name = ? AND seeded = 0
	`, projectID, fileName)
	if err != nil {
		return false, fmt.Errorf("failed to mark file seeded: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM project_files WHERE project_id = ? AND name = ?
	`, projectID, fileName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check file: %w", err)
	}
	if exists == 0 {
		return false, storage.ErrFileNotFound
	}
	return false, nil
}

func (s *Storage) projectFiles(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM project_files
		WHERE project_id = ?
		ORDER BY position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	files := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return files, nil
}

func (s *Storage) projectCollaborators(ctx context.Context, projectID string) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.participant_id, COALESCE(p.display_name, ''), COALESCE(p.color, '')
		FROM project_collaborators c
		LEFT JOIN participants p ON p.id = c.participant_id
		WHERE c.project_id = ?
		ORDER BY c.added_at, c.participant_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := []models.Participant{}
	for rows.Next() {
		var c models.Participant
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan collaborator: %w", err)
		}
		collaborators = append(collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return collaborators, nil
}

func requireProject(ctx context.Context, tx *sql.Tx, projectID string) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	if exists == 0 {
		return storage.ErrProjectNotFound
	}
	return nil
}
