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

// SaveParticipant creates participant or updates its display name and color
func (s *Storage) SaveParticipant(ctx context.Context, participant models.Participant) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, display_name, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			color = excluded.color,
			updated_at = excluded.updated_at
	`, participant.ID, participant.DisplayName, participant.Color, now, now)
	if err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves participant by ID
func (s *Storage) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	participant := &models.Participant{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, color
		FROM participants
		WHERE id = ?
	`, participantID).Scan(&participant.ID, &participant.DisplayName, &participant.Color)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return participant, nil
}
