package storage

import (
	"context"

	"github.com/iudanet/gophtex/internal/models"
)

// ParticipantStorage defines interface for participant persistence
type ParticipantStorage interface {
	// SaveParticipant creates participant or updates its display name and color
	SaveParticipant(ctx context.Context, participant models.Participant) error

	// GetParticipant retrieves participant by ID
	// Returns ErrParticipantNotFound if participant doesn't exist
	GetParticipant(ctx context.Context, participantID string) (*models.Participant, error)
}
