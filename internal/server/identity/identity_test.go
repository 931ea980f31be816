package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
)

func newTestService(t *testing.T, secret string) *Service {
	t.Helper()
	s, err := NewService(Config{Secret: []byte(secret), TokenTTL: time.Hour})
	require.NoError(t, err)
	return s
}

func TestNewService(t *testing.T) {
	_, err := NewService(Config{})
	assert.ErrorIs(t, err, ErrEmptySecret)

	s, err := NewService(Config{Secret: []byte("secret")})
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, s.cfg.TokenTTL)
}

func TestService_IssueAndValidate(t *testing.T) {
	s := newTestService(t, "test-secret-key")

	identity, err := s.Issue("Alice", "#FF6B6B")
	require.NoError(t, err)
	assert.NotEmpty(t, identity.Token)
	assert.NotEmpty(t, identity.Participant.ID)
	assert.Equal(t, "Alice", identity.Participant.DisplayName)
	assert.Equal(t, "#FF6B6B", identity.Participant.Color)
	assert.WithinDuration(t, time.Now().Add(time.Hour), identity.ExpiresAt, time.Minute)

	claims, err := s.Validate(identity.Token)
	require.NoError(t, err)
	assert.Equal(t, identity.Participant, claims.Participant())
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, identity.Participant.ID, claims.Subject)
}

func TestService_IssueAssignsPaletteColor(t *testing.T) {
	s := newTestService(t, "test-secret-key")

	for i := 0; i < 20; i++ {
		identity, err := s.Issue("Bob", "")
		require.NoError(t, err)
		assert.Contains(t, Palette, identity.Participant.Color)
	}
}

func TestService_IssueUniqueParticipants(t *testing.T) {
	s := newTestService(t, "test-secret-key")

	a, err := s.Issue("Alice", "")
	require.NoError(t, err)
	b, err := s.Issue("Alice", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Participant.ID, b.Participant.ID)
}

func TestService_Renew(t *testing.T) {
	s := newTestService(t, "test-secret-key")
	p := models.Participant{ID: "p-1", DisplayName: "Alice L.", Color: "#54A0FF"}

	identity, err := s.Renew(p)
	require.NoError(t, err)
	assert.Equal(t, p, identity.Participant)

	claims, err := s.Validate(identity.Token)
	require.NoError(t, err)
	assert.Equal(t, p, claims.Participant())
}

func TestService_ValidateRejects(t *testing.T) {
	s := newTestService(t, "secret-key-1")
	other := newTestService(t, "secret-key-2")

	foreign, err := other.Issue("Mallory", "")
	require.NoError(t, err)

	expired := newTestService(t, "secret-key-1")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("Alice", "")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		ParticipantID:    "p-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ParticipantID:    "p-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	}).SignedString([]byte("secret-key-1"))
	require.NoError(t, err)

	noParticipant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString([]byte("secret-key-1"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "invalid.token.here"},
		{name: "wrong secret", token: foreign.Token},
		{name: "expired", token: old.Token},
		{name: "none algorithm", token: noneToken},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "no participant", token: noParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParticipantContext(t *testing.T) {
	_, ok := ParticipantFromContext(context.Background())
	assert.False(t, ok)

	p := models.Participant{ID: "p-1", DisplayName: "Alice"}
	got, ok := ParticipantFromContext(WithParticipant(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, p, got)
}
