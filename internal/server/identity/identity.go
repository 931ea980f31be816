// Package identity выдает и проверяет токены участников совместного редактирования.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iudanet/gophtex/internal/models"
)

// Issuer имя издателя в токенах
const Issuer = "gophtex"

// DefaultTokenTTL время жизни токена по умолчанию
const DefaultTokenTTL = 30 * 24 * time.Hour

// Palette цвета присутствия, из которых выбирается цвет нового участника
var Palette = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FECA57", "#FF9FF3", "#54A0FF"}

var (
	// ErrInvalidToken токен не прошел проверку
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySecret не задан секрет подписи
	ErrEmptySecret = errors.New("token secret is empty")
)

// Claims представляет JWT claims участника
type Claims struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Color         string `json:"color,omitempty"`
	jwt.RegisteredClaims
}

// Participant возвращает участника, записанного в токене
func (c *Claims) Participant() models.Participant {
	return models.Participant{
		ID:          c.ParticipantID,
		DisplayName: c.DisplayName,
		Color:       c.Color,
	}
}

// Config содержит конфигурацию выдачи токенов
type Config struct {
	Secret   []byte
	TokenTTL time.Duration
}

// Service выдает и проверяет токены идентичности
type Service struct {
	now func() time.Time
	cfg Config
}

// NewService создает сервис идентичности
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// Issue создает нового участника и подписанный токен для него.
// Пустой цвет заменяется случайным цветом из палитры.
func (s *Service) Issue(displayName, color string) (*models.Identity, error) {
	if color == "" {
		var err error
		color, err = RandomColor()
		if err != nil {
			return nil, err
		}
	}
	return s.Renew(models.Participant{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Color:       color,
	})
}

// Renew подписывает новый токен для существующего участника
func (s *Service) Renew(participant models.Participant) (*models.Identity, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := Claims{
		ParticipantID: participant.ID,
		DisplayName:   participant.DisplayName,
		Color:         participant.Color,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participant.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &models.Identity{
		Participant: participant,
		Token:       tokenString,
		ExpiresAt:   expiresAt,
	}, nil
}

// Validate проверяет подпись и срок действия токена
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.Secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RandomColor выбирает случайный цвет из палитры
func RandomColor() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(Palette))))
	if err != nil {
		return "", fmt.Errorf("failed to pick color: %w", err)
	}
	return Palette[n.Int64()], nil
}

type contextKey string

const participantKey contextKey = "participant"

// WithParticipant кладет участника в контекст запроса
func WithParticipant(ctx context.Context, p models.Participant) context.Context {
	return context.WithValue(ctx, participantKey, p)
}

// ParticipantFromContext извлекает участника из контекста запроса
func ParticipantFromContext(ctx context.Context) (models.Participant, bool) {
	p, ok := ctx.Value(participantKey).(models.Participant)
	return p, ok
}
