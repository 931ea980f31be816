package models

import "time"

// Participant участник совместного редактирования, выдается провайдером идентичности
type Participant struct {
	ID          string `json:"id"`           // UUID участника
	DisplayName string `json:"display_name"` // отображаемое имя
	Color       string `json:"color,omitempty"`
}

// Identity выданная сервером идентичность вместе с токеном доступа
type Identity struct {
	ExpiresAt   time.Time   `json:"expires_at"` // время истечения токена
	Participant Participant `json:"participant"`
	Token       string      `json:"token"` // JWT access token
}

// Expired сообщает, что токен идентичности истек к моменту now
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
