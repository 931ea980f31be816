package api

// IdentityRequest запрос на выдачу идентичности участника
type IdentityRequest struct {
	DisplayName string `json:"display_name"`    // отображаемое имя
	Color       string `json:"color,omitempty"` // цвет курсора, выбирается сервером если пуст
}

// IdentityResponse выданная идентичность
type IdentityResponse struct {
	ParticipantID string `json:"participant_id"` // UUID участника
	DisplayName   string `json:"display_name"`
	Color         string `json:"color"`
	Token         string `json:"token"`      // JWT access token
	ExpiresIn     int64  `json:"expires_in"` // время жизни токена в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	NodeID  string `json:"node_id,omitempty"` // идентификатор узла сервера
	Rooms   int    `json:"rooms"`             // число активных комнат
}
