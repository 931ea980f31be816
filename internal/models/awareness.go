package models

import "time"

// AwarenessFields видимые поля присутствия участника
type AwarenessFields struct {
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Cursor      int    `json:"cursor"`
}

// AwarenessEntry эфемерное состояние присутствия участника в комнате.
// Не является частью документа: побеждает запись с большим Timestamp,
// LastSeenAt выставляется принимающей стороной.
type AwarenessEntry struct {
	LastSeenAt    time.Time       `json:"-"`
	ParticipantID string          `json:"participant_id"`
	Fields        AwarenessFields `json:"fields"`
	Timestamp     int64           `json:"timestamp"`
}

// IsNewerThan сравнивает две записи по правилу LWW.
// Равные метки считаются устаревшими: повторная доставка ничего не меняет.
func (e *AwarenessEntry) IsNewerThan(other *AwarenessEntry) bool {
	return e.Timestamp > other.Timestamp
}
