package api

import (
	"time"

	"github.com/iudanet/gophtex/internal/models"
)

// CreateProjectRequest запрос на создание проекта
type CreateProjectRequest struct {
	Name string `json:"name"` // название проекта
}

// RenameProjectRequest запрос на переименование проекта
type RenameProjectRequest struct {
	Name string `json:"name"`
}

// AddFileRequest запрос на добавление файла в проект
type AddFileRequest struct {
	Name string `json:"name"` // имя файла, например chapter1.tex
}

// AddCollaboratorRequest запрос на добавление соавтора
type AddCollaboratorRequest struct {
	ParticipantID string `json:"participant_id"`
}

// ProjectResponse представление проекта в API
type ProjectResponse struct {
	CreatedAt     time.Time            `json:"created_at"`
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	OwnerID       string               `json:"owner_id"`
	OwnerName     string               `json:"owner_name"`
	Files         []string             `json:"files"`
	Collaborators []models.Participant `json:"collaborators"`
}

// ProjectListResponse список проектов участника
type ProjectListResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

// NewProjectResponse конвертирует модель проекта в ответ API
func NewProjectResponse(p *models.Project) ProjectResponse {
	return ProjectResponse{
		CreatedAt:     p.CreatedAt,
		ID:            p.ID,
		Name:          p.Name,
		OwnerID:       p.OwnerID,
		OwnerName:     p.OwnerName,
		Files:         append([]string{}, p.Files...),
		Collaborators: append([]models.Participant{}, p.Collaborators...),
	}
}

// ShareLinkResponse ссылка на файл проекта
type ShareLinkResponse struct {
	URL     string         `json:"url"`
	RoomKey models.RoomKey `json:"room_key"`
}

// ResolveShareResponse результат разбора ссылки
type ResolveShareResponse struct {
	ProjectID string         `json:"project_id"`
	FileName  string         `json:"file_name"`
	RoomKey   models.RoomKey `json:"room_key"`
}

// RoomSnapshotResponse текущее состояние комнаты на сервере
type RoomSnapshotResponse struct {
	Version      models.VersionVector    `json:"version"`
	RoomKey      models.RoomKey          `json:"room_key"`
	Text         string                  `json:"text"`
	Participants []models.AwarenessEntry `json:"participants"`
	Subscribers  int                     `json:"subscribers"`
}

// ResolveShareRequest запрос на разбор ссылки
type ResolveShareRequest struct {
	URL string `json:"url"`
}
