package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/storage"
	"github.com/iudanet/gophtex/internal/sharelink"
	"github.com/iudanet/gophtex/internal/validation"
	"github.com/iudanet/gophtex/pkg/api"
)

// ProjectIDVar имя переменной пути с идентификатором проекта
const ProjectIDVar = "projectID"

// LinkSigner строит и проверяет ссылки на файлы
type LinkSigner interface {
	Link(projectID, fileName string) (string, error)
	Resolve(link string) (sharelink.Target, error)
}

// ProjectHandler обслуживает метаданные проектов
type ProjectHandler struct {
	projects     storage.ProjectStorage
	participants storage.ParticipantStorage
	links        LinkSigner
	responder
}

// NewProjectHandler создает handler проектов
func NewProjectHandler(logger *slog.Logger, projects storage.ProjectStorage, participants storage.ParticipantStorage, links LinkSigner) *ProjectHandler {
	return &ProjectHandler{
		responder:    responder{logger: logger},
		projects:     projects,
		participants: participants,
		links:        links,
	}
}

// Create обрабатывает POST /api/v1/projects
// Новый проект сразу содержит main.tex
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := h.participant(w, r)
	if !ok {
		return
	}

	var req api.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode create project request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.ValidateProjectName(req.Name); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	project := &models.Project{
		ID:            uuid.New().String(),
		Name:          req.Name,
		OwnerID:       owner.ID,
		OwnerName:     owner.DisplayName,
		Files:         []string{models.DefaultFileName},
		Collaborators: []models.Participant{},
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.projects.CreateProject(ctx, project); err != nil {
		h.logger.ErrorContext(ctx, "failed to create project", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "project created",
		slog.String("project_id", project.ID),
		slog.String("owner_id", owner.ID))

	h.sendJSON(w, api.NewProjectResponse(project), http.StatusCreated)
}

// List обрабатывает GET /api/v1/projects
// Возвращает проекты участника и проекты, которыми с ним поделились
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := h.participant(w, r)
	if !ok {
		return
	}

	projects, err := h.projects.ListProjects(ctx, p.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list projects", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ProjectListResponse{Projects: make([]api.ProjectResponse, 0, len(projects))}
	for _, project := range projects {
		resp.Projects = append(resp.Projects, api.NewProjectResponse(project))
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// Get обрабатывает GET /api/v1/projects/{projectID}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, _, ok := h.memberProject(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, api.NewProjectResponse(project), http.StatusOK)
}

// Rename обрабатывает PATCH /api/v1/projects/{projectID}
// Переименовать проект может только владелец
func (h *ProjectHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	project, p, ok := h.memberProject(w, r)
	if !ok {
		return
	}
	if project.OwnerID != p.ID {
		h.sendError(w, "only the owner can rename the project", http.StatusForbidden)
		return
	}

	var req api.RenameProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.ValidateProjectName(req.Name); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.projects.RenameProject(ctx, project.ID, req.Name); err != nil {
		h.storageError(w, r, "failed to rename project", err)
		return
	}
	project.Name = req.Name

	h.logger.InfoContext(ctx, "project renamed", slog.String("project_id", project.ID))
	h.sendJSON(w, api.NewProjectResponse(project), http.StatusOK)
}

// AddFile обрабатывает POST /api/v1/projects/{projectID}/files
func (h *ProjectHandler) AddFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	project, _, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	var req api.AddFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	fileName, err := validation.ValidateFileName(req.Name)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.projects.AddFile(ctx, project.ID, fileName); err != nil {
		h.storageError(w, r, "failed to add file", err)
		return
	}
	project.Files = append(project.Files, fileName)

	h.logger.InfoContext(ctx, "file added",
		slog.String("project_id", project.ID),
		slog.String("file", fileName))

	h.sendJSON(w, api.NewProjectResponse(project), http.StatusCreated)
}

// AddCollaborator обрабатывает POST /api/v1/projects/{projectID}/collaborators
// Добавить соавтора может только владелец
func (h *ProjectHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	project, p, ok := h.memberProject(w, r)
	if !ok {
		return
	}
	if project.OwnerID != p.ID {
		h.sendError(w, "only the owner can add collaborators", http.StatusForbidden)
		return
	}

	var req api.AddCollaboratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == "" {
		h.sendError(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	collaborator, err := h.participants.GetParticipant(ctx, req.ParticipantID)
	if err != nil {
		h.storageError(w, r, "failed to get participant", err)
		return
	}

	if err := h.projects.AddCollaborator(ctx, project.ID, collaborator.ID); err != nil {
		h.storageError(w, r, "failed to add collaborator", err)
		return
	}
	if !project.IsMember(collaborator.ID) {
		project.Collaborators = append(project.Collaborators, *collaborator)
	}

	h.logger.InfoContext(ctx, "collaborator added",
		slog.String("project_id", project.ID),
		slog.String("participant_id", collaborator.ID))

	h.sendJSON(w, api.NewProjectResponse(project), http.StatusOK)
}

// ShareLink обрабатывает GET /api/v1/projects/{projectID}/share?file=<name>
func (h *ProjectHandler) ShareLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	project, _, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	fileName := r.URL.Query().Get("file")
	if fileName == "" {
		fileName = models.DefaultFileName
	}
	if !project.HasFile(fileName) {
		h.sendError(w, "file not found", http.StatusNotFound)
		return
	}

	link, err := h.links.Link(project.ID, fileName)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build share link", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, api.ShareLinkResponse{
		URL:     link,
		RoomKey: models.NewRoomKey(project.ID, fileName),
	}, http.StatusOK)
}

// ResolveShare обрабатывает POST /api/v1/share/resolve
// Проверяет ссылку и добавляет участника в соавторы проекта
func (h *ProjectHandler) ResolveShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := h.participant(w, r)
	if !ok {
		return
	}

	var req api.ResolveShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		h.sendError(w, "url is required", http.StatusBadRequest)
		return
	}

	target, err := h.links.Resolve(req.URL)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid share link", slog.Any("error", err))
		h.sendError(w, "invalid share link", http.StatusBadRequest)
		return
	}

	project, err := h.projects.GetProject(ctx, target.ProjectID)
	if err != nil {
		h.storageError(w, r, "failed to get project", err)
		return
	}
	if !project.HasFile(target.FileName) {
		h.sendError(w, "file not found", http.StatusNotFound)
		return
	}

	if !project.IsMember(p.ID) {
		if err := h.projects.AddCollaborator(ctx, project.ID, p.ID); err != nil {
			h.storageError(w, r, "failed to add collaborator", err)
			return
		}
		h.logger.InfoContext(ctx, "collaborator joined by link",
			slog.String("project_id", project.ID),
			slog.String("participant_id", p.ID))
	}

	h.sendJSON(w, api.ResolveShareResponse{
		ProjectID: target.ProjectID,
		FileName:  target.FileName,
		RoomKey:   target.RoomKey(),
	}, http.StatusOK)
}

// memberProject загружает проект из пути и проверяет, что участник в нем состоит
func (h *ProjectHandler) memberProject(w http.ResponseWriter, r *http.Request) (*models.Project, models.Participant, bool) {
	p, ok := h.participant(w, r)
	if !ok {
		return nil, p, false
	}

	projectID := mux.Vars(r)[ProjectIDVar]
	if projectID == "" {
		h.sendError(w, "project id is required", http.StatusBadRequest)
		return nil, p, false
	}

	project, err := h.projects.GetProject(r.Context(), projectID)
	if err != nil {
		h.storageError(w, r, "failed to get project", err)
		return nil, p, false
	}
	if !project.IsMember(p.ID) {
		h.logger.WarnContext(r.Context(), "access to foreign project denied",
			slog.String("project_id", projectID),
			slog.String("participant_id", p.ID))
		h.sendError(w, "access denied", http.StatusForbidden)
		return nil, p, false
	}

	return project, p, true
}
