package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/identity"
	"github.com/iudanet/gophtex/internal/server/storage"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStorage is a map-based implementation of ProjectStorage and ParticipantStorage
type mockStorage struct {
	projects     map[string]*models.Project
	participants map[string]models.Participant
	seeded       map[models.RoomKey]bool
	saveError    error
	createError  error
	mu           sync.Mutex
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		projects:     make(map[string]*models.Project),
		participants: make(map[string]models.Participant),
		seeded:       make(map[models.RoomKey]bool),
	}
}

func (m *mockStorage) CreateProject(_ context.Context, project *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createError != nil {
		return m.createError
	}
	m.projects[project.ID] = cloneProject(project)
	return nil
}

func (m *mockStorage) GetProject(_ context.Context, projectID string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, storage.ErrProjectNotFound
	}
	return cloneProject(p), nil
}

func (m *mockStorage) ListProjects(_ context.Context, participantID string) ([]*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Project
	for _, p := range m.projects {
		if p.IsMember(participantID) {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStorage) RenameProject(_ context.Context, projectID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok {
		return storage.ErrProjectNotFound
	}
	p.Name = name
	return nil
}

func (m *mockStorage) AddFile(_ context.Context, projectID, fileName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok {
		return storage.ErrProjectNotFound
	}
	if p.HasFile(fileName) {
		return storage.ErrFileAlreadyExists
	}
	p.Files = append(p.Files, models.NormalizeFileName(fileName))
	return nil
}

func (m *mockStorage) AddCollaborator(_ context.Context, projectID, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok {
		return storage.ErrProjectNotFound
	}
	if !p.IsMember(participantID) {
		c := m.participants[participantID]
		c.ID = participantID
		p.Collaborators = append(p.Collaborators, c)
	}
	return nil
}

func (m *mockStorage) MarkSeeded(_ context.Context, projectID, fileName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok || !p.HasFile(fileName) {
		return false, storage.ErrFileNotFound
	}
	key := models.NewRoomKey(projectID, fileName)
	if m.seeded[key] {
		return false, nil
	}
	m.seeded[key] = true
	return true, nil
}

func (m *mockStorage) SaveParticipant(_ context.Context, participant models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveError != nil {
		return m.saveError
	}
	m.participants[participant.ID] = participant
	return nil
}

func (m *mockStorage) GetParticipant(_ context.Context, participantID string) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[participantID]
	if !ok {
		return nil, storage.ErrParticipantNotFound
	}
	return &p, nil
}

func cloneProject(p *models.Project) *models.Project {
	c := *p
	c.Files = append([]string{}, p.Files...)
	c.Collaborators = append([]models.Participant{}, p.Collaborators...)
	return &c
}

// newRequest строит запрос с JSON телом, участником в контексте и переменными пути
func newRequest(t *testing.T, method, target string, body interface{}, p *models.Participant, vars map[string]string) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req = req.WithContext(identity.WithParticipant(req.Context(), *p))
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}
