package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/storage"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// Используем in-memory database для тестов
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}

	return s, cleanup
}

func newTestProject(ownerID string, createdAt time.Time) *models.Project {
	return &models.Project{
		ID:            uuid.New().String(),
		Name:          "Thesis",
		OwnerID:       ownerID,
		OwnerName:     "Alice",
		Files:         []string{models.DefaultFileName, "references.bib"},
		Collaborators: []models.Participant{},
		CreatedAt:     createdAt,
	}
}

func TestStorage_CreateAndGetProject(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := newTestProject("alice", time.Now())
	require.NoError(t, s.CreateProject(ctx, project))

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)
	assert.Equal(t, "Thesis", got.Name)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, "Alice", got.OwnerName)
	assert.Equal(t, []string{"main.tex", "references.bib"}, got.Files)
	assert.Empty(t, got.Collaborators)
	assert.WithinDuration(t, project.CreatedAt, got.CreatedAt, time.Second)

	_, err = s.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrProjectNotFound)
}

func TestStorage_RenameProject(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := newTestProject("alice", time.Now())
	require.NoError(t, s.CreateProject(ctx, project))

	require.NoError(t, s.RenameProject(ctx, project.ID, "Dissertation"))
	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dissertation", got.Name)

	assert.ErrorIs(t, s.RenameProject(ctx, "missing", "x"), storage.ErrProjectNotFound)
}

func TestStorage_AddFile(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := newTestProject("alice", time.Now())
	require.NoError(t, s.CreateProject(ctx, project))

	tests := []struct {
		wantErr   error
		name      string
		projectID string
		fileName  string
	}{
		{name: "new file", projectID: project.ID, fileName: "figures.tex"},
		{name: "second new file", projectID: project.ID, fileName: "appendix.tex"},
		{name: "duplicate", projectID: project.ID, fileName: "main.tex", wantErr: storage.ErrFileAlreadyExists},
		{name: "duplicate after normalization", projectID: project.ID, fileName: "  figures.tex ", wantErr: storage.ErrFileAlreadyExists},
		{name: "unknown project", projectID: "missing", fileName: "a.tex", wantErr: storage.ErrProjectNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddFile(ctx, tt.projectID, tt.fileName)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.tex", "references.bib", "figures.tex", "appendix.tex"}, got.Files)
}

func TestStorage_Collaborators(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := newTestProject("alice", time.Now())
	require.NoError(t, s.CreateProject(ctx, project))
	require.NoError(t, s.SaveParticipant(ctx, models.Participant{ID: "bob", DisplayName: "Bob", Color: "#4ECDC4"}))

	require.NoError(t, s.AddCollaborator(ctx, project.ID, "bob"))
	require.NoError(t, s.AddCollaborator(ctx, project.ID, "bob"))
	require.NoError(t, s.AddCollaborator(ctx, project.ID, "carol"))
	assert.ErrorIs(t, s.AddCollaborator(ctx, "missing", "bob"), storage.ErrProjectNotFound)

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, got.Collaborators, 2)
	assert.Equal(t, models.Participant{ID: "bob", DisplayName: "Bob", Color: "#4ECDC4"}, got.Collaborators[0])
	// участник без сохраненного профиля
	assert.Equal(t, "carol", got.Collaborators[1].ID)
	assert.Empty(t, got.Collaborators[1].DisplayName)
	assert.True(t, got.IsMember("bob"))
}

func TestStorage_ListProjects(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	older := newTestProject("alice", base)
	newer := newTestProject("alice", base.Add(time.Minute))
	shared := newTestProject("bob", base.Add(2*time.Minute))
	foreign := newTestProject("bob", base.Add(3*time.Minute))

	for _, p := range []*models.Project{older, newer, shared, foreign} {
		require.NoError(t, s.CreateProject(ctx, p))
	}
	require.NoError(t, s.AddCollaborator(ctx, shared.ID, "alice"))

	projects, err := s.ListProjects(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, shared.ID, projects[0].ID)
	assert.Equal(t, newer.ID, projects[1].ID)
	assert.Equal(t, older.ID, projects[2].ID)
	assert.Equal(t, []string{"main.tex", "references.bib"}, projects[0].Files)

	projects, err = s.ListProjects(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestStorage_MarkSeeded(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := newTestProject("alice", time.Now())
	require.NoError(t, s.CreateProject(ctx, project))

	first, err := s.MarkSeeded(ctx, project.ID, "main.tex")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkSeeded(ctx, project.ID, "main.tex")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := s.MarkSeeded(ctx, project.ID, "references.bib")
	require.NoError(t, err)
	assert.True(t, other)

	_, err = s.MarkSeeded(ctx, project.ID, "missing.tex")
	assert.ErrorIs(t, err, storage.ErrFileNotFound)
}

func TestStorage_Participants(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.GetParticipant(ctx, "alice")
	assert.ErrorIs(t, err, storage.ErrParticipantNotFound)

	require.NoError(t, s.SaveParticipant(ctx, models.Participant{ID: "alice", DisplayName: "Alice", Color: "#FF6B6B"}))
	require.NoError(t, s.SaveParticipant(ctx, models.Participant{ID: "alice", DisplayName: "Alice L.", Color: "#54A0FF"}))

	got, err := s.GetParticipant(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &models.Participant{ID: "alice", DisplayName: "Alice L.", Color: "#54A0FF"}, got)
}

func TestNew_RunsMigrationsOnFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "gophtex.db")

	s, err := New(ctx, path)
	require.NoError(t, err)
	project := newTestProject("alice", time.Now())
	require.NoError(t, s.CreateProject(ctx, project))
	require.NoError(t, s.Close())

	// повторное открытие не применяет миграции заново
	s, err = New(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetProject(ctx, project.ID)
	require.NoError(t, err)
}
