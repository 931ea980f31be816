package sharelink

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
)

func newTestSigner(t *testing.T, base string, key string) *Signer {
	t.Helper()
	s, err := NewSigner(base, []byte(key))
	require.NoError(t, err)
	return s
}

func TestNewSigner(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		key     []byte
		wantErr bool
	}{
		{name: "valid", base: "https://tex.example.com", key: []byte("k")},
		{name: "trailing slash", base: "https://tex.example.com/", key: []byte("k")},
		{name: "long key", base: "http://localhost:8080", key: []byte(strings.Repeat("k", 200))},
		{name: "empty key", base: "http://localhost:8080", key: nil, wantErr: true},
		{name: "relative base", base: "/project", key: []byte("k"), wantErr: true},
		{name: "garbage base", base: "://", key: []byte("k"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.base, tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLink)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSigner_LinkFormat(t *testing.T) {
	s := newTestSigner(t, "https://tex.example.com/", "link-key")

	link, err := s.Link("p1", "main.tex")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "tex.example.com", u.Host)
	assert.Equal(t, "/project/p1", u.Path)
	assert.Equal(t, "main.tex", u.Query().Get("file"))
	assert.NotEmpty(t, u.Query().Get("sig"))
}

func TestSigner_RoundTrip(t *testing.T) {
	s := newTestSigner(t, "http://localhost:8080/base", "link-key")

	tests := []struct {
		projectID string
		fileName  string
		wantFile  string
	}{
		{projectID: "p1", fileName: "main.tex", wantFile: "main.tex"},
		{projectID: "3f1c-uuid-like", fileName: "chapter one.tex", wantFile: "chapter one.tex"},
		{projectID: "p%2", fileName: "résumé.tex", wantFile: "résumé.tex"},
		{projectID: "p1", fileName: "  references.bib ", wantFile: "references.bib"},
	}

	for _, tt := range tests {
		t.Run(tt.projectID+"/"+tt.fileName, func(t *testing.T) {
			link, err := s.Link(tt.projectID, tt.fileName)
			require.NoError(t, err)

			target, err := s.Resolve(link)
			require.NoError(t, err)
			assert.Equal(t, tt.projectID, target.ProjectID)
			assert.Equal(t, tt.wantFile, target.FileName)
			assert.Equal(t, models.NewRoomKey(tt.projectID, tt.fileName), target.RoomKey())
		})
	}
}

func TestSigner_ResolveAcrossNodes(t *testing.T) {
	first := newTestSigner(t, "http://node-1:8080", "cluster-key")
	second := newTestSigner(t, "http://node-2:8080", "cluster-key")

	link, err := first.Link("p1", "main.tex")
	require.NoError(t, err)

	target, err := second.Resolve(link)
	require.NoError(t, err)
	assert.Equal(t, Target{ProjectID: "p1", FileName: "main.tex"}, target)
}

func TestSigner_ResolveRejects(t *testing.T) {
	s := newTestSigner(t, "http://localhost:8080", "link-key")
	other := newTestSigner(t, "http://localhost:8080", "other-key")

	valid, err := s.Link("p1", "main.tex")
	require.NoError(t, err)
	foreign, err := other.Link("p1", "main.tex")
	require.NoError(t, err)

	tampered := strings.Replace(valid, "file=main.tex", "file=secret.tex", 1)
	movedProject := strings.Replace(valid, "/project/p1", "/project/p2", 1)

	tests := []struct {
		name    string
		link    string
		wantErr error
	}{
		{name: "wrong key", link: foreign, wantErr: ErrBadSignature},
		{name: "tampered file", link: tampered, wantErr: ErrBadSignature},
		{name: "tampered project", link: movedProject, wantErr: ErrBadSignature},
		{name: "no signature", link: "http://localhost:8080/project/p1?file=main.tex", wantErr: ErrInvalidLink},
		{name: "no file", link: "http://localhost:8080/project/p1?sig=abc", wantErr: ErrInvalidLink},
		{name: "no project path", link: "http://localhost:8080/p1?file=main.tex&sig=abc", wantErr: ErrInvalidLink},
		{name: "nested path", link: "http://localhost:8080/project/p1/x?file=main.tex&sig=abc", wantErr: ErrInvalidLink},
		{name: "unparsable", link: "http://[::1", wantErr: ErrInvalidLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Resolve(tt.link)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSigner_LinkRequiresTarget(t *testing.T) {
	s := newTestSigner(t, "http://localhost:8080", "link-key")

	_, err := s.Link("", "main.tex")
	assert.ErrorIs(t, err, ErrInvalidLink)
	_, err = s.Link("p1", " ")
	assert.ErrorIs(t, err, ErrInvalidLink)
}
