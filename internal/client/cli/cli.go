// Package cli команды консольного клиента gophtex.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/gophtex/internal/client/api"
	"github.com/iudanet/gophtex/internal/client/iocli"
	"github.com/iudanet/gophtex/internal/client/storage"
	"github.com/iudanet/gophtex/internal/config"
	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/session"
	"github.com/iudanet/gophtex/internal/transport"
	"github.com/iudanet/gophtex/internal/transport/websocket"
	pkgapi "github.com/iudanet/gophtex/pkg/api"
)

// ErrNoIdentity возвращается командами, которым нужна идентичность участника
var ErrNoIdentity = errors.New("no identity: run 'gophtex identity issue --name <name>' first")

// Store локальное состояние клиента
type Store interface {
	storage.IdentityStorage
	storage.MetadataStorage
	session.Outbox
	PendingRooms(ctx context.Context) ([]models.RoomKey, error)
}

// Cli состояние одного запуска клиента
type Cli struct {
	io           iocli.IO
	apiClient    *api.Client
	store        Store
	cfg          *config.Client
	logger       *slog.Logger
	identity     *storage.IdentityData
	newTransport func() transport.Transport
	now          func() time.Time
}

// New создает клиент поверх API сервера и локального хранилища
func New(io iocli.IO, apiClient *api.Client, store Store, cfg *config.Client, logger *slog.Logger) *Cli {
	c := &Cli{
		io:        io,
		apiClient: apiClient,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	c.newTransport = func() transport.Transport {
		return websocket.NewClient(logger, websocket.WithToken(apiClient.Token))
	}
	return c
}

// loadIdentity читает сохраненную идентичность и передает токен API клиенту.
// Отсутствие идентичности не ошибка: часть команд работает без нее.
func (c *Cli) loadIdentity(ctx context.Context) error {
	identity, err := c.store.GetIdentity(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load identity: %w", err)
	}

	c.identity = identity
	if identity.ServerURL == c.apiClient.BaseURL() {
		c.apiClient.SetToken(identity.Token)
	}
	return nil
}

// requireIdentity возвращает действующую идентичность для текущего сервера
func (c *Cli) requireIdentity() (*storage.IdentityData, error) {
	if c.identity == nil {
		return nil, ErrNoIdentity
	}
	if c.identity.ServerURL != c.apiClient.BaseURL() {
		return nil, fmt.Errorf("identity was issued by %s, not %s: run 'gophtex identity issue' for this server",
			c.identity.ServerURL, c.apiClient.BaseURL())
	}
	if c.identity.Expired(c.now()) {
		return nil, fmt.Errorf("identity expired at %s: run 'gophtex identity issue' again",
			c.identity.ExpiresAt.Format(time.RFC3339))
	}
	return c.identity, nil
}

// saveIdentity сохраняет ответ сервера как текущую идентичность
func (c *Cli) saveIdentity(ctx context.Context, resp *pkgapi.IdentityResponse) error {
	identity := &storage.IdentityData{
		Identity: models.Identity{
			Participant: models.Participant{
				ID:          resp.ParticipantID,
				DisplayName: resp.DisplayName,
				Color:       resp.Color,
			},
			Token:     resp.Token,
			ExpiresAt: c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		},
		ServerURL: c.apiClient.BaseURL(),
	}
	if err := c.store.SaveIdentity(ctx, identity); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}

	c.identity = identity
	c.apiClient.SetToken(resp.Token)
	return nil
}

func (c *Cli) printProject(p *pkgapi.ProjectResponse) {
	c.io.Printf("Project:  %s (%s)\n", p.Name, p.ID)
	c.io.Printf("Owner:    %s\n", ownerLabel(p))
	c.io.Printf("Created:  %s\n", p.CreatedAt.Format(time.RFC3339))
	c.io.Println("Files:")
	for _, f := range p.Files {
		c.io.Printf("  %s\n", f)
	}
	if len(p.Collaborators) > 0 {
		c.io.Println("Collaborators:")
		for _, collaborator := range p.Collaborators {
			c.io.Printf("  %s\n", participantLabel(collaborator))
		}
	}
}

func ownerLabel(p *pkgapi.ProjectResponse) string {
	if p.OwnerName == "" {
		return p.OwnerID
	}
	return fmt.Sprintf("%s (%s)", p.OwnerName, p.OwnerID)
}

func participantLabel(p models.Participant) string {
	if p.DisplayName == "" {
		return p.ID
	}
	return fmt.Sprintf("%s (%s)", p.DisplayName, p.ID)
}
