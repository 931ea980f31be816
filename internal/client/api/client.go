package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/pkg/api"
)

// Ошибки ответов сервера
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
)

// StatusError ответ сервера с кодом вне 2xx
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Unwrap сопоставляет коды ответа с ошибками пакета
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	mu         sync.RWMutex
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// BaseURL возвращает адрес сервера
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken задает токен доступа для последующих запросов
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token возвращает текущий токен доступа
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// IssueIdentity получает новую идентичность участника
func (c *Client) IssueIdentity(ctx context.Context, req api.IdentityRequest) (*api.IdentityResponse, error) {
	var resp api.IdentityResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/identity", req, &resp); err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	return &resp, nil
}

// UpdateIdentity меняет имя и цвет участника
func (c *Client) UpdateIdentity(ctx context.Context, req api.IdentityRequest) (*api.IdentityResponse, error) {
	var resp api.IdentityResponse
	if err := c.doRequest(ctx, http.MethodPut, "/api/v1/identity", req, &resp); err != nil {
		return nil, fmt.Errorf("update identity request failed: %w", err)
	}
	return &resp, nil
}

// CreateProject создает проект
func (c *Client) CreateProject(ctx context.Context, name string) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/projects", api.CreateProjectRequest{Name: name}, &resp); err != nil {
		return nil, fmt.Errorf("create project request failed: %w", err)
	}
	return &resp, nil
}

// ListProjects возвращает проекты участника
func (c *Client) ListProjects(ctx context.Context) ([]api.ProjectResponse, error) {
	var resp api.ProjectListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/projects", nil, &resp); err != nil {
		return nil, fmt.Errorf("list projects request failed: %w", err)
	}
	return resp.Projects, nil
}

// GetProject возвращает проект
func (c *Client) GetProject(ctx context.Context, projectID string) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.doRequest(ctx, http.MethodGet, projectPath(projectID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get project request failed: %w", err)
	}
	return &resp, nil
}

// RenameProject переименовывает проект
func (c *Client) RenameProject(ctx context.Context, projectID, name string) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.doRequest(ctx, http.MethodPatch, projectPath(projectID), api.RenameProjectRequest{Name: name}, &resp); err != nil {
		return nil, fmt.Errorf("rename project request failed: %w", err)
	}
	return &resp, nil
}

// AddFile добавляет файл в проект
func (c *Client) AddFile(ctx context.Context, projectID, fileName string) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.doRequest(ctx, http.MethodPost, projectPath(projectID)+"/files", api.AddFileRequest{Name: fileName}, &resp); err != nil {
		return nil, fmt.Errorf("add file request failed: %w", err)
	}
	return &resp, nil
}

// AddCollaborator добавляет соавтора в проект
func (c *Client) AddCollaborator(ctx context.Context, projectID, participantID string) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	req := api.AddCollaboratorRequest{ParticipantID: participantID}
	if err := c.doRequest(ctx, http.MethodPost, projectPath(projectID)+"/collaborators", req, &resp); err != nil {
		return nil, fmt.Errorf("add collaborator request failed: %w", err)
	}
	return &resp, nil
}

// ShareLink возвращает ссылку на файл проекта
func (c *Client) ShareLink(ctx context.Context, projectID, fileName string) (*api.ShareLinkResponse, error) {
	var resp api.ShareLinkResponse
	path := projectPath(projectID) + "/share?file=" + url.QueryEscape(fileName)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("share link request failed: %w", err)
	}
	return &resp, nil
}

// ResolveShare проверяет ссылку и открывает доступ к проекту
func (c *Client) ResolveShare(ctx context.Context, link string) (*api.ResolveShareResponse, error) {
	var resp api.ResolveShareResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/share/resolve", api.ResolveShareRequest{URL: link}, &resp); err != nil {
		return nil, fmt.Errorf("resolve share request failed: %w", err)
	}
	return &resp, nil
}

// RoomSnapshot возвращает состояние активной комнаты на сервере
func (c *Client) RoomSnapshot(ctx context.Context, key models.RoomKey) (*api.RoomSnapshotResponse, error) {
	var resp api.RoomSnapshotResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/rooms/"+url.PathEscape(string(key)), nil, &resp); err != nil {
		return nil, fmt.Errorf("room snapshot request failed: %w", err)
	}
	return &resp, nil
}

func projectPath(projectID string) string {
	return "/api/v1/projects/" + url.PathEscape(projectID)
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			statusErr.Message = errResp.Message
			if statusErr.Message == "" {
				statusErr.Message = errResp.Error
			}
		} else {
			statusErr.Message = strings.TrimSpace(string(respBody))
		}
		return statusErr
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
