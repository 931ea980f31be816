// Package websocket реализует транспорт поверх WebSocket (gorilla/websocket):
// клиентское соединение с комнатой и серверные соединения для relay.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/transport"
)

const (
	// writeWait время на запись одного сообщения
	writeWait = 10 * time.Second
	// pongWait время ожидания любого кадра от собеседника
	pongWait = 60 * time.Second
	// pingPeriod период отправки ping сервером, меньше pongWait
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize ограничение размера входящего сообщения
	maxMessageSize = 4 << 20
)

// RoomPath возвращает путь WebSocket-эндпоинта комнаты
func RoomPath(roomKey models.RoomKey) string {
	return "/api/v1/rooms/" + url.PathEscape(string(roomKey)) + "/ws"
}

// Client клиентский транспорт к комнате через WebSocket
type Client struct {
	dialer    *gws.Dialer
	conn      *gws.Conn
	logger    *slog.Logger
	onMessage func([]byte)
	onStatus  func(transport.Status, error)
	token     func() string
	mu        sync.Mutex
	writeMu   sync.Mutex
	closed    bool
}

// ClientOption настраивает Client
type ClientOption func(*Client)

// WithToken задает источник токена доступа, который передается в заголовке Authorization
func WithToken(token func() string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithDialer подменяет dialer gorilla/websocket
func WithDialer(dialer *gws.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// NewClient создает неподключенный WebSocket-транспорт
func NewClient(logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		dialer:    gws.DefaultDialer,
		logger:    logger,
		onMessage: func([]byte) {},
		onStatus:  func(transport.Status, error) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect устанавливает соединение с комнатой.
// endpoint - базовый адрес сервера (http(s):// или ws(s)://).
func (c *Client) Connect(ctx context.Context, endpoint string, roomKey models.RoomKey) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.mu.Unlock()

	target, err := roomURL(endpoint, roomKey)
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.token != nil {
		if token := c.token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", transport.ErrUnreachable, target, err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(gws.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return transport.ErrClosed
	}
	previous := c.conn
	c.conn = conn
	onStatus := c.onStatus
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	c.logger.Debug("WebSocket connected", "url", target)
	onStatus(transport.StatusConnected, nil)

	go c.readLoop(conn)
	return nil
}

// Send отправляет текстовое сообщение
func (c *Client) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return transport.ErrClosed
	}
	if conn == nil {
		return transport.ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(gws.TextMessage, payload); err != nil {
		// чтение завершится ошибкой и сообщит о разрыве
		_ = conn.Close()
		return fmt.Errorf("%w: write: %w", transport.ErrNotConnected, err)
	}
	return nil
}

// OnMessage задает обработчик входящих сообщений
func (c *Client) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onMessage = fn
}

// OnStatusChange задает обработчик смены состояния
func (c *Client) OnStatusChange(fn func(transport.Status, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onStatus = fn
}

// Close закрывает соединение; повторный вызов ничего не делает
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(gws.CloseMessage,
		gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return conn.Close()
}

func (c *Client) readLoop(conn *gws.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}

		c.mu.Lock()
		onMessage := c.onMessage
		c.mu.Unlock()

		onMessage(data)
	}
}

// drop сообщает о разрыве, если conn все еще текущее соединение
func (c *Client) drop(conn *gws.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	onStatus := c.onStatus
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Debug("WebSocket disconnected", "error", err)
	onStatus(transport.StatusDisconnected, err)
}

func roomURL(endpoint string, roomKey models.RoomKey) (string, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid endpoint %q: unsupported scheme", endpoint)
	}

	u.RawPath = u.EscapedPath() + RoomPath(roomKey)
	path, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	u.Path = path

	return u.String(), nil
}
