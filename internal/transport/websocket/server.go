package websocket

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/transport"
)

// sendBufferSize размер очереди исходящих сообщений одного соединения
const sendBufferSize = 256

// Server принимает WebSocket-соединения и передает их сообщения Acceptor
type Server struct {
	acceptor transport.Acceptor
	logger   *slog.Logger
	upgrader gws.Upgrader
}

// NewServer создает сервер соединений для acceptor
func NewServer(acceptor transport.Acceptor, logger *slog.Logger) *Server {
	return &Server{
		acceptor: acceptor,
		logger:   logger,
		upgrader: gws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve переводит запрос в WebSocket и обслуживает соединение до его закрытия.
// participantID - участник, подтвержденный аутентификацией запроса,
// roomKey - комната, к которой привязано соединение.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, participantID string, roomKey models.RoomKey) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	p := &peer{
		id:            uuid.New().String(),
		participantID: participantID,
		roomKey:       roomKey,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
	}
	s.logger.Debug("Peer connected", "peer", p.id, "participant_id", participantID, "room", roomKey)

	go p.writePump(s.logger)
	go func() {
		// соединение переживает Hijack, поэтому остановку сервера отслеживаем сами
		select {
		case <-r.Context().Done():
			p.shutdown()
		case <-p.done:
		}
	}()
	p.readPump(s.acceptor)

	p.shutdown()
	s.acceptor.HandleDisconnect(p)
	s.logger.Debug("Peer disconnected", "peer", p.id)

	return nil
}

// peer серверная сторона одного WebSocket-соединения
type peer struct {
	conn          *gws.Conn
	send          chan []byte
	done          chan struct{}
	id            string
	participantID string
	roomKey       models.RoomKey
	once          sync.Once
}

var _ transport.ScopedPeer = (*peer)(nil)

func (p *peer) ID() string {
	return p.id
}

func (p *peer) ParticipantID() string {
	return p.participantID
}

func (p *peer) RoomKey() models.RoomKey {
	return p.roomKey
}

// Send ставит сообщение в очередь. Переполненная очередь закрывает соединение:
// клиент переподключится и получит недостающее через handshake.
func (p *peer) Send(payload []byte) error {
	select {
	case <-p.done:
		return transport.ErrClosed
	default:
	}

	select {
	case p.send <- payload:
		return nil
	default:
		p.shutdown()
		return transport.ErrSlowConsumer
	}
}

func (p *peer) shutdown() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *peer) readPump(acceptor transport.Acceptor) {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		acceptor.HandleMessage(p, data)
	}
}

func (p *peer) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(gws.TextMessage, payload); err != nil {
				logger.Debug("Failed to write to peer", "peer", p.id, "error", err)
				p.shutdown()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(gws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.shutdown()
				return
			}
		case <-p.done:
			_ = p.conn.WriteControl(gws.CloseMessage,
				gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
