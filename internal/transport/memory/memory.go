// Package memory реализует транспорт внутри процесса: клиентские транспорты
// напрямую связаны с Acceptor (relay hub). Используется в тестах и при
// встраивании, умеет имитировать разрыв соединения и недоступность сервера.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/transport"
)

// Network соединяет клиентские транспорты с одним Acceptor
type Network struct {
	acceptor  transport.Acceptor
	links     map[*Transport]struct{}
	mu        sync.Mutex
	reachable bool
}

// NewNetwork создает сеть, ведущую к acceptor
func NewNetwork(acceptor transport.Acceptor) *Network {
	return &Network{
		acceptor:  acceptor,
		links:     make(map[*Transport]struct{}),
		reachable: true,
	}
}

// NewTransport создает клиентский транспорт участника participantID
func (n *Network) NewTransport(participantID string) *Transport {
	return &Transport{
		network:       n,
		participantID: participantID,
		onMessage:     func([]byte) {},
		onStatus:      func(transport.Status, error) {},
	}
}

// SetReachable включает или выключает доступность сервера.
// Выключение разрывает все текущие соединения.
func (n *Network) SetReachable(reachable bool) {
	n.mu.Lock()
	n.reachable = reachable
	var dropped []*Transport
	if !reachable {
		for t := range n.links {
			dropped = append(dropped, t)
		}
	}
	n.mu.Unlock()

	for _, t := range dropped {
		t.Drop()
	}
}

func (n *Network) isReachable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.reachable
}

func (n *Network) attach(t *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.links[t] = struct{}{}
}

func (n *Network) detach(t *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.links, t)
}

// Transport клиентский транспорт внутри процесса
type Transport struct {
	network       *Network
	peer          *peer
	onMessage     func([]byte)
	onStatus      func(transport.Status, error)
	participantID string
	mu            sync.Mutex
	closed        bool
}

var _ transport.Transport = (*Transport)(nil)

// Connect подключает транспорт к acceptor сети
func (t *Transport) Connect(ctx context.Context, _ string, _ models.RoomKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.network.isReachable() {
		return transport.ErrUnreachable
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	previous := t.peer
	p := &peer{id: uuid.New().String(), participantID: t.participantID, owner: t}
	t.peer = p
	onStatus := t.onStatus
	t.mu.Unlock()

	if previous != nil {
		previous.disconnect()
		t.network.acceptor.HandleDisconnect(previous)
	}

	t.network.attach(t)
	onStatus(transport.StatusConnected, nil)
	return nil
}

// Send синхронно передает сообщение acceptor
func (t *Transport) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	p := t.peer
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return transport.ErrClosed
	}
	if p == nil {
		return transport.ErrNotConnected
	}

	t.network.acceptor.HandleMessage(p, append([]byte(nil), payload...))
	return nil
}

// OnMessage задает обработчик входящих сообщений
func (t *Transport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onMessage = fn
}

// OnStatusChange задает обработчик смены состояния
func (t *Transport) OnStatusChange(fn func(transport.Status, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onStatus = fn
}

// Drop имитирует обрыв соединения
func (t *Transport) Drop() {
	t.mu.Lock()
	p := t.peer
	t.peer = nil
	onStatus := t.onStatus
	t.mu.Unlock()

	if p == nil {
		return
	}

	p.disconnect()
	t.network.detach(t)
	t.network.acceptor.HandleDisconnect(p)
	onStatus(transport.StatusDisconnected, transport.ErrNotConnected)
}

// Connected сообщает, что у транспорта есть соединение
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.peer != nil
}

// Close закрывает транспорт без уведомления о смене состояния
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	p := t.peer
	t.peer = nil
	t.mu.Unlock()

	t.network.detach(t)
	if p != nil {
		p.disconnect()
		t.network.acceptor.HandleDisconnect(p)
	}
	return nil
}

func (t *Transport) deliver(p *peer, payload []byte) error {
	t.mu.Lock()
	if t.peer != p {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	onMessage := t.onMessage
	t.mu.Unlock()

	onMessage(append([]byte(nil), payload...))
	return nil
}

// peer серверная сторона соединения внутри процесса
type peer struct {
	owner         *Transport
	id            string
	participantID string
	mu            sync.Mutex
	gone          bool
}

func (p *peer) ID() string {
	return p.id
}

func (p *peer) ParticipantID() string {
	return p.participantID
}

func (p *peer) Send(payload []byte) error {
	p.mu.Lock()
	gone := p.gone
	p.mu.Unlock()

	if gone {
		return transport.ErrClosed
	}
	return p.owner.deliver(p, payload)
}

func (p *peer) disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gone = true
}
