package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition возвращается при недопустимой смене состояния сессии
var ErrInvalidTransition = errors.New("invalid session state transition")

// Status состояние соединения сессии с комнатой
type Status int

const (
	// StatusConnecting первое подключение и handshake
	StatusConnecting Status = iota
	// StatusSynced реплика синхронизирована, обмен идет в реальном времени
	StatusSynced
	// StatusDisconnected соединение потеряно, правки копятся локально
	StatusDisconnected
	// StatusReconnecting идут попытки переподключения с backoff
	StatusReconnecting
	// StatusClosed сессия закрыта, операции возвращают ErrSessionClosed
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusSynced:
		return "synced"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// transitions допустимые переходы; Closed достижим из любого состояния
var transitions = map[Status][]Status{
	StatusConnecting:   {StatusSynced, StatusDisconnected, StatusClosed},
	StatusSynced:       {StatusDisconnected, StatusClosed},
	StatusDisconnected: {StatusReconnecting, StatusClosed},
	StatusReconnecting: {StatusSynced, StatusReconnecting, StatusClosed},
	StatusClosed:       {},
}

// CanTransition сообщает, допустим ли переход from -> to
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Event уведомление о смене состояния сессии
type Event struct {
	At     time.Time
	Err    error // причина перехода в Disconnected, если есть
	Status Status
	From   Status
}

// stateMachine хранит текущее состояние и проверяет переходы
type stateMachine struct {
	current Status
}

func (m *stateMachine) transition(to Status) (Status, error) {
	from := m.current
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.current = to
	return from, nil
}
