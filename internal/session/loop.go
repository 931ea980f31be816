package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/iudanet/gophtex/internal/crdt"
	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/pkg/api"
)

// run цикл соединения: handshake, обслуживание, ожидание и переподключение
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.handshake(ctx)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			s.setStatus(StatusSynced, nil)
			s.backoff.Reset()

			err = s.serve(ctx)
			if ctx.Err() != nil {
				return
			}
			s.setStatus(StatusDisconnected, err)
		} else {
			s.logger.Warn("Failed to synchronize", "error", err)
			if s.Status() == StatusConnecting {
				s.setStatus(StatusDisconnected, err)
			}
		}

		if !s.wait(ctx, s.nextDelay()) {
			return
		}
		if s.Status() == StatusDisconnected {
			s.setStatus(StatusReconnecting, nil)
		}
	}
}

// handshake подключает транспорт, отправляет join и ждет sync.
// После ответа применяет недостающие обновления и досылает серверу все,
// чего у него нет, включая правки, сделанные без соединения.
func (s *Session) handshake(ctx context.Context) error {
	s.drainLost()

	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	if err := s.transport.Connect(hsCtx, s.cfg.Endpoint, s.key); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	join := api.JoinPayload{
		ParticipantID: s.cfg.Participant.ID,
		Actor:         s.doc.Actor(),
		Version:       s.doc.VersionVector(),
	}
	if local, ok := s.presence.Refresh(s.cfg.Participant.ID); ok {
		join.Awareness = &local
	}
	if err := s.send(hsCtx, api.NewJoinMessage(s.key, join)); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	reply, err := s.awaitSync(hsCtx)
	if err != nil {
		return err
	}

	s.applySync(reply)

	// обновления из очереди уже применены к реплике и войдут в UpdatesSince
	s.stash(s.outgoing.PopAll())
	missing := s.doc.UpdatesSince(reply.Version)
	for i := range missing {
		if err := s.send(hsCtx, api.NewUpdateMessage(missing[i])); err != nil {
			return fmt.Errorf("push updates: %w", err)
		}
	}
	if err := s.outbox.Clear(hsCtx, s.key); err != nil {
		s.logger.Warn("Failed to clear outbox", "error", err)
	}

	if entry, ok := s.presence.Refresh(s.cfg.Participant.ID); ok {
		if err := s.send(hsCtx, api.NewAwarenessMessage(s.key, entry)); err != nil {
			return fmt.Errorf("send awareness: %w", err)
		}
	}

	s.logger.Debug("Handshake completed", "pulled", len(reply.Updates), "pushed", len(missing))
	return nil
}

// awaitSync ждет ответ sync, обрабатывая остальные входящие сообщения как обычно
func (s *Session) awaitSync(ctx context.Context) (*api.SyncPayload, error) {
	for {
		for _, raw := range s.inbound.PopAll() {
			msg := s.decode(raw)
			if msg == nil {
				continue
			}
			if msg.Type == api.TypeSync {
				return msg.Sync, nil
			}
			s.handle(msg)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrHandshakeTimeout
			}
			return nil, ctx.Err()
		case err := <-s.lost:
			return nil, fmt.Errorf("connection lost during handshake: %w", err)
		case <-s.inbound.Signal():
		}
	}
}

// serve обменивается сообщениями, пока соединение живо
func (s *Session) serve(ctx context.Context) error {
	heartbeat := time.NewTicker(s.presence.Timeout() / 2)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.lost:
			return err
		case <-s.outgoing.Signal():
			if err := s.flush(ctx); err != nil {
				return err
			}
		case <-s.inbound.Signal():
			s.processInbound()
		case <-s.presenceCh:
			if entry, ok := s.presence.Get(s.cfg.Participant.ID); ok {
				if err := s.send(ctx, api.NewAwarenessMessage(s.key, entry)); err != nil {
					return err
				}
			}
		case now := <-heartbeat.C:
			s.presence.Expire(now)
			if entry, ok := s.presence.Refresh(s.cfg.Participant.ID); ok {
				if err := s.send(ctx, api.NewAwarenessMessage(s.key, entry)); err != nil {
					return err
				}
			}
		}
	}
}

// flush отправляет накопленные локальные обновления.
// При ошибке неотправленные обновления переносятся в outbox.
func (s *Session) flush(ctx context.Context) error {
	updates := s.outgoing.PopAll()
	for i := range updates {
		if err := s.send(ctx, api.NewUpdateMessage(updates[i])); err != nil {
			s.stash(updates[i:])
			return err
		}
	}
	return nil
}

// wait выдерживает паузу перед переподключением. Локальные правки за это
// время попадают в outbox, входящие сообщения продолжают обрабатываться.
func (s *Session) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-s.outgoing.Signal():
			s.stash(s.outgoing.PopAll())
		case <-s.inbound.Signal():
			s.processInbound()
		case <-s.presenceCh:
			// разошлется после переподключения
		}
	}
}

func (s *Session) stash(updates []models.Update) {
	if len(updates) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()

	if err := s.outbox.Append(ctx, s.key, updates...); err != nil {
		s.logger.Warn("Failed to store offline updates", "count", len(updates), "error", err)
	}
}

func (s *Session) processInbound() {
	for _, raw := range s.inbound.PopAll() {
		if msg := s.decode(raw); msg != nil {
			s.handle(msg)
		}
	}
}

func (s *Session) decode(raw []byte) *api.Message {
	msg, err := api.Decode(raw)
	if err != nil {
		s.logger.Warn("Dropping malformed message", "error", err)
		return nil
	}
	if msg.RoomKey != s.key {
		s.logger.Warn("Dropping message for another room", "message_room", msg.RoomKey)
		return nil
	}
	return msg
}

// handle применяет одно входящее сообщение к реплике или присутствию
func (s *Session) handle(msg *api.Message) {
	switch msg.Type {
	case api.TypeUpdate:
		if result := s.doc.ApplyRemote(*msg.Update); result == crdt.Rejected {
			s.logger.Warn("Rejected remote update", "actor", msg.Update.Actor)
		}
	case api.TypeAwareness:
		s.presence.ApplyRemote(*msg.Awareness)
	case api.TypeLeave:
		if msg.Leave.ParticipantID != s.cfg.Participant.ID {
			s.presence.Remove(msg.Leave.ParticipantID)
		}
	case api.TypeSync:
		s.applySync(msg.Sync)
	default:
		s.logger.Debug("Ignoring message", "type", msg.Type)
	}
}

func (s *Session) applySync(reply *api.SyncPayload) {
	for _, update := range reply.Updates {
		if result := s.doc.ApplyRemote(update); result == crdt.Rejected {
			s.logger.Warn("Rejected update from sync", "actor", update.Actor)
		}
	}
	for _, entry := range reply.Awareness {
		s.presence.ApplyRemote(entry)
	}
}

func (s *Session) send(ctx context.Context, msg *api.Message) error {
	payload, err := api.Encode(msg)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, payload)
}

func (s *Session) nextDelay() time.Duration {
	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop {
		return pick(s.cfg.Backoff.Max, DefaultBackoffConfig().Max)
	}
	return delay
}

func (s *Session) drainLost() {
	for {
		select {
		case <-s.lost:
		default:
			return
		}
	}
}
