package relay

import (
	"context"
	"time"

	"github.com/iudanet/gophtex/internal/room"
	"github.com/iudanet/gophtex/pkg/api"
)

// Sweep удаляет истекшее присутствие и собирает tombstone во всех комнатах узла.
// С шиной tombstone не собираются: узел не знает векторов версий клиентов
// других узлов, и удаленный элемент мог бы понадобиться их обновлениям.
func (h *Hub) Sweep(now time.Time) {
	h.rooms.Each(func(r *room.Room) {
		for _, participantID := range r.Awareness().Expire(now) {
			leaveMsg := api.NewLeaveMessage(r.Key(), participantID, "")
			if payload, err := api.Encode(leaveMsg); err == nil {
				r.Route("", payload)
			}
			h.logger.Debug("Awareness expired", "room", r.Key(), "participant_id", participantID)
		}

		if h.bus != nil {
			return
		}
		if removed := r.Compact(); removed > 0 {
			h.logger.Debug("Room compacted", "room", r.Key(), "tombstones", removed)
		}
	})
}

// RunJanitor периодически вызывает Sweep до отмены ctx
func (h *Hub) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Sweep(now)
		}
	}
}
