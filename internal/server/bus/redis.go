package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/iudanet/gophtex/internal/models"
)

// ChannelPrefix префикс каналов Redis; канал комнаты - префикс + ключ комнаты
const ChannelPrefix = "gophtex:room:"

// Redis шина поверх Redis pub/sub
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Bus = (*Redis)(nil)

// NewRedis подключается к Redis по адресу addr и проверяет соединение
func NewRedis(ctx context.Context, addr string, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisFromClient(client, logger), nil
}

// NewRedisFromClient создает шину поверх готового клиента
func NewRedisFromClient(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

// Channel возвращает канал Redis для комнаты
func Channel(key models.RoomKey) string {
	return ChannelPrefix + string(key)
}

func (r *Redis) Publish(ctx context.Context, key models.RoomKey, payload []byte) error {
	if err := r.client.Publish(ctx, Channel(key), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", Channel(key), err)
	}
	return nil
}

// Subscribe подписывается на каналы всех комнат по шаблону и
// доставляет сообщения в handler до отмены ctx
func (r *Redis) Subscribe(ctx context.Context, handler Handler) error {
	pubsub := r.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// дожидаемся подтверждения подписки, иначе ранние публикации теряются
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.logger.Info("Subscribed to redis bus", "pattern", ChannelPrefix+"*")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return ErrClosed
			}
			key := models.RoomKey(strings.TrimPrefix(msg.Channel, ChannelPrefix))
			handler(key, []byte(msg.Payload))
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
