package service

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arxiv/relations"
	"github.com/arxiv/relations/internal/domain"
)

const channelPrefix = "relations:"

// SignalService fans relation events out over redis pub/sub, one channel per
// e-print.
type SignalService struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewSignalService(redisClient *redis.Client, logger *zap.Logger) *SignalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalService{
		rdb:    redisClient,
		logger: logger,
	}
}

func Channel(ePrint string) string {
	return channelPrefix + ePrint
}

func (s *SignalService) Publish(ctx context.Context, event domain.RelationEvent) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Publish")
	defer span.End()

	jsonstr, err := json.Marshal(event.ToWire())
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, Channel(event.Relation.EPrint.String()), jsonstr).Err()
	if err != nil {
		err = errors.Wrap(err, "publish relation event")
		span.RecordError(err)
		return err
	}

	return nil
}

// Realtime forwards events for the e-prints last received on input to output.
// Each value on input replaces the previous subscription. It returns when ctx
// is done or input is closed, and never closes output.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- relations.Event) {
	pubsub := s.rdb.Subscribe(ctx)
	defer pubsub.Close()
	messages := pubsub.Channel()

	var current []string
	for {
		select {
		case <-ctx.Done():
			return
		case ePrints, ok := <-input:
			if !ok {
				return
			}
			if len(current) > 0 {
				if err := pubsub.Unsubscribe(ctx, current...); err != nil {
					s.logger.Warn("unsubscribe failed", zap.Strings("channels", current), zap.Error(err))
				}
			}
			current = current[:0]
			for _, e := range ePrints {
				current = append(current, Channel(e))
			}
			if len(current) > 0 {
				if err := pubsub.Subscribe(ctx, current...); err != nil {
					s.logger.Warn("subscribe failed", zap.Strings("channels", current), zap.Error(err))
				}
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event relations.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
