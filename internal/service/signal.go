package service

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/totegamma/passkey-wallet/internal/domain"
)

// SignalService publishes operation lifecycle events on redis pub/sub.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

// OperationChannel is the pub/sub channel carrying events for one sender.
func OperationChannel(sender string) string {
	return "wallet:operations:" + sender
}

func (s *SignalService) Publish(ctx context.Context, record domain.OperationRecord) error {

	jsonstr, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, OperationChannel(record.Sender), jsonstr).Err()
	if err != nil {
		return errors.Wrap(err, "publish operation event")
	}

	return nil
}

// Subscribe streams events for sender until ctx ends.
func (s *SignalService) Subscribe(ctx context.Context, sender string) (<-chan domain.OperationRecord, error) {
	pubsub := s.rdb.Subscribe(ctx, OperationChannel(sender))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrap(err, "subscribe operation events")
	}

	out := make(chan domain.OperationRecord)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var record domain.OperationRecord
				if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
					continue
				}
				select {
				case out <- record:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
