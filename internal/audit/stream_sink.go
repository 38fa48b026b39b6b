package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamEmitter 推送到 Redis Streams
// 审计消费方（报表、告警）通过 consumer group 读取。
type StreamEmitter struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewStreamEmitter(client *redis.Client, stream string, logger *zap.Logger) *StreamEmitter {
	return &StreamEmitter{client: client, stream: stream, logger: logger}
}

func (e *StreamEmitter) Emit(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn("failed to marshal audit event", zap.Error(err))
		return
	}

	err = e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		// sink 失败不影响请求
		e.logger.Warn("failed to push audit event to stream",
			zap.String("stream", e.stream),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}
