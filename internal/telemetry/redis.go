package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list telemetry records are pushed onto for
// out-of-process consumers (analytics, alert forwarders).
const DefaultQueueName = "boardly_telemetry"

// TelemetryRecord is the wire shape of one queued telemetry event.
type TelemetryRecord struct {
	Event     string                 `json:"event"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// RedisSink pushes telemetry events onto a Redis list. Log lines are not
// queued. A broken Redis connection never fails the caller; failures are
// logged and dropped.
type RedisSink struct {
	client *redis.Client
	queue  string
	logger *logrus.Logger
}

// NewRedisSink connects to Redis at addr and returns a queue sink, or an
// error if the initial ping fails.
func NewRedisSink(addr, queue string, db int, logger *logrus.Logger) (*RedisSink, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisSink{client: client, queue: queue, logger: logger}, nil
}

func (s *RedisSink) EmitTelemetry(event string, fields Fields) {
	rec := TelemetryRecord{
		Event:     event,
		Fields:    fields,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warnf("telemetry: failed to marshal record %q: %v", event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.RPush(ctx, s.queue, data).Err(); err != nil {
		s.logger.Warnf("telemetry: failed to push %q to redis list %q: %v", event, s.queue, err)
	}
}

func (s *RedisSink) Log(logrus.Level, string, Fields) {}

// Close releases the underlying Redis connection.
func (s *RedisSink) Close() error { return s.client.Close() }
