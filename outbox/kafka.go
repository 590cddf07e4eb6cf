package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig - connection settings of KafkaQueue
type KafkaConfig struct {
	Brokers string
	Topic   string
	GroupID string
}

// KafkaQueue - Queue on top of a Kafka topic. Mutations are keyed by post id, so that
// mutations of one post stay ordered, and committed only after the handler succeeds
type KafkaQueue struct {
	writer   *kafka.Writer
	reader   *kafka.Reader
	logError *log.Logger

	// message the last handler failed on, handed out again before fetching new ones
	pending *kafka.Message
}

func NewKafkaQueue(cfg KafkaConfig, logError *log.Logger) *KafkaQueue {
	brokers := strings.Split(cfg.Brokers, ",")
	return &KafkaQueue{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MinBytes:    1,
			MaxBytes:    10 << 20,
			StartOffset: kafka.FirstOffset,
			MaxWait:     time.Second,
		}),
		logError: logError,
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, m Mutation) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation: %w", err)
	}
	if err = q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(m.PostID), Value: value}); err != nil {
		return fmt.Errorf("publish mutation: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Consume(ctx context.Context, handle Handler) error {
	for {
		msg, err := q.next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return ctx.Err()
			}
			q.logError.Printf("Can't fetch outbox message: %s", err)
			continue
		}

		var m Mutation
		if err = json.Unmarshal(msg.Value, &m); err != nil {
			q.logError.Printf("Dropping undecodable outbox message (key=%s): %s", string(msg.Key), err)
			_ = q.reader.CommitMessages(ctx, msg)
			continue
		}

		if err = handle(ctx, m); err != nil {
			q.pending = &msg
			return err
		}
		q.pending = nil

		if err = q.reader.CommitMessages(ctx, msg); err != nil {
			q.logError.Printf("Can't commit outbox message %s: %s", m.ID, err)
		}
	}
}

func (q *KafkaQueue) next(ctx context.Context) (kafka.Message, error) {
	if q.pending != nil {
		return *q.pending, nil
	}
	return q.reader.FetchMessage(ctx)
}

func (q *KafkaQueue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	return errors.Join(werr, rerr)
}
