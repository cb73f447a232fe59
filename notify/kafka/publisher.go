// Package kafka publishes wallet ledger changes to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/notify"
)

const moduleName = "kafka"

// Publisher writes one message per change, keyed by wallet ID so that the
// changes of one wallet stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
	logger *log.Logger
}

var _ notify.Publisher = (*Publisher)(nil)

func NewPublisher(cfg *config.KafkaConfig, logger *log.Logger) *Publisher {
	l := logger.WithModule(moduleName)
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
			ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { l.Error(fmt.Sprintf(msg, args...)) }),
		},
		logger: l,
	}
}

func toMessages(changes []notify.Change) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(changes))
	for _, c := range changes {
		data, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("marshal change for wallet %s: %w", c.WalletID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(c.WalletID),
			Value: data,
		})
	}
	return msgs, nil
}

// Publish implements notify.Publisher.
func (p *Publisher) Publish(ctx context.Context, changes []notify.Change) error {
	if len(changes) == 0 {
		return nil
	}
	msgs, err := toMessages(changes)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	p.logger.Debug("published wallet changes", "count", len(msgs))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
