package kafka

import (
	"context"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	kafka_config "deskly/pkg/kafka/config"
	"deskly/pkg/logger"
)

// Producer publishes event messages to Kafka. It is safe for
// concurrent use and must be closed on shutdown to flush batches.
type Producer struct {
	writer *kafkago.Writer
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
}

func NewProducer(cfg *kafka_config.Config, log *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		MaxAttempts:  cfg.ProducerMaxAttempts,
		BatchTimeout: cfg.ProducerBatchTimeout,
		RequiredAcks: requiredAcks(cfg.ProducerRequireAcks),
		Compression:  compression(cfg.ProducerCompression),
		Async:        cfg.ProducerAsync,
	}

	return &Producer{writer: writer, log: log}, nil
}

// Publish writes a single message. Failures are returned to the caller;
// publishing is best effort for the reservation flows, so callers log
// and continue rather than failing the request.
func (p *Producer) Publish(ctx context.Context, msg kafkago.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("kafka publish failed",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err)
		return err
	}

	p.log.Debug("kafka message published",
		"topic", msg.Topic,
		"key", string(msg.Key))
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

func requiredAcks(acks int) kafkago.RequiredAcks {
	switch acks {
	case 0:
		return kafkago.RequireNone
	case 1:
		return kafkago.RequireOne
	default:
		return kafkago.RequireAll
	}
}

func compression(name string) kafkago.Compression {
	switch name {
	case "gzip":
		return kafkago.Gzip
	case "snappy":
		return kafkago.Snappy
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return 0
	}
}
