package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Config struct {
	Addrs   []string `yaml:"addrs" envconfig:"KAFKA_ADDRS"`
	Enabled bool     `yaml:"enabled" envconfig:"KAFKA_ENABLED" default:"false"`
}

const (
	LoansTopic         = "loans"
	LoansConsumerGroup = "library-loans"
)

// LoanEvent is the audit payload published after a committed borrow or return.
type LoanEvent struct {
	EventType string    `json:"eventType"`
	LoanUid   string    `json:"loanUid"`
	Username  string    `json:"username"`
	BookUid   string    `json:"bookUid"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventBorrowed = "BORROWED"
	EventReturned = "RETURNED"
)

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

func NewConsumer(cfg Config, group string) (sarama.ConsumerGroup, error) {
	defaultCfg := sarama.NewConfig()
	defaultCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return sarama.NewConsumerGroup(cfg.Addrs, group, defaultCfg)
}

// Consume loops the consumer group session until ctx is canceled.
func Consume(ctx context.Context, consumer sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, topic string, log *zap.Logger) {
	for {
		if err := consumer.Consume(ctx, []string{topic}, handler); err != nil {
			log.Error("consumer.Consume", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
