package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/models"
)

// MissingTariffEvent is the wire payload published for each tariff gap. The
// external alerting subsystem consumes these and opens capture tasks.
type MissingTariffEvent struct {
	Provider      string `json:"provider"`
	Service       string `json:"service"`
	FinancialYear string `json:"financial_year"`
	OccurredAt    string `json:"occurred_at"`
}

// ProducerConfig holds Kafka producer settings.
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// Producer publishes missing-tariff events to Kafka. It runs as a managed
// worker: Start builds the async producer, Stop drains and closes it.
type Producer struct {
	cfg      ProducerConfig
	logger   *zap.Logger
	producer sarama.AsyncProducer
	wg       sync.WaitGroup
}

// NewProducer creates a new missing-tariff event producer.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) *Producer {
	return &Producer{
		cfg:    cfg,
		logger: logger,
	}
}

// Name identifies the producer to the worker manager.
func (p *Producer) Name() string {
	return "missing-tariff-producer"
}

// Start connects to the brokers and begins draining producer errors.
func (p *Producer) Start(ctx context.Context) error {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(p.cfg.Brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	p.producer = producer

	p.wg.Add(1)
	go p.handleErrors()

	p.logger.Info("Missing-tariff producer started",
		zap.Strings("brokers", p.cfg.Brokers),
		zap.String("topic", p.cfg.Topic))
	return nil
}

// Stop flushes buffered messages and closes the producer.
func (p *Producer) Stop() {
	if p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		p.logger.Error("Error closing Kafka producer", zap.Error(err))
	}
	p.wg.Wait()
}

// PublishMissingTariff enqueues one event. Publishing is fire-and-forget:
// a full producer buffer drops the event rather than blocking an analysis
// request, since the work item is also recorded durably in the database.
func (p *Producer) PublishMissingTariff(ref models.MissingRuleRef) error {
	if p.producer == nil {
		return fmt.Errorf("producer not started")
	}

	event := MissingTariffEvent{
		Provider:      ref.Provider,
		Service:       string(ref.Service),
		FinancialYear: ref.FinancialYear,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Key by provider/service so repeat gaps for one tariff land on the
	// same partition and stay ordered for the consumer.
	msg := &sarama.ProducerMessage{
		Topic: p.cfg.Topic,
		Key:   sarama.StringEncoder(ref.Provider + "/" + string(ref.Service)),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case p.producer.Input() <- msg:
		p.logger.Debug("Missing-tariff event published",
			zap.String("service", string(ref.Service)),
			zap.String("financial_year", ref.FinancialYear))
		return nil
	default:
		p.logger.Warn("Kafka producer input channel full, dropping event",
			zap.String("topic", p.cfg.Topic))
		return fmt.Errorf("producer buffer full")
	}
}

// handleErrors drains the producer's error channel until Close.
func (p *Producer) handleErrors() {
	defer p.wg.Done()
	for err := range p.producer.Errors() {
		p.logger.Error("Failed to produce missing-tariff event",
			zap.String("topic", err.Msg.Topic),
			zap.Error(err.Err))
	}
}
