package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"incidentdesk/core/store"
	"incidentdesk/core/utils"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaForwarder publishes audit records to a topic for an external SIEM.
// Produce is asynchronous; delivery errors are only logged.
type KafkaForwarder struct {
	client *kgo.Client
	topic  string
	logger *utils.Logger
}

func NewKafkaForwarder(brokers []string, topic string, logger *utils.Logger) (*KafkaForwarder, error) {
	var seeds []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			seeds = append(seeds, b)
		}
	}
	if len(seeds) == 0 {
		return nil, errors.New("kafka brokers are empty")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka topic is empty")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RequiredAcks(kgo.LeaderAck()),
		kgo.DisableIdempotentWrite(),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaForwarder{client: client, topic: topic, logger: logger}, nil
}

func (f *KafkaForwarder) Forward(ctx context.Context, rec *store.AuditLog) {
	value, err := json.Marshal(rec)
	if err != nil {
		f.logger.Warnf("audit forward encode id=%s: %v", rec.ID, err)
		return
	}
	record := &kgo.Record{Topic: f.topic, Key: []byte(rec.Action), Value: value}
	f.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			f.logger.Warnf("audit forward failed id=%s topic=%s: %v", rec.ID, r.Topic, err)
		}
	})
}

func (f *KafkaForwarder) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.client.Flush(ctx); err != nil {
		f.logger.Warnf("audit forward flush: %v", err)
	}
	f.client.Close()
}
