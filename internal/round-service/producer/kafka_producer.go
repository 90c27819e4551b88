package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/card-round-platform-poc/pkg/contracts/events"
)

// KafkaPublisher publica os eventos do round-service nos tópicos de contrato.
type KafkaPublisher struct {
	Bids        *kafka.Writer // tópico bid_accepted
	Settlements *kafka.Writer // tópico round_settled
}

func NewKafkaPublisher(bids, settlements *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Bids: bids, Settlements: settlements}
}

func (p *KafkaPublisher) PublishBidAccepted(ctx context.Context, e events.BidAccepted) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.Bids.WriteMessages(ctx, kafka.Message{Key: []byte(e.RoundID), Value: b})
}

func (p *KafkaPublisher) PublishRoundSettled(ctx context.Context, e events.RoundSettled) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.Settlements.WriteMessages(ctx, kafka.Message{Key: []byte(e.RoundID), Value: b})
}
