package email

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// EventOTPRequested is the type of every event KafkaSender publishes
const EventOTPRequested = "otp.requested"

// OTPRequestedEvent asks the mail service to deliver a code
type OTPRequestedEvent struct {
	Type        string    `json:"type"`
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	Purpose     string    `json:"purpose"`
	ValidFor    int       `json:"validForSeconds"`
	RequestedAt time.Time `json:"requestedAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender hands codes to an external mail service through a Kafka topic
type KafkaSender struct {
	writer messageWriter
}

// NewKafkaSender creates a synchronous producer for topic. SASL/PLAIN over TLS
// is used when username is set.
func NewKafkaSender(brokers []string, topic, username, password string) *KafkaSender {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	}

	if username != "" {
		w.Transport = &kafka.Transport{
			SASL: plain.Mechanism{
				Username: username,
				Password: password,
			},
			TLS: &tls.Config{},
		}
	}

	return &KafkaSender{writer: w}
}

// SendOTP publishes an otp.requested event keyed by recipient
func (s *KafkaSender) SendOTP(ctx context.Context, to, code, purpose string, validFor time.Duration) error {
	event := OTPRequestedEvent{
		Type:        EventOTPRequested,
		Email:       to,
		Code:        code,
		Purpose:     purpose,
		ValidFor:    int(validFor.Seconds()),
		RequestedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(to),
		Value: payload,
		Time:  event.RequestedAt,
	}); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
