// Package publish emits the flow metrics of a run to a RabbitMQ topic exchange.
package publish

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/iti/ltesim"
	"github.com/streadway/amqp"
)

// DefaultExchange receives the flow events when no exchange is configured
const DefaultExchange = "ltesim.events"

// FlowEvent is the JSON body of one published message.  Undefined metrics
// are null.
type FlowEvent struct {
	RunID          string   `json:"run_id"`
	Variant        string   `json:"variant"`
	FlowID         uint32   `json:"flow_id"`
	Protocol       string   `json:"protocol"`
	Src            string   `json:"src"`
	Dst            string   `json:"dst"`
	TxPackets      uint64   `json:"tx_packets"`
	RxPackets      uint64   `json:"rx_packets"`
	TxBytes        uint64   `json:"tx_bytes"`
	RxBytes        uint64   `json:"rx_bytes"`
	ThroughputKbps *float64 `json:"throughput_kbps"`
	MeanDelayMs    *float64 `json:"mean_delay_ms"`
	MeanJitterMs   *float64 `json:"mean_jitter_ms"`
	LostPackets    int64    `json:"lost_packets"`
	LossPercent    *float64 `json:"loss_percent"`
	RoutingKey     string   `json:"routing_key"`
	TsUTC          string   `json:"ts_utc"`
}

// defined returns nil for NaN, which encoding/json refuses
func defined(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RoutingKey is the topic under which the flows of a variant are published
func RoutingKey(variant ltesim.Variant) string {
	return "ltesim.flow." + string(variant)
}

// NewFlowEvent builds the message for one flow
func NewFlowEvent(runID string, variant ltesim.Variant, fm ltesim.FlowMetrics) FlowEvent {
	return FlowEvent{
		RunID:          runID,
		Variant:        string(variant),
		FlowID:         uint32(fm.FlowID),
		Protocol:       fm.Tuple.Protocol.String(),
		Src:            fmt.Sprintf("%s:%d", fm.Tuple.SrcAddr, fm.Tuple.SrcPort),
		Dst:            fmt.Sprintf("%s:%d", fm.Tuple.DstAddr, fm.Tuple.DstPort),
		TxPackets:      fm.TxPackets,
		RxPackets:      fm.RxPackets,
		TxBytes:        fm.TxBytes,
		RxBytes:        fm.RxBytes,
		ThroughputKbps: defined(fm.ThroughputKbps),
		MeanDelayMs:    defined(fm.MeanDelayMs),
		MeanJitterMs:   defined(fm.MeanJitterMs),
		LostPackets:    fm.LostPackets,
		LossPercent:    defined(fm.LossPercent),
		RoutingKey:     RoutingKey(variant),
	}
}

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher wraps an AMQP connection/channel for event publishing.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
}

// NewPublisher connects to RabbitMQ and declares the exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Close closes the AMQP channel and connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Publish emits one JSON event to the configured exchange.
func (p *Publisher) Publish(ev FlowEvent) error {
	ev.TsUTC = time.Now().UTC().Format(time.RFC3339Nano)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.channel.Publish(
		p.exchange,
		ev.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s/%d", ev.RunID, ev.FlowID),
			Body:         body,
		},
	)
}

// PublishRun emits one event per flow, stopping at the first failure
func (p *Publisher) PublishRun(runID string, variant ltesim.Variant, metrics []ltesim.FlowMetrics) error {
	for _, fm := range metrics {
		if err := p.Publish(NewFlowEvent(runID, variant, fm)); err != nil {
			return fmt.Errorf("publish flow %d: %w", fm.FlowID, err)
		}
	}
	return nil
}
