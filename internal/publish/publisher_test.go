package publish

import (
	"encoding/json"
	"errors"
	"math"
	"net/netip"
	"testing"

	"github.com/iti/ltesim"
	"github.com/streadway/amqp"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

// fakeChannel records what would have gone to the broker
type fakeChannel struct {
	sent   []published
	failAt int
	closed bool
}

func (fc *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if fc.failAt > 0 && len(fc.sent)+1 == fc.failAt {
		return errors.New("channel closed")
	}
	fc.sent = append(fc.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (fc *fakeChannel) Close() error {
	fc.closed = true
	return nil
}

func testMetrics() []ltesim.FlowMetrics {
	tuple := ltesim.FiveTuple{
		SrcAddr:  netip.MustParseAddr("1.0.0.2"),
		DstAddr:  netip.MustParseAddr("7.0.0.2"),
		SrcPort:  49153,
		DstPort:  100,
		Protocol: ltesim.ProtoUDP,
	}
	return []ltesim.FlowMetrics{
		{FlowID: 1, Tuple: tuple, TxPackets: 1000, RxPackets: 950, ThroughputKbps: 612.5,
			MeanDelayMs: 12.5, MeanJitterMs: 0.4, LostPackets: 50, LossPercent: 5},
		{FlowID: 2, Tuple: tuple.Reverse(), TxPackets: 10, ThroughputKbps: math.NaN(),
			MeanDelayMs: math.NaN(), MeanJitterMs: math.NaN(), LostPackets: 10, LossPercent: 100},
	}
}

func TestNewFlowEventUndefinedIsNull(t *testing.T) {
	ev := NewFlowEvent("run-1", ltesim.VariantFull, testMetrics()[1])
	if ev.ThroughputKbps != nil || ev.MeanDelayMs != nil || ev.MeanJitterMs != nil {
		t.Fatalf("undefined metrics not nil: %+v", ev)
	}
	if ev.LossPercent == nil || *ev.LossPercent != 100 {
		t.Fatalf("loss = %v", ev.LossPercent)
	}
	if ev.Src != "7.0.0.2:100" || ev.Dst != "1.0.0.2:49153" || ev.RoutingKey != "ltesim.flow.full" {
		t.Fatalf("event = %+v", ev)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, present := decoded["mean_delay_ms"]; !present || v != nil {
		t.Fatalf("mean_delay_ms = %v (present %v), want null", v, present)
	}
}

func TestPublishRun(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{channel: ch, exchange: DefaultExchange}

	if err := p.PublishRun("run-1", ltesim.VariantStreamFTP, testMetrics()); err != nil {
		t.Fatalf("PublishRun: %v", err)
	}
	if len(ch.sent) != 2 {
		t.Fatalf("published %d messages, want 2", len(ch.sent))
	}
	first := ch.sent[0]
	if first.exchange != DefaultExchange || first.key != "ltesim.flow.stream-ftp" {
		t.Fatalf("published to %s/%s", first.exchange, first.key)
	}
	if first.msg.MessageId != "run-1/1" || first.msg.ContentType != "application/json" || first.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("message = %+v", first.msg)
	}

	var ev FlowEvent
	if err := json.Unmarshal(first.msg.Body, &ev); err != nil {
		t.Fatalf("body: %v", err)
	}
	if ev.RunID != "run-1" || ev.FlowID != 1 || ev.TxPackets != 1000 || ev.TsUTC == "" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.ThroughputKbps == nil || *ev.ThroughputKbps != 612.5 {
		t.Fatalf("throughput = %v", ev.ThroughputKbps)
	}

	p.Close()
	if !ch.closed {
		t.Fatalf("channel not closed")
	}
}

func TestPublishRunStopsAtFailure(t *testing.T) {
	ch := &fakeChannel{failAt: 1}
	p := &Publisher{channel: ch, exchange: DefaultExchange}
	if err := p.PublishRun("run-1", ltesim.VariantFull, testMetrics()); err == nil {
		t.Fatalf("publish failure not reported")
	}
	if len(ch.sent) != 0 {
		t.Fatalf("published %d messages after a failure", len(ch.sent))
	}
}
