package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"riskaccept/internal/platform/config"
	"riskaccept/pkg/platform/outbox"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Close() { f.closed = true }

func newEvent(t *testing.T) outbox.Event {
	t.Helper()
	e, err := outbox.NewEvent("acceptance", "agg-1", "acceptance.approve",
		map[string]string{"reference": "RA-001"}, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return e
}

func TestPublishKeysByAggregate(t *testing.T) {
	fake := &fakeProducer{}
	p := &Publisher{client: fake, topic: "acceptances"}
	event := newEvent(t)

	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, fake.records, 1)

	rec := fake.records[0]
	assert.Equal(t, "acceptances", rec.Topic)
	assert.Equal(t, "agg-1", string(rec.Key))
	assert.Equal(t, event.CreatedAt, rec.Timestamp)
	assert.Equal(t, []kgo.RecordHeader{
		{Key: "event_id", Value: []byte(event.ID.String())},
		{Key: "event_type", Value: []byte("acceptance.approve")},
	}, rec.Headers)

	var decoded outbox.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.JSONEq(t, `{"reference":"RA-001"}`, string(decoded.Payload))
}

func TestPublishReportsBrokerFailure(t *testing.T) {
	fake := &fakeProducer{err: errors.New("not enough replicas")}
	p := &Publisher{client: fake, topic: "acceptances"}

	err := p.Publish(context.Background(), newEvent(t))
	assert.ErrorContains(t, err, "not enough replicas")
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	_, err := NewPublisher(config.Kafka{Topic: "acceptances"})
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	fake := &fakeProducer{}
	(&Publisher{client: fake}).Close()
	assert.True(t, fake.closed)
}
