//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"backpack/internal/audit"
	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
	"backpack/pkg/testutil/containers"
)

// TestSink_ProducesKeyedJSON verifies a published event arrives keyed by its
// backpack with the full JSON body.
func TestSink_ProducesKeyedJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.NewRedpandaContainer(t).Broker
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "backpack.events"
	sink, err := NewSink([]string{broker}, topic)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.Health(ctx))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	event := audit.Event{
		ID:         id.NewEventID(),
		Type:       audit.EventPurchaseRecorded,
		Timestamp:  time.Date(2024, 4, 20, 16, 20, 0, 0, time.UTC),
		Actor:      "agent",
		BackpackID: 7,
		Item:       &models.PurchaseItem{Product: "Sour Diesel", Category: "Flower", TerpeneTag: "Limonene", Amount: 10},
	}
	require.NoError(t, sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, "7", string(records[0].Key))
	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event, got)
}
