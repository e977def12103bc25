package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSink_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewSink(nil, "backpack.events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")

	_, err = NewSink([]string{"localhost:9092"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}
