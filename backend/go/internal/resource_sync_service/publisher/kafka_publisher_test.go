package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPublisher_MarshalFailureSkipsWrite(t *testing.T) {
	p := NewEventPublisher([]string{"127.0.0.1:1"}, "resource_sync_results", nil)
	defer p.Close()

	assert.Equal(t, "resource_sync_results", p.Topic())

	err := p.Publish(context.Background(), "g1", map[string]interface{}{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
	assert.Zero(t, p.writer.Stats().Writes)
}
