package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestGroupViewConsumer_HandlesAndCommits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte(`{"group_id":"g1"}`)},
		{Offset: 2, Value: []byte(`bad`)},
		{Offset: 3, Value: []byte(`{"group_id":"g2"}`)},
	}}
	c := NewGroupViewConsumerWithReader(reader, nil)

	var mu sync.Mutex
	var handled []string
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, func(msg kafka.Message) error {
		mu.Lock()
		handled = append(handled, string(msg.Value))
		mu.Unlock()
		if string(msg.Value) == "bad" {
			return errors.New("decode failed")
		}
		return nil
	})

	// 处理失败的消息同样会被提交。
	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, c.Close())

	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
	assert.Len(t, handled, 3)
	assert.True(t, reader.closed)
}

func TestGroupViewConsumer_FetchErrorDoesNotStopLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker unavailable")},
		queue:     []kafka.Message{{Offset: 7}},
	}
	c := NewGroupViewConsumerWithReader(reader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, func(kafka.Message) error { return nil })

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, c.Close())
}
