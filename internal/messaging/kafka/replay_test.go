package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

type fakeOffsets struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
}

func (f fakeOffsets) Partitions(string) ([]int32, error) { return f.partitions, nil }

func (f fakeOffsets) GetOffset(_ string, partition int32, which int64) (int64, error) {
	if which == sarama.OffsetOldest {
		return f.oldest[partition], nil
	}
	return f.newest[partition], nil
}

type fakeStream struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *fakeStream) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *fakeStream) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *fakeStream) Close() error                             { s.closed = true; return nil }

type fakeSource struct {
	streams map[int32]*fakeStream
	starts  map[int32]int64
}

func (f *fakeSource) ConsumePartition(_ string, partition int32, offset int64) (PartitionStream, error) {
	stream, ok := f.streams[partition]
	if !ok {
		return nil, errors.New("unexpected partition")
	}
	f.starts[partition] = offset
	return stream, nil
}

func newFakeSource(partition int32, start int64, values ...string) *fakeSource {
	stream := &fakeStream{
		messages: make(chan *sarama.ConsumerMessage, len(values)),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	for i, v := range values {
		stream.messages <- &sarama.ConsumerMessage{
			Topic:     TopicDeadLetterQueue,
			Partition: partition,
			Offset:    start + int64(i),
			Value:     []byte(v),
		}
	}
	return &fakeSource{streams: map[int32]*fakeStream{partition: stream}, starts: map[int32]int64{}}
}

func dlqValue(id string) string {
	return fmt.Sprintf(`{"outbox_id":%q,"aggregate_type":"order","aggregate_id":"order-%s","event_type":"OrderCreated","payload":{"order_id":"order-%s"},"publish_error":"boom"}`, id, id, id)
}

func TestReplayer_DryRunDoesNotPublish(t *testing.T) {
	source := newFakeSource(0, 0, dlqValue("1"), `garbage`, dlqValue("3"))
	offsets := fakeOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 0}, newest: map[int32]int64{0: 3}}

	stats, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayOptions{IdleTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, ReplayStats{Processed: 3, Replayed: 2, Skipped: 1}, stats)
	require.True(t, source.streams[0].closed)
}

func TestReplayer_ExecutePublishesEnvelopes(t *testing.T) {
	source := newFakeSource(0, 5, dlqValue("a"), dlqValue("b"))
	offsets := fakeOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 5}, newest: map[int32]int64{0: 7}}

	mockProducer := mocks.NewSyncProducer(t, nil)
	for _, id := range []string{"a", "b"} {
		id := id
		mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != TopicOrderEvents {
				return fmt.Errorf("unexpected topic %s", msg.Topic)
			}
			if got := headerValue(msg, HeaderReplayCount); got != "1" {
				return fmt.Errorf("unexpected replay count %q", got)
			}
			raw, _ := msg.Value.Encode()
			env, err := ParseEnvelope(raw)
			if err != nil {
				return err
			}
			if env.ID != id || env.AggregateID != "order-"+id {
				return fmt.Errorf("unexpected envelope %+v", env)
			}
			return nil
		})
	}

	replayer := NewReplayer(offsets, source, NewProducerFrom(mockProducer, nil), nil)
	stats, err := replayer.Run(context.Background(), ReplayOptions{Execute: true, IdleTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Replayed)
	require.Equal(t, int64(5), source.starts[0])
	require.NoError(t, mockProducer.Close())
}

func TestReplayer_FromNewestRespectsLimit(t *testing.T) {
	source := newFakeSource(0, 8, dlqValue("8"), dlqValue("9"))
	offsets := fakeOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 0}, newest: map[int32]int64{0: 10}}

	stats, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayOptions{
		Limit:       2,
		FromNewest:  true,
		IdleTimeout: time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, int64(8), source.starts[0])
	require.Equal(t, 2, stats.Processed)
}

func TestReplayer_ExecuteRequiresProducer(t *testing.T) {
	source := newFakeSource(0, 0)
	offsets := fakeOffsets{partitions: []int32{0}}

	_, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayOptions{Execute: true})
	require.Error(t, err)
}

func TestReplayer_IdleTimeoutStopsEmptyPartition(t *testing.T) {
	source := newFakeSource(0, 0)
	offsets := fakeOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 0}, newest: map[int32]int64{0: 4}}

	stats, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayOptions{IdleTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	require.Zero(t, stats.Processed)
}
