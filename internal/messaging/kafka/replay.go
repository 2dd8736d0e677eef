package kafka

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// ReplayOptions — параметры переигрывания DLQ.
type ReplayOptions struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	// Execute=false — dry-run: кандидаты только логируются.
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// ReplayStats — итог прогона.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

// OffsetClient — часть sarama.Client, нужная для чтения границ партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionStream — поток сообщений одной партиции.
type PartitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionSource открывает чтение партиции.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionStream, error)
}

// ConsumerSource адаптирует sarama.Consumer к PartitionSource.
type ConsumerSource struct {
	Consumer sarama.Consumer
}

func (s ConsumerSource) ConsumePartition(topic string, partition int32, offset int64) (PartitionStream, error) {
	pc, err := s.Consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// Replayer возвращает события из DLQ обратно в topic событий заказов.
type Replayer struct {
	client    OffsetClient
	consumer  PartitionSource
	publisher *Producer
	logger    *log.Entry
	now       func() time.Time
}

// NewReplayer создаёт Replayer. publisher может быть nil для dry-run.
func NewReplayer(client OffsetClient, consumer PartitionSource, publisher *Producer, logger *log.Entry) *Replayer {
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}
	return &Replayer{client: client, consumer: consumer, publisher: publisher, logger: logger, now: time.Now}
}

// Run читает каждую партицию SourceTopic до зафиксированного на старте
// high-water mark и переигрывает не больше Limit записей.
func (r *Replayer) Run(ctx context.Context, opts ReplayOptions) (ReplayStats, error) {
	opts = normalizeReplayOptions(opts)
	var total ReplayStats

	if r.client == nil || r.consumer == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if opts.Execute && r.publisher == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(opts.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", opts.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := opts.Limit - total.Processed
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, opts, partition, remaining)
		total.Processed += stats.Processed
		total.Replayed += stats.Replayed
		total.Skipped += stats.Skipped
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   opts.Execute,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, opts ReplayOptions, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(opts.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(opts.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if opts.FromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := r.consumer.ConsumePartition(opts.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(opts.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(opts.IdleTimeout)

			stats.Processed++
			replayed, err := r.replayMessage(ctx, opts, msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.Replayed++
			} else {
				stats.Skipped++
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *Replayer) replayMessage(ctx context.Context, opts ReplayOptions, msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	rec, err := ParseDLQRecord(msg.Value)
	if err != nil {
		entry.WithError(err).Warn("skip unsupported dlq message")
		return false, nil
	}

	envelope := rec.Envelope(r.now())
	entry = entry.WithFields(log.Fields{
		"outbox_id":    rec.OutboxID,
		"event_type":   rec.EventType,
		"target_topic": opts.TargetTopic,
	})
	if !opts.Execute {
		entry.Info("dlq replay candidate")
		return true, nil
	}

	headers := map[string]string{
		HeaderEventType:   envelope.EventType,
		HeaderOutboxID:    envelope.ID,
		HeaderReplayCount: strconv.Itoa(replayCount(msg) + 1),
		HeaderReplayedAt:  envelope.PublishedAt.Format(time.RFC3339Nano),
	}
	if err := r.publisher.PublishEvent(ctx, opts.TargetTopic, envelope.Key(), envelope, headers); err != nil {
		return false, fmt.Errorf("publish replay message: %w", err)
	}
	entry.Debug("dlq message replayed")
	return true, nil
}

func replayCount(msg *sarama.ConsumerMessage) int {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == HeaderReplayCount {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func normalizeReplayOptions(opts ReplayOptions) ReplayOptions {
	if opts.SourceTopic == "" {
		opts.SourceTopic = TopicDeadLetterQueue
	}
	if opts.TargetTopic == "" {
		opts.TargetTopic = TopicOrderEvents
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultReplayLimit
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return opts
}
