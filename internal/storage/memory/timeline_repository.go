package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineEntry запоминает порядковый номер записи, чтобы события
// с одинаковым временем сохраняли порядок добавления.
type timelineEntry struct {
	seq   uint64
	event domain.TimelineEvent
}

// TimelineRepository — in-memory история заказов.
type TimelineRepository struct {
	mu      sync.RWMutex
	seq     uint64
	byOrder map[string][]timelineEntry
	now     func() time.Time
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{byOrder: make(map[string][]timelineEntry), now: time.Now}
}

func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}
	event.Occurred = event.Occurred.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	entries := append(r.byOrder[event.OrderID], timelineEntry{seq: r.seq, event: event})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].event.Occurred.Equal(entries[j].event.Occurred) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].event.Occurred.Before(entries[j].event.Occurred)
	})
	r.byOrder[event.OrderID] = entries
	return nil
}

// List возвращает копию истории заказа по возрастанию времени.
func (r *TimelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.byOrder[orderID]
	if len(entries) == 0 {
		return nil, nil
	}
	events := make([]domain.TimelineEvent, len(entries))
	for i, entry := range entries {
		events[i] = entry.event
	}
	return events, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
