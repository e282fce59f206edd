package fanout

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

const memoryBuffer = 256

// MemoryBus delivers updates within one process. Each subscription has its
// own buffered queue so a slow handler does not hold up publishers.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[*memorySubscription]bool
	envelope envelope
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus(origin string, clock clockwork.Clock) *MemoryBus {
	return &MemoryBus{
		subs:     make(map[*memorySubscription]bool),
		envelope: newEnvelope(origin, clock),
	}
}

func (b *MemoryBus) Publish(_ context.Context, room *models.Room) error {
	data, err := b.envelope.encode(room)
	if err != nil {
		return err
	}
	b.PublishRaw(data)
	return nil
}

// PublishRaw delivers data as-is to every subscriber.
func (b *MemoryBus) PublishRaw(data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.queue <- data:
		default:
			log.Warn().Msg("memory bus subscriber full, dropping update")
		}
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	sub := &memorySubscription{
		bus:   b,
		queue: make(chan []byte, memoryBuffer),
		stop:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Unsubscribe()
				return
			case <-sub.stop:
				return
			case data := <-sub.queue:
				dispatch(ctx, "memory", data, handler)
			}
		}
	}()
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	subs := make([]*memorySubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return nil
}

type memorySubscription struct {
	bus   *MemoryBus
	queue chan []byte
	stop  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.stop)
	})
	return nil
}
