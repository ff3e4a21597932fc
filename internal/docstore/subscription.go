package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Subscription is a live view of one collection. Updates yields an initial
// snapshot followed by a fresh snapshot after every observed change; changes
// that arrive while the consumer is busy are coalesced. The channel is closed
// once the subscription ends.
type Subscription struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Updates returns the snapshot channel.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Done is closed after the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

func startSubscription(parent context.Context, hub *Hub, collection string, load func(ctx context.Context) (Snapshot, error)) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	sub := &Subscription{
		updates: make(chan Snapshot),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	kick := hub.watch(collection)

	go func() {
		defer close(sub.done)
		defer close(sub.updates)
		defer hub.unwatch(collection, kick)

		for {
			snap, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("collection", collection).Msg("docstore: snapshot load failed")
			} else {
				snap.At = time.Now().UTC()
				select {
				case sub.updates <- snap:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-kick:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub
}
