package store

import (
	"context"
	"sync"

	"shopsync/internal/domain"
)

// Subscription delivers full product-set snapshots on C until Cancel is
// called or the subscribing context ends.
type Subscription struct {
	C <-chan []*domain.Product

	cancelOnce sync.Once
	cancel     func()
}

// Cancel stops delivery and releases the subscriber. Safe to call multiple
// times and concurrently with delivery.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// notifier fans product-set snapshots out to ObserveAll subscribers. Each
// subscriber owns a buffered channel of size one; broadcast replaces any
// undelivered snapshot so consumers always see the newest state.
type notifier struct {
	mu   sync.Mutex
	subs map[int]chan []*domain.Product
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan []*domain.Product)}
}

func (n *notifier) subscribe(ctx context.Context, current []*domain.Product) *Subscription {
	n.mu.Lock()
	id := n.next
	n.next++
	ch := make(chan []*domain.Product, 1)
	n.subs[id] = ch
	ch <- current
	n.mu.Unlock()

	sub := &Subscription{C: ch}
	sub.cancel = func() {
		n.mu.Lock()
		if _, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(ch)
		}
		n.mu.Unlock()
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Cancel()
		}()
	}

	return sub
}

// broadcast delivers the snapshot to every subscriber, dropping any stale
// undelivered snapshot first.
func (n *notifier) broadcast(snapshot []*domain.Product) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// closeAll cancels every remaining subscriber, used on store shutdown.
func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
