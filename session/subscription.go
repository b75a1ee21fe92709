package session

import (
	"context"
	"sync"
)

// Subscription es una cola FIFO sin límite por suscriptor. Publicar nunca
// bloquea; una goroutine propia drena la cola hacia Events().
type Subscription struct {
	out    chan Event
	notify chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	queue  []Event
	closed bool

	once     sync.Once
	detach   func()
	stopCtx  func() bool
	onCancel func()
}

func newSubscription() *Subscription {
	s := &Subscription{
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// Events devuelve el canal de eventos. Se cierra al cancelar.
func (s *Subscription) Events() <-chan Event { return s.out }

// Cancel deja de recibir eventos. Idempotente; no afecta a otros suscriptores.
// Los eventos encolados y no leídos se descartan.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		s.mu.Lock()
		stop := s.stopCtx
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

func (s *Subscription) bind(ctx context.Context) {
	stop := context.AfterFunc(ctx, s.Cancel)
	s.mu.Lock()
	s.stopCtx = stop
	s.mu.Unlock()
}

// push encola sin bloquear.
func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}
