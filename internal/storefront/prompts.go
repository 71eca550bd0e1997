package storefront

import (
	"context"
	"sync"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"
)

type promptWaiters struct {
	mu      sync.Mutex
	waiters map[chan checkout.Handle]struct{}
}

func (p *promptWaiters) add() chan checkout.Handle {
	ch := make(chan checkout.Handle, 1)
	p.mu.Lock()
	if p.waiters == nil {
		p.waiters = make(map[chan checkout.Handle]struct{})
	}
	p.waiters[ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

func (p *promptWaiters) remove(ch chan checkout.Handle) {
	p.mu.Lock()
	delete(p.waiters, ch)
	p.mu.Unlock()
}

func (p *promptWaiters) publish(h checkout.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.waiters {
		select {
		case ch <- h:
		default:
		}
	}
}

// AwaitPrompt blocks until the online payment handle is ready for the browser, the attempt
// finishes (done closes) or ctx ends.
func (s *Session) AwaitPrompt(ctx context.Context, done <-chan struct{}) (checkout.Handle, bool) {
	ch := s.prompts.add()
	defer s.prompts.remove(ch)

	if h, ok := s.Gateway.Pending(); ok {
		return h, true
	}
	select {
	case h := <-ch:
		return h, true
	case <-done:
		return s.Gateway.Pending()
	case <-ctx.Done():
		return checkout.Handle{}, false
	}
}
