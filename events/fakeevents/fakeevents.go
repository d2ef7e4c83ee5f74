package fakeevents

import (
	"context"
	"sync"

	"github.com/storemarket/market-core/events"
)

// Publisher is an in-memory events.Publisher for tests.
type Publisher struct {
	lock      sync.Mutex
	published []events.Event
}

var _ events.Publisher = (*Publisher)(nil)

// New returns an empty fake publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, e events.Event) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.published = append(p.published, e)
	return nil
}

// Helpers for tests

// Total returns how many events were published.
func (p *Publisher) Total() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.published)
}

// ByType returns the published events of a given type, in order.
func (p *Publisher) ByType(t events.Type) []events.Event {
	p.lock.Lock()
	defer p.lock.Unlock()

	var out []events.Event
	for _, e := range p.published {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recently published event.
func (p *Publisher) Last() (events.Event, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if len(p.published) == 0 {
		return events.Event{}, false
	}
	return p.published[len(p.published)-1], true
}
