package provider

import (
	"context"
	"slices"
	"sync"
)

// ClientStub is an in-memory Client and Registrar.
type ClientStub struct {
	mu       sync.Mutex
	Meetings []Meeting
	// RegistrantsByKey holds the registrants served by Registrants.
	RegistrantsByKey map[string][]string
	// Err makes ListMeetings fail.
	Err error
	// RegisterErr makes Register fail.
	RegisterErr error
	Registered  map[string][]Registrant
	ListCalls   int
}

func NewClientStub(meetings ...Meeting) *ClientStub {
	return &ClientStub{
		Meetings:         meetings,
		RegistrantsByKey: make(map[string][]string),
		Registered:       make(map[string][]Registrant),
	}
}

func (c *ClientStub) Name() string {
	return "stub"
}

func (c *ClientStub) ListMeetings(ctx context.Context) ([]Meeting, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ListCalls++
	if c.Err != nil {
		return nil, c.Err
	}
	return slices.Clone(c.Meetings), nil
}

func (c *ClientStub) Registrants(m Meeting) *RegistrantIterator {
	c.mu.Lock()
	emails := slices.Clone(c.RegistrantsByKey[m.Key()])
	c.mu.Unlock()
	return StaticRegistrants(emails, true)
}

func (c *ClientStub) Register(ctx context.Context, m Meeting, r Registrant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RegisterErr != nil {
		return c.RegisterErr
	}
	c.Registered[m.Key()] = append(c.Registered[m.Key()], r)
	return nil
}
