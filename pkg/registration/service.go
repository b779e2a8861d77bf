package registration

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/provider"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidRegistration = errors.New("invalid registration")
var ErrRegistrationClosed = errors.New("occurrence does not accept registrations")
var ErrUpstreamRejected = errors.New("provider rejected the registration")

type Registration struct {
	Email     string `schema:"email,required"`
	FirstName string `schema:"first_name"`
	LastName  string `schema:"last_name"`
}

type Service struct {
	store  occurrence.Store
	client provider.Client
}

// NewService creates the registration service. client may be nil when no
// provider is configured.
func NewService(store occurrence.Store, client provider.Client) *Service {
	return &Service{store: store, client: client}
}

// Register adds the attendee to the registrants of one occurrence. Provider
// owned occurrences are registered upstream first when the provider accepts
// registrations. It reports whether the attendee was newly added.
func (s *Service) Register(ctx context.Context, id uuid.UUID, r Registration) (bool, error) {
	address, err := mail.ParseAddress(strings.TrimSpace(r.Email))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}
	r.Email = address.Address

	added := false
	err = s.store.WithTransaction(ctx, func(store occurrence.Store) error {
		o, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != occurrence.StatusPublish {
			return ErrRegistrationClosed
		}
		if !o.AddRegistrant(r.Email) {
			return nil
		}
		if o.IsExternal() {
			if err := s.registerUpstream(ctx, o, r); err != nil {
				return err
			}
		}
		if _, err := store.Update(ctx, o); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		log.Errorf("failed to register %s for occurrence %s: %v", r.Email, id, err)
		return false, err
	}
	if added {
		log.Infof("registered %s for occurrence %s", r.Email, id)
	}
	return added, nil
}

func (s *Service) registerUpstream(ctx context.Context, o occurrence.Occurrence, r Registration) error {
	registrar, ok := s.client.(provider.Registrar)
	if !ok {
		return nil
	}
	meeting, err := s.findMeeting(ctx, o.ExternalMeetingId)
	if err != nil {
		return err
	}
	err = registrar.Register(ctx, meeting, provider.Registrant{Email: r.Email, FirstName: r.FirstName, LastName: r.LastName})
	if err != nil {
		if errors.Is(err, provider.ErrRegistrationUnsupported) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUpstreamRejected, err)
	}
	return nil
}

func (s *Service) findMeeting(ctx context.Context, key string) (provider.Meeting, error) {
	meetings, err := s.client.ListMeetings(ctx)
	if err != nil {
		return provider.Meeting{}, fmt.Errorf("%w: %v", ErrUpstreamRejected, err)
	}
	for _, m := range meetings {
		if m.Key() == key {
			return m, nil
		}
	}
	return provider.Meeting{}, fmt.Errorf("%w: meeting %s is no longer offered by %s", ErrRegistrationClosed, key, s.client.Name())
}
