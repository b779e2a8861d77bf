package occurrence

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
)

// RepositoryStub is an in-memory Repository. Transactions snapshot the state
// and restore it when the callback fails.
type RepositoryStub struct {
	mu            sync.RWMutex
	items         map[uuid.UUID]Occurrence
	inTransaction bool
	// FailOn makes the named operation return an error, for failure tests.
	FailOn map[string]error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		items:  make(map[uuid.UUID]Occurrence),
		FailOn: make(map[string]error),
	}
}

var ErrStubFailure = errors.New("stub failure")

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	if r.inTransaction {
		r.mu.Unlock()
		return fn(r)
	}
	original := make(map[uuid.UUID]Occurrence, len(r.items))
	for k, v := range r.items {
		original[k] = v.Clone()
	}
	r.inTransaction = true
	r.mu.Unlock()

	err := fn(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inTransaction = false
	if err != nil {
		r.items = original
		return err
	}
	return nil
}

func (r *RepositoryStub) fail(op string) error {
	if err, ok := r.FailOn[op]; ok {
		return err
	}
	return nil
}

func (r *RepositoryStub) Get(ctx context.Context, id uuid.UUID) (Occurrence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail("Get"); err != nil {
		return Occurrence{}, err
	}
	o, ok := r.items[id]
	if !ok {
		return Occurrence{}, ErrOccurrenceNotFound
	}
	return o.Clone(), nil
}

func (r *RepositoryStub) GetBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error) {
	return r.filter("GetBySeries", func(o Occurrence) bool {
		return o.SeriesId.Valid && o.SeriesId.UUID == seriesId && o.Status != StatusTrash
	})
}

func (r *RepositoryStub) GetAllBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error) {
	return r.filter("GetAllBySeries", func(o Occurrence) bool {
		return o.SeriesId.Valid && o.SeriesId.UUID == seriesId
	})
}

func (r *RepositoryStub) GetByExternalId(ctx context.Context, externalId string) (Occurrence, error) {
	found, err := r.filter("GetByExternalId", func(o Occurrence) bool {
		return o.ExternalMeetingId == externalId
	})
	if err != nil {
		return Occurrence{}, err
	}
	if len(found) == 0 {
		return Occurrence{}, ErrOccurrenceNotFound
	}
	return found[0], nil
}

func (r *RepositoryStub) ListExternal(ctx context.Context) ([]Occurrence, error) {
	return r.filter("ListExternal", func(o Occurrence) bool {
		return o.ExternalMeetingId != ""
	})
}

func (r *RepositoryStub) ListByStartDate(ctx context.Context, from, to time.Time) ([]Occurrence, error) {
	from, to = recurrence.Date(from), recurrence.Date(to)
	return r.filter("ListByStartDate", func(o Occurrence) bool {
		return o.Status != StatusTrash && !o.StartDate.Before(from) && !o.StartDate.After(to)
	})
}

func (r *RepositoryStub) filter(op string, keep func(o Occurrence) bool) ([]Occurrence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail(op); err != nil {
		return nil, err
	}
	var result []Occurrence
	for _, o := range r.items {
		if keep(o) {
			result = append(result, o.Clone())
		}
	}
	slices.SortFunc(result, func(a, b Occurrence) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return slices.Compare(a.Id[:], b.Id[:])
	})
	return result, nil
}

func (r *RepositoryStub) Create(ctx context.Context, o Occurrence) (Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Create"); err != nil {
		return Occurrence{}, err
	}
	if o.Id == uuid.Nil {
		o.Id = uuid.New()
	}
	if o.ParentId == uuid.Nil {
		o.ParentId = o.Id
	}
	if o.Status == "" {
		o.Status = StatusPublish
	}
	o.StartDate = recurrence.Date(o.StartDate)
	r.items[o.Id] = o.Clone()
	return o, nil
}

func (r *RepositoryStub) Update(ctx context.Context, o Occurrence) (Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Update"); err != nil {
		return Occurrence{}, err
	}
	if _, ok := r.items[o.Id]; !ok {
		return Occurrence{}, ErrOccurrenceNotFound
	}
	o.StartDate = recurrence.Date(o.StartDate)
	r.items[o.Id] = o.Clone()
	return o, nil
}

func (r *RepositoryStub) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Delete"); err != nil {
		return err
	}
	delete(r.items, id)
	return nil
}

// All returns every stored occurrence ordered by start date.
func (r *RepositoryStub) All() []Occurrence {
	all, _ := r.filter("", func(o Occurrence) bool { return true })
	return all
}

func (r *RepositoryStub) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[uuid.UUID]Occurrence)
	r.FailOn = make(map[string]error)
	r.inTransaction = false
}

// Snapshot returns a copy of the stored state keyed by id.
func (r *RepositoryStub) Snapshot() map[uuid.UUID]Occurrence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.items)
}
