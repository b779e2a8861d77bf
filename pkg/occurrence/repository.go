package occurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

var ErrOccurrenceNotFound = errors.New("occurrence not found")

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (Occurrence, error)
	// GetBySeries returns the non trashed members of a series ordered by start date.
	GetBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error)
	// GetAllBySeries returns every member of a series, trashed ones included.
	GetAllBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error)
	GetByExternalId(ctx context.Context, externalId string) (Occurrence, error)
	// ListExternal returns every occurrence bound to an external meeting, trashed ones included.
	ListExternal(ctx context.Context) ([]Occurrence, error)
	// ListByStartDate returns non trashed occurrences with from <= start_date <= to.
	ListByStartDate(ctx context.Context, from, to time.Time) ([]Occurrence, error)
	Create(ctx context.Context, o Occurrence) (Occurrence, error)
	Update(ctx context.Context, o Occurrence) (Occurrence, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *repositoryImpl) getQueryer() interface {
	Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.tx != nil {
		// already inside a transaction, join it
		return fn(r)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// The Rollback will be a no-op if the transaction was already committed
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &repositoryImpl{db: r.db, tx: tx}

	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

const selectColumns = `SELECT
				o.id,
				o.series_id,
				o.parent_id,
				o.external_meeting_id,
				o.title,
				o.description,
				o.registration_url,
				o.start_date,
				o.start_time_sec,
				o.end_time_sec,
				o.notify,
				o.registrants,
				o.status,
				o.frequency,
				o.by_weekday,
				o.by_month_ordinal,
				o.until
			  FROM occurrence o `

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (Occurrence, error) {
	row := r.getQueryer().QueryRow(ctx, selectColumns+`WHERE o.id = $1`, id)
	o, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Occurrence{}, ErrOccurrenceNotFound
		}
		return Occurrence{}, err
	}
	return o, nil
}

func (r *repositoryImpl) GetBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error) {
	query := selectColumns + `WHERE o.series_id = $1 AND o.status <> $2 ORDER BY o.start_date, o.id`
	return r.list(ctx, query, seriesId, string(StatusTrash))
}

func (r *repositoryImpl) GetAllBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error) {
	query := selectColumns + `WHERE o.series_id = $1 ORDER BY o.start_date, o.id`
	return r.list(ctx, query, seriesId)
}

func (r *repositoryImpl) GetByExternalId(ctx context.Context, externalId string) (Occurrence, error) {
	row := r.getQueryer().QueryRow(ctx, selectColumns+`WHERE o.external_meeting_id = $1`, externalId)
	o, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Occurrence{}, ErrOccurrenceNotFound
		}
		return Occurrence{}, err
	}
	return o, nil
}

func (r *repositoryImpl) ListExternal(ctx context.Context) ([]Occurrence, error) {
	query := selectColumns + `WHERE o.external_meeting_id IS NOT NULL ORDER BY o.start_date, o.id`
	return r.list(ctx, query)
}

func (r *repositoryImpl) ListByStartDate(ctx context.Context, from, to time.Time) ([]Occurrence, error) {
	query := selectColumns + `WHERE o.start_date >= $1 AND o.start_date <= $2 AND o.status <> $3
			  ORDER BY o.start_date, o.start_time_sec NULLS FIRST, o.id`
	return r.list(ctx, query, recurrence.Date(from), recurrence.Date(to), string(StatusTrash))
}

func (r *repositoryImpl) list(ctx context.Context, query string, args ...any) ([]Occurrence, error) {
	rows, err := r.getQueryer().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *repositoryImpl) Create(ctx context.Context, o Occurrence) (Occurrence, error) {
	if o.Id == uuid.Nil {
		o.Id = uuid.New()
	}
	if o.ParentId == uuid.Nil {
		o.ParentId = o.Id
	}
	if o.Status == "" {
		o.Status = StatusPublish
	}
	query := `INSERT INTO occurrence (
					id, series_id, parent_id, external_meeting_id,
					title, description, registration_url,
					start_date, start_time_sec, end_time_sec, notify, registrants, status,
					frequency, by_weekday, by_month_ordinal, until
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.getQueryer().Exec(ctx, query, toColumns(o)...)
	if err != nil {
		return Occurrence{}, fmt.Errorf("could not insert occurrence: %w", err)
	}
	return o, nil
}

func (r *repositoryImpl) Update(ctx context.Context, o Occurrence) (Occurrence, error) {
	query := `UPDATE occurrence SET
					series_id = $2, parent_id = $3, external_meeting_id = $4,
					title = $5, description = $6, registration_url = $7,
					start_date = $8, start_time_sec = $9, end_time_sec = $10, notify = $11,
					registrants = $12, status = $13,
					frequency = $14, by_weekday = $15, by_month_ordinal = $16, until = $17,
					updated_at = now()
				WHERE id = $1`
	result, err := r.getQueryer().Exec(ctx, query, toColumns(o)...)
	if err != nil {
		return Occurrence{}, fmt.Errorf("could not update occurrence: %w", err)
	}
	if result.RowsAffected() == 0 {
		return Occurrence{}, ErrOccurrenceNotFound
	}
	return o, nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.getQueryer().Exec(ctx, `DELETE FROM occurrence WHERE id = $1`, id)
	return err
}

// toColumns returns the column values in the order used by Create and Update.
func toColumns(o Occurrence) []any {
	var externalId *string
	if o.ExternalMeetingId != "" {
		externalId = &o.ExternalMeetingId
	}
	var until *time.Time
	if !o.Rule.Until.IsZero() {
		d := recurrence.Date(o.Rule.Until)
		until = &d
	}
	frequency := o.Rule.Frequency
	if frequency == "" {
		frequency = recurrence.None
	}
	weekdays := make([]string, 0, len(o.Rule.ByWeekday))
	for _, w := range o.Rule.ByWeekday {
		weekdays = append(weekdays, string(w))
	}
	ordinals := o.Rule.ByMonthOrdinal
	if ordinals == nil {
		ordinals = []int{}
	}
	registrants := o.Registrants
	if registrants == nil {
		registrants = []string{}
	}
	return []any{
		o.Id,
		o.SeriesId,
		o.ParentId,
		externalId,
		o.Title,
		o.Description,
		o.RegistrationURL,
		recurrence.Date(o.StartDate),
		secondsOrNil(o.StartTime),
		secondsOrNil(o.EndTime),
		o.Notify,
		registrants,
		string(o.Status),
		string(frequency),
		weekdays,
		ordinals,
		until,
	}
}

func secondsOrNil(t TimeOfDay) *int {
	if !t.Valid {
		return nil
	}
	s := t.Seconds
	return &s
}

func scanOccurrence(row pgx.Row) (Occurrence, error) {
	var o Occurrence
	var externalId *string
	var startSec, endSec *int
	var status, frequency string
	var weekdays []string
	var until *time.Time
	err := row.Scan(
		&o.Id,
		&o.SeriesId,
		&o.ParentId,
		&externalId,
		&o.Title,
		&o.Description,
		&o.RegistrationURL,
		&o.StartDate,
		&startSec,
		&endSec,
		&o.Notify,
		&o.Registrants,
		&status,
		&frequency,
		&weekdays,
		&o.Rule.ByMonthOrdinal,
		&until,
	)
	if err != nil {
		return Occurrence{}, err
	}
	if externalId != nil {
		o.ExternalMeetingId = *externalId
	}
	if startSec != nil {
		o.StartTime = TimeOfDay{Seconds: *startSec, Valid: true}
	}
	if endSec != nil {
		o.EndTime = TimeOfDay{Seconds: *endSec, Valid: true}
	}
	if until != nil {
		o.Rule.Until = recurrence.Date(*until)
	}
	o.StartDate = recurrence.Date(o.StartDate)
	o.Status = Status(status)
	o.Rule.Frequency = recurrence.Frequency(frequency)
	for _, w := range weekdays {
		o.Rule.ByWeekday = append(o.Rule.ByWeekday, recurrence.Weekday(w))
	}
	if len(o.Registrants) == 0 {
		o.Registrants = nil
	}
	if len(o.Rule.ByMonthOrdinal) == 0 {
		o.Rule.ByMonthOrdinal = nil
	}
	return o, nil
}
