package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/idgen/simple"
)

func (d *DB) SaveRooms(ctx context.Context, rooms []*booking.Room) (err error) {
	query := `
		INSERT INTO rooms (id, name, rate_per_night, max_capacity)
		VALUES (:id, :name, :rate_per_night, :max_capacity)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			rate_per_night = EXCLUDED.rate_per_night,
			max_capacity = EXCLUDED.max_capacity
	`

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer d.rollback(tx, &err)

	for _, room := range rooms {
		row := roomRow{
			ID:           room.ID,
			Name:         room.Name,
			RatePerNight: room.RatePerNight,
			MaxCapacity:  room.MaxCapacity,
		}

		if _, err = tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("save room %v: %w", room.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (d *DB) GetRoom(ctx context.Context, roomID string) (*booking.Room, error) {
	var row roomRow

	err := d.db.GetContext(ctx, &row, `SELECT id, name, rate_per_night, max_capacity FROM rooms WHERE id = $1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &booking.NotFoundError{Kind: "room", ID: roomID}
	}

	if err != nil {
		return nil, fmt.Errorf("query room %v: %w", roomID, err)
	}

	return &booking.Room{
		ID:           row.ID,
		Name:         row.Name,
		RatePerNight: row.RatePerNight,
		MaxCapacity:  row.MaxCapacity,
	}, nil
}

func (d *DB) CheckOverlap(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeNumber string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM bookings
			WHERE room_id = $1
			AND status <> ALL($2)
			AND check_in < $4
			AND $3 < check_out
			AND number <> $5
		)
	`

	terminal := pq.StringArray{
		string(booking.StatusRejected),
		string(booking.StatusCancelled),
		string(booking.StatusCompleted),
	}

	var exists bool

	err := d.db.QueryRowContext(ctx, query, roomID, terminal,
		booking.CalendarDate(checkIn), booking.CalendarDate(checkOut), excludeNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check overlap of room %v: %w", roomID, err)
	}

	return exists, nil
}

//nolint:funlen // it's linear simple code
func (d *DB) Create(ctx context.Context, draft *booking.Booking, idempotencyKey string) (_ *booking.Booking, err error) {
	stay, err := json.Marshal(draft.Stay)
	if err != nil {
		return nil, fmt.Errorf("encode stay: %w", err)
	}

	cost, err := json.Marshal(draft.Cost)
	if err != nil {
		return nil, fmt.Errorf("encode cost: %w", err)
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	defer d.rollback(tx, &err)

	var seq int64
	if err = tx.QueryRowContext(ctx, `SELECT nextval('booking_number_seq')`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next booking number: %w", err)
	}

	number := simple.Format(d.prefix, draft.CreatedAt, seq)

	query := `
		INSERT INTO bookings (
			number, idempotency_key, room_id, guest_id, check_in, check_out, stay, cost,
			payment_method, status, hold_until, payment_reference, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, query,
		number, idempotencyKey, draft.RoomID, draft.GuestID,
		booking.CalendarDate(draft.Stay.CheckIn), booking.CalendarDate(draft.Stay.CheckOut),
		stay, cost, string(draft.PaymentMethod), string(draft.Status), draft.HoldUntil,
		draft.PaymentReference, draft.CreatedAt, draft.UpdatedAt,
	)
	if err != nil {
		if conflict := stayConflict(err, draft.RoomID, draft.Stay); conflict != nil {
			return nil, conflict
		}

		return nil, fmt.Errorf("insert booking: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if err = tx.Rollback(); err != nil {
			return nil, fmt.Errorf("rollback duplicate insert: %w", err)
		}

		return d.GetByIdempotencyKey(ctx, idempotencyKey)
	}

	if err = insertEvent(ctx, tx, number, booking.StatusChange{
		To:    draft.Status,
		Event: booking.EventCreated,
		Actor: booking.ActorFromContext(ctx),
		At:    draft.CreatedAt,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	created := draft.Clone()
	created.Number = number

	return created, nil
}

func (d *DB) getBooking(ctx context.Context, where string, arg any) (*booking.Booking, error) {
	var row bookingRow

	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s = $1`, bookingColumns, where)

	if err := d.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, err //nolint:wrapcheck
	}

	return row.toBooking()
}

func (d *DB) Get(ctx context.Context, number string) (*booking.Booking, error) {
	b, err := d.getBooking(ctx, "number", number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &booking.NotFoundError{Kind: "booking", ID: number}
	}

	if err != nil {
		return nil, fmt.Errorf("query booking %v: %w", number, err)
	}

	return b, nil
}

func (d *DB) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	if key == "" {
		return nil, booking.ErrIdempotencyKey
	}

	b, err := d.getBooking(ctx, "idempotency_key", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrRecordNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("query booking by idempotency key: %w", err)
	}

	return b, nil
}

// missOrConflict explains why a guarded update touched no rows.
func missOrConflict(ctx context.Context, tx *sqlx.Tx, number string, expected booking.Status) error {
	var actual string

	err := tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE number = $1`, number).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return &booking.NotFoundError{Kind: "booking", ID: number}
	}

	if err != nil {
		return fmt.Errorf("query status of booking %v: %w", number, err)
	}

	return &booking.ConflictError{Number: number, Expected: expected, Actual: booking.Status(actual)}
}

func (d *DB) UpdateStatus(
	ctx context.Context,
	number string,
	expected booking.Status,
	change booking.StatusChange,
) (_ *booking.Booking, err error) {
	query := `
		UPDATE bookings
		SET status = $1,
			hold_until = $2,
			payment_reference = COALESCE(NULLIF($3, ''), payment_reference),
			updated_at = $4
		WHERE number = $5
		AND status = $6
	`

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	defer d.rollback(tx, &err)

	result, err := tx.ExecContext(ctx, query,
		string(change.To), change.HoldUntil, change.PaymentReference, change.At, number, string(expected))
	if err != nil {
		return nil, fmt.Errorf("update status of booking %v: %w", number, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = missOrConflict(ctx, tx, number, expected)

		return nil, err
	}

	if err = insertEvent(ctx, tx, number, change); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return d.Get(ctx, number)
}

func (d *DB) UpdateStay(
	ctx context.Context,
	number string,
	expected booking.Status,
	stay booking.StayRequest,
	cost booking.CostBreakdown,
) (_ *booking.Booking, err error) {
	stayJSON, err := json.Marshal(stay)
	if err != nil {
		return nil, fmt.Errorf("encode stay: %w", err)
	}

	costJSON, err := json.Marshal(cost)
	if err != nil {
		return nil, fmt.Errorf("encode cost: %w", err)
	}

	query := `
		UPDATE bookings
		SET check_in = $1,
			check_out = $2,
			stay = $3,
			cost = $4,
			updated_at = $5
		WHERE number = $6
		AND status = $7
	`

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	defer d.rollback(tx, &err)

	result, err := tx.ExecContext(ctx, query,
		booking.CalendarDate(stay.CheckIn), booking.CalendarDate(stay.CheckOut),
		stayJSON, costJSON, time.Now().UTC(), number, string(expected))
	if err != nil {
		if conflict := stayConflict(err, stay.RoomID, stay); conflict != nil {
			return nil, conflict
		}

		return nil, fmt.Errorf("update stay of booking %v: %w", number, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = missOrConflict(ctx, tx, number, expected)

		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return d.Get(ctx, number)
}

// exclusionViolation is raised by bookings_room_stay_excl.
const exclusionViolation = pq.ErrorCode("23P01")

func stayConflict(err error, roomID string, stay booking.StayRequest) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != exclusionViolation {
		return nil
	}

	availabilityErr := booking.NewAvailabilityError()
	availabilityErr.AddUnavailableRoom(roomID, stay.CheckIn, stay.CheckOut)

	return availabilityErr
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, number string, change booking.StatusChange) error {
	query := `
		INSERT INTO booking_events (booking_number, from_status, to_status, event, actor, note, trace_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.ExecContext(ctx, query, number, string(change.From), string(change.To), string(change.Event),
		change.Actor, change.Note, change.TraceID, change.At)
	if err != nil {
		return fmt.Errorf("insert event of booking %v: %w", number, err)
	}

	return nil
}

func (d *DB) ListEvents(ctx context.Context, number string) ([]*booking.StatusEvent, error) {
	var rows []eventRow

	query := `
		SELECT id, booking_number, from_status, to_status, event, actor, note, trace_id, created_at
		FROM booking_events
		WHERE booking_number = $1
		ORDER BY id ASC
	`

	if err := d.db.SelectContext(ctx, &rows, query, number); err != nil {
		return nil, fmt.Errorf("query events of booking %v: %w", number, err)
	}

	events := make([]*booking.StatusEvent, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].toEvent())
	}

	return events, nil
}

func (d *DB) ListByStatus(ctx context.Context, statuses ...booking.Status) ([]*booking.Booking, error) {
	names := make(pq.StringArray, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}

	var rows []bookingRow

	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE status = ANY($1) ORDER BY created_at ASC, number ASC`, bookingColumns)

	if err := d.db.SelectContext(ctx, &rows, query, names); err != nil {
		return nil, fmt.Errorf("query bookings by status: %w", err)
	}

	bookings := make([]*booking.Booking, 0, len(rows))

	for i := range rows {
		b, err := rows[i].toBooking()
		if err != nil {
			return nil, err
		}

		bookings = append(bookings, b)
	}

	return bookings, nil
}
