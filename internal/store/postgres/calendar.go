package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relaycron/jobstore/internal/domain"
)

func (g *Gateway) InsertCalendar(ctx context.Context, tx any, cal *domain.Calendar) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	ranges, err := json.Marshal(cal.ExcludedRanges)
	if err != nil {
		return fmt.Errorf("marshal excluded ranges: %w", err)
	}
	_, err = t.Exec(ctx, `
		INSERT INTO calendars (calendar_name, description, excluded_ranges)
		VALUES ($1, $2, $3)`, cal.Name, cal.Description, ranges)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrCalendarExists
		}
		return fmt.Errorf("insert calendar: %w", err)
	}
	return nil
}

func (g *Gateway) UpdateCalendar(ctx context.Context, tx any, cal *domain.Calendar) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	ranges, err := json.Marshal(cal.ExcludedRanges)
	if err != nil {
		return fmt.Errorf("marshal excluded ranges: %w", err)
	}
	tag, err := t.Exec(ctx, `
		UPDATE calendars SET description = $2, excluded_ranges = $3
		WHERE calendar_name = $1`, cal.Name, cal.Description, ranges)
	if err != nil {
		return fmt.Errorf("update calendar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCalendarNotFound
	}
	return nil
}

func (g *Gateway) SelectCalendar(ctx context.Context, tx any, name string) (*domain.Calendar, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	row := t.QueryRow(ctx, `SELECT calendar_name, description, excluded_ranges FROM calendars WHERE calendar_name = $1`, name)
	return scanCalendar(row)
}

func (g *Gateway) DeleteCalendar(ctx context.Context, tx any, name string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	tag, err := t.Exec(ctx, `DELETE FROM calendars WHERE calendar_name = $1`, name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrCalendarInUse
		}
		return fmt.Errorf("delete calendar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCalendarNotFound
	}
	return nil
}

func (g *Gateway) CalendarExists(ctx context.Context, tx any, name string) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM calendars WHERE calendar_name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("calendar exists: %w", err)
	}
	return exists, nil
}

func (g *Gateway) DeleteVolatileCalendars(ctx context.Context, tx any) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	// Calendars carry no volatility flag of their own (spec.md §3) — a
	// calendar is volatile only by virtue of being unreferenced by any
	// surviving non-volatile trigger after DeleteVolatileTriggers runs.
	_, err = t.Exec(ctx, `
		DELETE FROM calendars c
		WHERE NOT EXISTS (SELECT 1 FROM triggers tr WHERE tr.calendar_name = c.calendar_name)`)
	if err != nil {
		return fmt.Errorf("delete volatile calendars: %w", err)
	}
	return nil
}

func scanCalendar(row rowScanner) (*domain.Calendar, error) {
	var c domain.Calendar
	var ranges []byte
	err := row.Scan(&c.Name, &c.Description, &ranges)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCalendarNotFound
		}
		return nil, fmt.Errorf("scan calendar: %w", err)
	}
	if len(ranges) > 0 {
		if err := json.Unmarshal(ranges, &c.ExcludedRanges); err != nil {
			return nil, fmt.Errorf("unmarshal excluded ranges: %w", err)
		}
	}
	return &c, nil
}
