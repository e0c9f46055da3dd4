package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/relaycron/jobstore/internal/domain"
)

func (g *Gateway) InsertSchedulerState(ctx context.Context, tx any, s domain.SchedulerState) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `
		INSERT INTO scheduler_state (instance_id, last_checkin_time, checkin_interval_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_id) DO UPDATE SET last_checkin_time = $2, checkin_interval_ms = $3`,
		s.InstanceID, s.LastCheckinTime, s.CheckinInterval.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert scheduler state: %w", err)
	}
	return nil
}

func (g *Gateway) UpdateSchedulerStateCheckin(ctx context.Context, tx any, instanceID string, checkinTime time.Time) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	tag, err := t.Exec(ctx, `UPDATE scheduler_state SET last_checkin_time = $2 WHERE instance_id = $1`,
		instanceID, checkinTime)
	if err != nil {
		return false, fmt.Errorf("update scheduler state checkin: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (g *Gateway) DeleteSchedulerState(ctx context.Context, tx any, instanceID string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `DELETE FROM scheduler_state WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete scheduler state: %w", err)
	}
	return nil
}

func (g *Gateway) SelectSchedulerStates(ctx context.Context, tx any) ([]domain.SchedulerState, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `SELECT instance_id, last_checkin_time, checkin_interval_ms FROM scheduler_state`)
	if err != nil {
		return nil, fmt.Errorf("select scheduler states: %w", err)
	}
	defer rows.Close()

	var out []domain.SchedulerState
	for rows.Next() {
		s, err := scanSchedulerState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectSchedulerState(ctx context.Context, tx any, instanceID string) (*domain.SchedulerState, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	row := t.QueryRow(ctx, `SELECT instance_id, last_checkin_time, checkin_interval_ms FROM scheduler_state WHERE instance_id = $1`, instanceID)
	s, err := scanSchedulerState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSchedulerState(row rowScanner) (*domain.SchedulerState, error) {
	var s domain.SchedulerState
	var ms int64
	err := row.Scan(&s.InstanceID, &s.LastCheckinTime, &ms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan scheduler state: %w", err)
	}
	s.CheckinInterval = time.Duration(ms) * time.Millisecond
	return &s, nil
}
