package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/relaycron/jobstore/internal/domain"
)

func (g *Gateway) InsertFiredTrigger(ctx context.Context, tx any, ft *domain.FiredTrigger) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `
		INSERT INTO fired_triggers (
			entry_id, instance_id, trigger_group, trigger_name, job_group, job_name,
			state, is_stateful, requests_recovery, fire_time, priority
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ft.EntryID, ft.InstanceID, ft.TriggerKey.Group, ft.TriggerKey.Name, ft.JobKey.Group, ft.JobKey.Name,
		string(ft.State), ft.IsStateful, ft.RequestsRecovery, ft.FireTime, ft.Priority,
	)
	if err != nil {
		return fmt.Errorf("insert fired trigger: %w", err)
	}
	return nil
}

func (g *Gateway) DeleteFiredTrigger(ctx context.Context, tx any, entryID string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `DELETE FROM fired_triggers WHERE entry_id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("delete fired trigger: %w", err)
	}
	return nil
}

func (g *Gateway) SelectFiredTriggersByInstance(ctx context.Context, tx any, instanceID string) ([]*domain.FiredTrigger, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `
		SELECT entry_id, instance_id, trigger_group, trigger_name, job_group, job_name,
		       state, is_stateful, requests_recovery, fire_time, priority
		FROM fired_triggers WHERE instance_id = $1`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("select fired triggers by instance: %w", err)
	}
	defer rows.Close()

	var out []*domain.FiredTrigger
	for rows.Next() {
		ft, err := scanFiredTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectFiredTriggerByTriggerAndInstance(ctx context.Context, tx any, triggerKey domain.TriggerKey, instanceID string) (*domain.FiredTrigger, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	row := t.QueryRow(ctx, `
		SELECT entry_id, instance_id, trigger_group, trigger_name, job_group, job_name,
		       state, is_stateful, requests_recovery, fire_time, priority
		FROM fired_triggers
		WHERE trigger_group = $1 AND trigger_name = $2 AND instance_id = $3
		ORDER BY fire_time DESC LIMIT 1`, triggerKey.Group, triggerKey.Name, instanceID)
	return scanFiredTrigger(row)
}

func (g *Gateway) DeleteFiredTriggersByInstance(ctx context.Context, tx any, instanceID string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `DELETE FROM fired_triggers WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete fired triggers by instance: %w", err)
	}
	return nil
}

func scanFiredTrigger(row rowScanner) (*domain.FiredTrigger, error) {
	var ft domain.FiredTrigger
	err := row.Scan(
		&ft.EntryID, &ft.InstanceID, &ft.TriggerKey.Group, &ft.TriggerKey.Name,
		&ft.JobKey.Group, &ft.JobKey.Name, (*string)(&ft.State),
		&ft.IsStateful, &ft.RequestsRecovery, &ft.FireTime, &ft.Priority,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan fired trigger: %w", err)
	}
	return &ft, nil
}
