package postgres

import (
	"context"
	"fmt"
)

func (g *Gateway) MarkGroupPaused(ctx context.Context, tx any, group string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `
		INSERT INTO paused_trigger_grps (trigger_group) VALUES ($1)
		ON CONFLICT (trigger_group) DO NOTHING`, group)
	if err != nil {
		return fmt.Errorf("mark group paused: %w", err)
	}
	return nil
}

func (g *Gateway) MarkGroupResumed(ctx context.Context, tx any, group string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `DELETE FROM paused_trigger_grps WHERE trigger_group = $1`, group)
	if err != nil {
		return fmt.Errorf("mark group resumed: %w", err)
	}
	return nil
}

func (g *Gateway) IsGroupPaused(ctx context.Context, tx any, group string) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM paused_trigger_grps WHERE trigger_group = $1)`, group).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is group paused: %w", err)
	}
	return exists, nil
}

func (g *Gateway) SelectPausedGroups(ctx context.Context, tx any) ([]string, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `SELECT trigger_group FROM paused_trigger_grps ORDER BY trigger_group`)
	if err != nil {
		return nil, fmt.Errorf("select paused groups: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}
