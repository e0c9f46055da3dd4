package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relaycron/jobstore/internal/domain"
)

func (g *Gateway) InsertTrigger(ctx context.Context, tx any, trig *domain.Trigger) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	_, err = t.Exec(ctx, `
		INSERT INTO triggers (
			trigger_group, trigger_name, job_group, job_name, description,
			calendar_name, priority, misfire_instr, is_volatile, trigger_state,
			trigger_type, next_fire_time, prev_fire_time, start_time, end_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		trig.Key.Group, trig.Key.Name, trig.JobKey.Group, trig.JobKey.Name, trig.Description,
		nullString(trig.CalendarName), trig.Priority, int(trig.MisfireInstruction), trig.Volatile, string(trig.State),
		string(trig.Kind()), trig.NextFireTime, trig.PrevFireTime, trig.StartTime, trig.EndTime,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrTriggerExists
		}
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrNoSuchJobForTrig
		}
		return fmt.Errorf("insert trigger: %w", err)
	}

	switch trig.Kind() {
	case domain.KindSimple:
		_, err = t.Exec(ctx, `
			INSERT INTO simple_triggers (trigger_group, trigger_name, repeat_interval_ms, repeat_count, times_triggered)
			VALUES ($1,$2,$3,$4,$5)`,
			trig.Key.Group, trig.Key.Name, trig.Simple.RepeatInterval.Milliseconds(), trig.Simple.RepeatCount, trig.Simple.TimesTriggered)
	case domain.KindCron:
		_, err = t.Exec(ctx, `
			INSERT INTO cron_triggers (trigger_group, trigger_name, cron_expression, time_zone)
			VALUES ($1,$2,$3,$4)`,
			trig.Key.Group, trig.Key.Name, trig.Cron.Expression, trig.Cron.TimeZone)
	case domain.KindBlob:
		_, err = t.Exec(ctx, `
			INSERT INTO blob_triggers (trigger_group, trigger_name, blob_data)
			VALUES ($1,$2,$3)`,
			trig.Key.Group, trig.Key.Name, trig.Blob.Payload)
	}
	if err != nil {
		return fmt.Errorf("insert trigger variant: %w", err)
	}
	return nil
}

func (g *Gateway) UpdateTrigger(ctx context.Context, tx any, trig *domain.Trigger) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	tag, err := t.Exec(ctx, `
		UPDATE triggers
		SET job_group = $3, job_name = $4, description = $5, calendar_name = $6,
		    priority = $7, misfire_instr = $8, trigger_state = $9,
		    next_fire_time = $10, prev_fire_time = $11, start_time = $12, end_time = $13
		WHERE trigger_group = $1 AND trigger_name = $2`,
		trig.Key.Group, trig.Key.Name, trig.JobKey.Group, trig.JobKey.Name, trig.Description,
		nullString(trig.CalendarName), trig.Priority, int(trig.MisfireInstruction), string(trig.State),
		trig.NextFireTime, trig.PrevFireTime, trig.StartTime, trig.EndTime,
	)
	if err != nil {
		return fmt.Errorf("update trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTriggerNotFound
	}

	switch trig.Kind() {
	case domain.KindSimple:
		_, err = t.Exec(ctx, `
			UPDATE simple_triggers SET repeat_interval_ms = $3, repeat_count = $4, times_triggered = $5
			WHERE trigger_group = $1 AND trigger_name = $2`,
			trig.Key.Group, trig.Key.Name, trig.Simple.RepeatInterval.Milliseconds(), trig.Simple.RepeatCount, trig.Simple.TimesTriggered)
	case domain.KindCron:
		_, err = t.Exec(ctx, `
			UPDATE cron_triggers SET cron_expression = $3, time_zone = $4
			WHERE trigger_group = $1 AND trigger_name = $2`,
			trig.Key.Group, trig.Key.Name, trig.Cron.Expression, trig.Cron.TimeZone)
	case domain.KindBlob:
		_, err = t.Exec(ctx, `
			UPDATE blob_triggers SET blob_data = $3
			WHERE trigger_group = $1 AND trigger_name = $2`,
			trig.Key.Group, trig.Key.Name, trig.Blob.Payload)
	}
	if err != nil {
		return fmt.Errorf("update trigger variant: %w", err)
	}
	return nil
}

// UpdateTriggerState is the CAS primitive spec.md §4.3 names explicitly.
func (g *Gateway) UpdateTriggerState(ctx context.Context, tx any, key domain.TriggerKey, newState domain.TriggerState, fromState *domain.TriggerState) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}

	var tag pgconn.CommandTag
	if fromState != nil {
		tag, err = t.Exec(ctx, `
			UPDATE triggers SET trigger_state = $3
			WHERE trigger_group = $1 AND trigger_name = $2 AND trigger_state = $4`,
			key.Group, key.Name, string(newState), string(*fromState))
	} else {
		tag, err = t.Exec(ctx, `
			UPDATE triggers SET trigger_state = $3
			WHERE trigger_group = $1 AND trigger_name = $2`,
			key.Group, key.Name, string(newState))
	}
	if err != nil {
		return false, fmt.Errorf("update trigger state: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (g *Gateway) SelectTrigger(ctx context.Context, tx any, key domain.TriggerKey) (*domain.Trigger, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	row := t.QueryRow(ctx, `
		SELECT trigger_group, trigger_name, job_group, job_name, description,
		       calendar_name, priority, misfire_instr, is_volatile, trigger_state,
		       trigger_type, next_fire_time, prev_fire_time, start_time, end_time
		FROM triggers WHERE trigger_group = $1 AND trigger_name = $2`, key.Group, key.Name)

	trig, err := scanTrigger(row)
	if err != nil {
		return nil, err
	}
	if err := g.loadVariant(ctx, t, trig); err != nil {
		return nil, err
	}
	return trig, nil
}

func (g *Gateway) DeleteTrigger(ctx context.Context, tx any, key domain.TriggerKey) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	tag, err := t.Exec(ctx, `DELETE FROM triggers WHERE trigger_group = $1 AND trigger_name = $2`, key.Group, key.Name)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTriggerNotFound
	}
	// Variant rows cascade via FK ON DELETE CASCADE in the reference schema.
	return nil
}

func (g *Gateway) TriggerExists(ctx context.Context, tx any, key domain.TriggerKey) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM triggers WHERE trigger_group = $1 AND trigger_name = $2)`,
		key.Group, key.Name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("trigger exists: %w", err)
	}
	return exists, nil
}

func (g *Gateway) SelectTriggersForJob(ctx context.Context, tx any, jobKey domain.JobKey) ([]*domain.Trigger, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `
		SELECT trigger_group, trigger_name, job_group, job_name, description,
		       calendar_name, priority, misfire_instr, is_volatile, trigger_state,
		       trigger_type, next_fire_time, prev_fire_time, start_time, end_time
		FROM triggers WHERE job_group = $1 AND job_name = $2`, jobKey.Group, jobKey.Name)
	if err != nil {
		return nil, fmt.Errorf("select triggers for job: %w", err)
	}
	defer rows.Close()

	var out []*domain.Trigger
	for rows.Next() {
		trig, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trig)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, trig := range out {
		if err := g.loadVariant(ctx, t, trig); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *Gateway) SelectTriggerGroupNames(ctx context.Context, tx any) ([]string, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `SELECT DISTINCT trigger_group FROM triggers ORDER BY trigger_group`)
	if err != nil {
		return nil, fmt.Errorf("select trigger group names: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (g *Gateway) SelectTriggerNamesInGroup(ctx context.Context, tx any, group string) ([]string, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `SELECT trigger_name FROM triggers WHERE trigger_group = $1 ORDER BY trigger_name`, group)
	if err != nil {
		return nil, fmt.Errorf("select trigger names in group: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (g *Gateway) CountTriggersForJob(ctx context.Context, tx any, jobKey domain.JobKey) (int, error) {
	t, err := asTx(tx)
	if err != nil {
		return 0, err
	}
	var n int
	err = t.QueryRow(ctx, `SELECT COUNT(*) FROM triggers WHERE job_group = $1 AND job_name = $2`,
		jobKey.Group, jobKey.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count triggers for job: %w", err)
	}
	return n, nil
}

// SelectNextTriggerToAcquire implements spec.md §4.4's acquire ordering:
// minimum next_fire_time among WAITING triggers due within the window,
// ties broken by descending priority then trigger key (§SPEC_FULL.md §5).
func (g *Gateway) SelectNextTriggerToAcquire(ctx context.Context, tx any, now, maxNextFireTime time.Time, excluding map[domain.TriggerKey]bool) (*domain.Trigger, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `
		SELECT trigger_group, trigger_name, job_group, job_name, description,
		       calendar_name, priority, misfire_instr, is_volatile, trigger_state,
		       trigger_type, next_fire_time, prev_fire_time, start_time, end_time
		FROM triggers
		WHERE trigger_state = 'WAITING' AND next_fire_time <= $1
		ORDER BY next_fire_time ASC, priority DESC, trigger_group ASC, trigger_name ASC
		LIMIT 50`, maxNextFireTime)
	if err != nil {
		return nil, fmt.Errorf("select next trigger to acquire: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		trig, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		if excluding[trig.Key] {
			continue
		}
		if err := g.loadVariant(ctx, t, trig); err != nil {
			return nil, err
		}
		return trig, nil
	}
	return nil, rows.Err()
}

func (g *Gateway) SelectMisfiredTriggers(ctx context.Context, tx any, before time.Time, limit int) ([]*domain.Trigger, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `
		SELECT trigger_group, trigger_name, job_group, job_name, description,
		       calendar_name, priority, misfire_instr, is_volatile, trigger_state,
		       trigger_type, next_fire_time, prev_fire_time, start_time, end_time
		FROM triggers
		WHERE trigger_state = 'WAITING' AND next_fire_time < $1
		ORDER BY next_fire_time ASC
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("select misfired triggers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Trigger
	for rows.Next() {
		trig, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trig)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, trig := range out {
		if err := g.loadVariant(ctx, t, trig); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *Gateway) SelectTriggerKeysByState(ctx context.Context, tx any, states ...domain.TriggerState) ([]domain.TriggerKey, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	strStates := make([]string, len(states))
	for i, s := range states {
		strStates[i] = string(s)
	}
	rows, err := t.Query(ctx, `SELECT trigger_group, trigger_name FROM triggers WHERE trigger_state = ANY($1)`, strStates)
	if err != nil {
		return nil, fmt.Errorf("select trigger keys by state: %w", err)
	}
	defer rows.Close()

	var out []domain.TriggerKey
	for rows.Next() {
		var k domain.TriggerKey
		if err := rows.Scan(&k.Group, &k.Name); err != nil {
			return nil, fmt.Errorf("scan trigger key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (g *Gateway) DeleteVolatileTriggers(ctx context.Context, tx any) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `DELETE FROM triggers WHERE is_volatile = true`)
	if err != nil {
		return fmt.Errorf("delete volatile triggers: %w", err)
	}
	return nil
}

func (g *Gateway) loadVariant(ctx context.Context, t pgx.Tx, trig *domain.Trigger) error {
	switch trig.Kind() {
	case domain.KindSimple:
		var s domain.SimpleTrigger
		var ms int64
		err := t.QueryRow(ctx, `SELECT repeat_interval_ms, repeat_count, times_triggered FROM simple_triggers
			WHERE trigger_group = $1 AND trigger_name = $2`, trig.Key.Group, trig.Key.Name).
			Scan(&ms, &s.RepeatCount, &s.TimesTriggered)
		if err != nil {
			return fmt.Errorf("load simple trigger: %w", err)
		}
		s.RepeatInterval = time.Duration(ms) * time.Millisecond
		trig.Simple = &s
	case domain.KindCron:
		var c domain.CronTrigger
		err := t.QueryRow(ctx, `SELECT cron_expression, time_zone FROM cron_triggers
			WHERE trigger_group = $1 AND trigger_name = $2`, trig.Key.Group, trig.Key.Name).
			Scan(&c.Expression, &c.TimeZone)
		if err != nil {
			return fmt.Errorf("load cron trigger: %w", err)
		}
		trig.Cron = &c
	case domain.KindBlob:
		var b domain.BlobTrigger
		err := t.QueryRow(ctx, `SELECT blob_data FROM blob_triggers
			WHERE trigger_group = $1 AND trigger_name = $2`, trig.Key.Group, trig.Key.Name).
			Scan(&b.Payload)
		if err != nil {
			return fmt.Errorf("load blob trigger: %w", err)
		}
		trig.Blob = &b
	}
	return nil
}

func scanTrigger(row rowScanner) (*domain.Trigger, error) {
	var trig domain.Trigger
	var calendarName *string
	var kind string
	var misfire int

	err := row.Scan(
		&trig.Key.Group, &trig.Key.Name, &trig.JobKey.Group, &trig.JobKey.Name, &trig.Description,
		&calendarName, &trig.Priority, &misfire, &trig.Volatile, (*string)(&trig.State),
		&kind, &trig.NextFireTime, &trig.PrevFireTime, &trig.StartTime, &trig.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTriggerNotFound
		}
		return nil, fmt.Errorf("scan trigger: %w", err)
	}
	trig.MisfireInstruction = domain.MisfireInstruction(misfire)
	if calendarName != nil {
		trig.CalendarName = *calendarName
	}
	// Pre-seed the tagged-variant pointer so Kind() reports correctly
	// before loadVariant populates the fields.
	switch domain.TriggerKind(kind) {
	case domain.KindCron:
		trig.Cron = &domain.CronTrigger{}
	case domain.KindBlob:
		trig.Blob = &domain.BlobTrigger{}
	default:
		trig.Simple = &domain.SimpleTrigger{}
	}
	return &trig, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
