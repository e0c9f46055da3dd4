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

func (g *Gateway) InsertJob(ctx context.Context, tx any, job *domain.Job) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(job.JobDataMap)
	if err != nil {
		return fmt.Errorf("marshal job data: %w", err)
	}
	_, err = t.Exec(ctx, `
		INSERT INTO job_details (
			job_group, job_name, job_class, description, is_durable,
			is_stateful, requests_recovery, is_volatile, job_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.Key.Group, job.Key.Name, job.Class, job.Description,
		job.Durable, job.Stateful, job.RequestsRecovery, job.Volatile, data,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrJobAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (g *Gateway) UpdateJob(ctx context.Context, tx any, job *domain.Job) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(job.JobDataMap)
	if err != nil {
		return fmt.Errorf("marshal job data: %w", err)
	}
	tag, err := t.Exec(ctx, `
		UPDATE job_details
		SET job_class = $3, description = $4, is_durable = $5,
		    is_stateful = $6, requests_recovery = $7, is_volatile = $8, job_data = $9
		WHERE job_group = $1 AND job_name = $2`,
		job.Key.Group, job.Key.Name, job.Class, job.Description,
		job.Durable, job.Stateful, job.RequestsRecovery, job.Volatile, data,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (g *Gateway) SelectJob(ctx context.Context, tx any, key domain.JobKey) (*domain.Job, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	row := t.QueryRow(ctx, `
		SELECT job_group, job_name, job_class, description, is_durable,
		       is_stateful, requests_recovery, is_volatile, job_data
		FROM job_details WHERE job_group = $1 AND job_name = $2`,
		key.Group, key.Name)
	return scanJob(row)
}

func (g *Gateway) DeleteJob(ctx context.Context, tx any, key domain.JobKey) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	tag, err := t.Exec(ctx, `DELETE FROM job_details WHERE job_group = $1 AND job_name = $2`, key.Group, key.Name)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (g *Gateway) JobExists(ctx context.Context, tx any, key domain.JobKey) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM job_details WHERE job_group = $1 AND job_name = $2)`,
		key.Group, key.Name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("job exists: %w", err)
	}
	return exists, nil
}

func (g *Gateway) SelectJobGroupNames(ctx context.Context, tx any) ([]string, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `SELECT DISTINCT job_group FROM job_details ORDER BY job_group`)
	if err != nil {
		return nil, fmt.Errorf("select job group names: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (g *Gateway) SelectJobNamesInGroup(ctx context.Context, tx any, group string) ([]string, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := t.Query(ctx, `SELECT job_name FROM job_details WHERE job_group = $1 ORDER BY job_name`, group)
	if err != nil {
		return nil, fmt.Errorf("select job names in group: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (g *Gateway) CountJobs(ctx context.Context, tx any) (int, error) {
	t, err := asTx(tx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := t.QueryRow(ctx, `SELECT COUNT(*) FROM job_details`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (g *Gateway) DeleteVolatileJobs(ctx context.Context, tx any) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	_, err = t.Exec(ctx, `DELETE FROM job_details WHERE is_volatile = true`)
	if err != nil {
		return fmt.Errorf("delete volatile jobs: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var data []byte
	err := row.Scan(
		&j.Key.Group, &j.Key.Name, &j.Class, &j.Description, &j.Durable,
		&j.Stateful, &j.RequestsRecovery, &j.Volatile, &data,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &j.JobDataMap); err != nil {
			return nil, fmt.Errorf("unmarshal job data: %w", err)
		}
	}
	return &j, nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
