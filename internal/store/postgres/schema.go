package postgres

// ReferenceSchema is illustrative DDL for the table layout internal/store/postgres
// queries against. It is never executed by this package — spec.md §1 excludes
// "Defining the SQL schema dialects" from scope, so provisioning a database is
// left to whatever migration tool a deployment already uses. It exists here as
// the single source of truth for column names the rest of the package assumes.
const ReferenceSchema = `
CREATE TABLE job_details (
	job_group         text NOT NULL,
	job_name          text NOT NULL,
	job_class         text NOT NULL,
	description       text NOT NULL DEFAULT '',
	is_durable        boolean NOT NULL DEFAULT false,
	is_stateful       boolean NOT NULL DEFAULT false,
	requests_recovery boolean NOT NULL DEFAULT false,
	is_volatile       boolean NOT NULL DEFAULT false,
	job_data          jsonb NOT NULL DEFAULT '{}',
	PRIMARY KEY (job_group, job_name)
);

CREATE TABLE calendars (
	calendar_name   text PRIMARY KEY,
	description     text NOT NULL DEFAULT '',
	excluded_ranges jsonb NOT NULL DEFAULT '[]'
);

CREATE TABLE triggers (
	trigger_group   text NOT NULL,
	trigger_name    text NOT NULL,
	job_group       text NOT NULL,
	job_name        text NOT NULL,
	description     text NOT NULL DEFAULT '',
	calendar_name   text REFERENCES calendars (calendar_name),
	priority        integer NOT NULL DEFAULT 5,
	misfire_instr   integer NOT NULL DEFAULT 0,
	is_volatile     boolean NOT NULL DEFAULT false,
	trigger_state   text NOT NULL,
	trigger_type    text NOT NULL,
	next_fire_time  timestamptz,
	prev_fire_time  timestamptz,
	start_time      timestamptz NOT NULL,
	end_time        timestamptz,
	PRIMARY KEY (trigger_group, trigger_name),
	FOREIGN KEY (job_group, job_name) REFERENCES job_details (job_group, job_name)
);

CREATE INDEX triggers_acquire_idx ON triggers (trigger_state, next_fire_time);

CREATE TABLE simple_triggers (
	trigger_group       text NOT NULL,
	trigger_name        text NOT NULL,
	repeat_interval_ms  bigint NOT NULL,
	repeat_count        integer NOT NULL,
	times_triggered     integer NOT NULL DEFAULT 0,
	PRIMARY KEY (trigger_group, trigger_name),
	FOREIGN KEY (trigger_group, trigger_name) REFERENCES triggers (trigger_group, trigger_name) ON DELETE CASCADE
);

CREATE TABLE cron_triggers (
	trigger_group   text NOT NULL,
	trigger_name    text NOT NULL,
	cron_expression text NOT NULL,
	time_zone       text NOT NULL DEFAULT '',
	PRIMARY KEY (trigger_group, trigger_name),
	FOREIGN KEY (trigger_group, trigger_name) REFERENCES triggers (trigger_group, trigger_name) ON DELETE CASCADE
);

CREATE TABLE blob_triggers (
	trigger_group text NOT NULL,
	trigger_name  text NOT NULL,
	blob_data     bytea NOT NULL,
	PRIMARY KEY (trigger_group, trigger_name),
	FOREIGN KEY (trigger_group, trigger_name) REFERENCES triggers (trigger_group, trigger_name) ON DELETE CASCADE
);

CREATE TABLE paused_trigger_grps (
	trigger_group text PRIMARY KEY
);

CREATE TABLE fired_triggers (
	entry_id          text PRIMARY KEY,
	instance_id       text NOT NULL,
	trigger_group     text NOT NULL,
	trigger_name      text NOT NULL,
	job_group         text NOT NULL,
	job_name          text NOT NULL,
	state             text NOT NULL,
	is_stateful       boolean NOT NULL DEFAULT false,
	requests_recovery boolean NOT NULL DEFAULT false,
	fire_time         timestamptz NOT NULL,
	priority          integer NOT NULL DEFAULT 5
);

CREATE INDEX fired_triggers_instance_idx ON fired_triggers (instance_id);

CREATE TABLE scheduler_state (
	instance_id          text PRIMARY KEY,
	last_checkin_time    timestamptz NOT NULL,
	checkin_interval_ms  bigint NOT NULL
);

CREATE TABLE locks (
	lock_name text PRIMARY KEY
);

INSERT INTO locks (lock_name) VALUES ('TRIGGER_ACCESS'), ('STATE_ACCESS'), ('CALENDAR_ACCESS');
`
