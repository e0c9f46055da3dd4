package domain

import "time"

// TriggerKey uniquely identifies a Trigger by (group, name) — spec.md §3.
type TriggerKey struct {
	Group string
	Name  string
}

func (k TriggerKey) String() string { return k.Group + "." + k.Name }

// RepeatIndefinitely marks a SimpleTrigger that never stops repeating.
const RepeatIndefinitely = -1

// TriggerKind tags which variant-specific payload a Trigger carries
// (spec.md §9 "Dynamic dispatch over trigger payloads").
type TriggerKind string

const (
	KindSimple TriggerKind = "SIMPLE"
	KindCron   TriggerKind = "CRON"
	KindBlob   TriggerKind = "BLOB"
)

// SimpleTrigger repeats at a fixed interval a fixed (or infinite) number
// of times.
type SimpleTrigger struct {
	RepeatInterval time.Duration
	RepeatCount    int // RepeatIndefinitely for unbounded
	TimesTriggered int
}

// CronTrigger fires on a cron schedule evaluated in a named time zone.
type CronTrigger struct {
	Expression string
	TimeZone   string // IANA zone name; "" means UTC
}

// BlobTrigger carries an opaque, caller-defined schedule the store never
// interprets — it exists purely so BLOB_TRIGGERS round-trips bytes.
type BlobTrigger struct {
	Payload []byte
}

// Trigger is a fireable schedule bound to exactly one Job.
type Trigger struct {
	Key   TriggerKey
	JobKey JobKey

	Description  string
	CalendarName string // "" if the trigger uses no calendar

	Priority           int
	MisfireInstruction MisfireInstruction
	Volatile           bool

	State TriggerState

	NextFireTime *time.Time
	PrevFireTime *time.Time
	StartTime    time.Time
	EndTime      *time.Time

	Simple *SimpleTrigger
	Cron   *CronTrigger
	Blob   *BlobTrigger
}

// Kind reports which variant-specific payload is populated.
func (t *Trigger) Kind() TriggerKind {
	switch {
	case t.Cron != nil:
		return KindCron
	case t.Blob != nil:
		return KindBlob
	default:
		return KindSimple
	}
}

func (t *Trigger) Clone() *Trigger {
	if t == nil {
		return nil
	}
	cp := *t
	if t.NextFireTime != nil {
		v := *t.NextFireTime
		cp.NextFireTime = &v
	}
	if t.PrevFireTime != nil {
		v := *t.PrevFireTime
		cp.PrevFireTime = &v
	}
	if t.EndTime != nil {
		v := *t.EndTime
		cp.EndTime = &v
	}
	if t.Simple != nil {
		v := *t.Simple
		cp.Simple = &v
	}
	if t.Cron != nil {
		v := *t.Cron
		cp.Cron = &v
	}
	if t.Blob != nil {
		v := *t.Blob
		cp.Blob = &v
		cp.Blob.Payload = append([]byte(nil), t.Blob.Payload...)
	}
	return &cp
}
