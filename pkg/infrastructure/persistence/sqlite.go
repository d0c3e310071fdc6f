package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/incident"
	"github.com/argusops/argus/pkg/domain/rules"
)

// DB wraps the SQLite handle shared by the repositories.
// Aggregates are persisted as JSON documents with a few extracted columns
// for indexed narrowing; query semantics stay identical to the in-memory
// implementation.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Aggregate commands are serialized; one writer connection avoids
	// SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS activities (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			status      TEXT NOT NULL,
			priority    TEXT NOT NULL,
			building    TEXT,
			zone        TEXT,
			assigned_to TEXT,
			archived    INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			data        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_status ON activities(status, archived)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id                  TEXT PRIMARY KEY,
			status              TEXT NOT NULL,
			trigger_activity_id TEXT NOT NULL,
			is_pending          INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT NOT NULL,
			data                TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_pending ON incidents(is_pending, status)`,
		`CREATE TABLE IF NOT EXISTS creation_rules (
			id      TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1,
			data    TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Activity repository (SQLite)
// ---------------------------------------------------------------------------

// SQLiteActivityRepository is the SQLite-backed implementation of
// activity.Repository.
type SQLiteActivityRepository struct {
	db *DB
}

// NewSQLiteActivityRepository creates the activity repository.
func NewSQLiteActivityRepository(db *DB) *SQLiteActivityRepository {
	return &SQLiteActivityRepository{db: db}
}

func (r *SQLiteActivityRepository) FindByID(id domain.EntityID) (*activity.Activity, error) {
	row := r.db.conn.QueryRow(`SELECT id, data FROM activities WHERE id = ?`, string(id))
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, activity.ErrNotFound
	}
	return a, err
}

func (r *SQLiteActivityRepository) FindByIDs(ids []domain.EntityID) ([]*activity.Activity, error) {
	var result []*activity.Activity
	for _, id := range ids {
		a, err := r.FindByID(id)
		if err == nil {
			result = append(result, a)
		} else if err != activity.ErrNotFound {
			return nil, err
		}
	}
	return result, nil
}

func (r *SQLiteActivityRepository) Search(q activity.Query) ([]*activity.Activity, int, error) {
	all, err := r.loadAll(q.IncludeArchived)
	if err != nil {
		return nil, 0, err
	}
	return searchActivities(all, q), totalActivities(all, q), nil
}

func (r *SQLiteActivityRepository) Save(a *activity.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	_, err = r.db.conn.Exec(`
		INSERT INTO activities (id, type, status, priority, building, zone, assigned_to, archived, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			assigned_to = excluded.assigned_to,
			archived = excluded.archived,
			data = excluded.data`,
		string(a.ID()), string(a.Type), string(a.Status), string(a.Priority),
		a.Location.Building, a.Location.Zone, a.AssignedTo,
		boolInt(a.Archived), a.CreatedAt.Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("save activity %s: %w", a.ID(), err)
	}
	return nil
}

func (r *SQLiteActivityRepository) GetStats(q activity.Query) (*activity.Stats, error) {
	all, err := r.loadAll(q.IncludeArchived)
	if err != nil {
		return nil, err
	}
	return computeStats(filterActivities(all, q)), nil
}

func (r *SQLiteActivityRepository) FindRequiringAttention() ([]*activity.Activity, error) {
	all, err := r.loadAll(false)
	if err != nil {
		return nil, err
	}
	return requiringAttention(all), nil
}

func (r *SQLiteActivityRepository) FindOverdue(now time.Time) ([]*activity.Activity, error) {
	all, err := r.loadAll(false)
	if err != nil {
		return nil, err
	}
	return overdueActivities(all, now), nil
}

func (r *SQLiteActivityRepository) FindRetentionExpired(now time.Time) ([]*activity.Activity, error) {
	all, err := r.loadAll(false)
	if err != nil {
		return nil, err
	}
	return retentionExpiredActivities(all, now), nil
}

func (r *SQLiteActivityRepository) FindRelated(id domain.EntityID, window time.Duration) ([]*activity.Activity, error) {
	ref, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}
	all, err := r.loadAll(false)
	if err != nil {
		return nil, err
	}
	return relatedActivities(all, ref, window), nil
}

func (r *SQLiteActivityRepository) loadAll(includeArchived bool) ([]*activity.Activity, error) {
	query := `SELECT id, data FROM activities`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	rows, err := r.db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var result []*activity.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row rowScanner) (*activity.Activity, error) {
	var id, data string
	if err := row.Scan(&id, &data); err != nil {
		return nil, err
	}
	var a activity.Activity
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("unmarshal activity %s: %w", id, err)
	}
	a.SetID(domain.EntityID(id))
	return &a, nil
}

// Compile-time verification
var _ activity.Repository = (*SQLiteActivityRepository)(nil)

// ---------------------------------------------------------------------------
// Incident repository (SQLite)
// ---------------------------------------------------------------------------

// SQLiteIncidentRepository is the SQLite-backed implementation of
// incident.Repository.
type SQLiteIncidentRepository struct {
	db *DB
}

// NewSQLiteIncidentRepository creates the incident repository.
func NewSQLiteIncidentRepository(db *DB) *SQLiteIncidentRepository {
	return &SQLiteIncidentRepository{db: db}
}

func (r *SQLiteIncidentRepository) FindByID(id domain.EntityID) (*incident.Incident, error) {
	row := r.db.conn.QueryRow(`SELECT id, data FROM incidents WHERE id = ?`, string(id))
	i, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, incident.ErrNotFound
	}
	return i, err
}

func (r *SQLiteIncidentRepository) Search(q incident.Query) ([]*incident.Incident, int, error) {
	all, err := r.FindAll()
	if err != nil {
		return nil, 0, err
	}
	matched := filterIncidents(all, q)
	return pageIncidents(matched, q.Limit, q.Offset), len(matched), nil
}

func (r *SQLiteIncidentRepository) FindPendingValidation() ([]*incident.Incident, error) {
	rows, err := r.db.conn.Query(`SELECT id, data FROM incidents WHERE is_pending = 1 AND status = ?`, string(incident.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending incidents: %w", err)
	}
	defer rows.Close()
	return collectIncidents(rows)
}

func (r *SQLiteIncidentRepository) FindByTriggerActivity(activityID domain.EntityID) ([]*incident.Incident, error) {
	rows, err := r.db.conn.Query(`SELECT id, data FROM incidents WHERE trigger_activity_id = ?`, string(activityID))
	if err != nil {
		return nil, fmt.Errorf("query incidents by trigger: %w", err)
	}
	defer rows.Close()
	return collectIncidents(rows)
}

func (r *SQLiteIncidentRepository) Save(i *incident.Incident) error {
	data, err := json.Marshal(i)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	_, err = r.db.conn.Exec(`
		INSERT INTO incidents (id, status, trigger_activity_id, is_pending, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			is_pending = excluded.is_pending,
			data = excluded.data`,
		string(i.ID()), string(i.Status), i.TriggerActivityID,
		boolInt(i.IsPending), i.CreatedAt.Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("save incident %s: %w", i.ID(), err)
	}
	return nil
}

func (r *SQLiteIncidentRepository) FindAll() ([]*incident.Incident, error) {
	rows, err := r.db.conn.Query(`SELECT id, data FROM incidents`)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()
	return collectIncidents(rows)
}

func collectIncidents(rows *sql.Rows) ([]*incident.Incident, error) {
	var result []*incident.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, i)
	}
	return result, rows.Err()
}

func scanIncident(row rowScanner) (*incident.Incident, error) {
	var id, data string
	if err := row.Scan(&id, &data); err != nil {
		return nil, err
	}
	var i incident.Incident
	if err := json.Unmarshal([]byte(data), &i); err != nil {
		return nil, fmt.Errorf("unmarshal incident %s: %w", id, err)
	}
	i.SetID(domain.EntityID(id))
	return &i, nil
}

// Compile-time verification
var _ incident.Repository = (*SQLiteIncidentRepository)(nil)

// ---------------------------------------------------------------------------
// Rule repository (SQLite)
// ---------------------------------------------------------------------------

// SQLiteRuleRepository is the SQLite-backed implementation of
// rules.Repository.
type SQLiteRuleRepository struct {
	db *DB
}

// NewSQLiteRuleRepository creates the rule repository.
func NewSQLiteRuleRepository(db *DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

func (r *SQLiteRuleRepository) FindByID(id domain.EntityID) (*rules.CreationRule, error) {
	var data string
	err := r.db.conn.QueryRow(`SELECT data FROM creation_rules WHERE id = ?`, string(id)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, rules.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalRule(data)
}

func (r *SQLiteRuleRepository) FindEnabled() ([]*rules.CreationRule, error) {
	return r.load(`SELECT data FROM creation_rules WHERE enabled = 1`)
}

func (r *SQLiteRuleRepository) FindAll() ([]*rules.CreationRule, error) {
	return r.load(`SELECT data FROM creation_rules`)
}

func (r *SQLiteRuleRepository) Save(rule *rules.CreationRule) error {
	if rule.ID.IsZero() {
		rule.ID = domain.NewID()
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}
	_, err = r.db.conn.Exec(`
		INSERT INTO creation_rules (id, enabled, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET enabled = excluded.enabled, data = excluded.data`,
		string(rule.ID), boolInt(rule.Enabled), string(data))
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	return nil
}

func (r *SQLiteRuleRepository) Delete(id domain.EntityID) error {
	res, err := r.db.conn.Exec(`DELETE FROM creation_rules WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return rules.ErrRuleNotFound
	}
	return nil
}

func (r *SQLiteRuleRepository) load(query string) ([]*rules.CreationRule, error) {
	rows, err := r.db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var result []*rules.CreationRule
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rule, err := unmarshalRule(data)
		if err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func unmarshalRule(data string) (*rules.CreationRule, error) {
	var rule rules.CreationRule
	if err := json.Unmarshal([]byte(data), &rule); err != nil {
		return nil, fmt.Errorf("unmarshal rule: %w", err)
	}
	return &rule, nil
}

// Compile-time verification
var _ rules.Repository = (*SQLiteRuleRepository)(nil)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
