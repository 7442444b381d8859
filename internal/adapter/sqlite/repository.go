package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/hostedraids/muster/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// EventStore implements domain.EventStore using SQLite. Signup timestamps
// are stored at nanosecond precision; rowid breaks ordering ties between
// signups created in the same instant.
type EventStore struct {
	db *sql.DB
}

// Compile-time check: EventStore implements domain.EventStore.
var _ domain.EventStore = (*EventStore)(nil)

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*EventStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY when the DB is shared with
	// the embedded job queue.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite); signup rows cascade
	// when their event row is deleted.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready store. Use this when the *sql.DB has been pre-configured
// (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*EventStore, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &EventStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (e.g., river and the display surface mirror).
func (s *EventStore) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const eventColumns = `id, guild_id, host_id, host_name, title, start_time,
	dps_limit, support_limit, retirement_state, confirm_deadline,
	calendar_ref, created_at, updated_at`

func (s *EventStore) CreateEvent(ctx context.Context, e domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GuildID, e.HostID, e.HostName, e.Title, e.StartTime.Unix(),
		nullableInt(e.Limits.DPS), nullableInt(e.Limits.Support),
		string(e.Retirement), nullableUnix(e.ConfirmDeadline),
		e.CalendarRef, e.CreatedAt.Unix(), e.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func (s *EventStore) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return s.scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id,
	))
}

func (s *EventStore) UpdateEvent(ctx context.Context, e domain.Event) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE events
		 SET guild_id = ?, host_id = ?, host_name = ?, title = ?,
		     start_time = ?, dps_limit = ?, support_limit = ?,
		     retirement_state = ?, confirm_deadline = ?, calendar_ref = ?,
		     updated_at = ?
		 WHERE id = ?`,
		e.GuildID, e.HostID, e.HostName, e.Title, e.StartTime.Unix(),
		nullableInt(e.Limits.DPS), nullableInt(e.Limits.Support),
		string(e.Retirement), nullableUnix(e.ConfirmDeadline),
		e.CalendarRef, time.Now().UTC().Unix(), e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrEventNotFound
	}

	return nil
}

func (s *EventStore) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	return nil
}

func (s *EventStore) ListEvents(ctx context.Context, filter domain.ListFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var conds []string
	var args []any

	if filter.GuildID != "" {
		conds = append(conds, `guild_id = ?`)
		args = append(args, filter.GuildID)
	}
	if filter.Retirement != nil {
		conds = append(conds, `retirement_state = ?`)
		args = append(args, string(*filter.Retirement))
	}
	for i, cond := range conds {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY start_time ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (s *EventStore) InsertSignup(ctx context.Context, signup domain.Signup) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signups (event_id, player_id, player_name, role, signed_up_at)
		 VALUES (?, ?, ?, ?, ?)`,
		signup.EventID, signup.PlayerID, signup.PlayerName,
		string(signup.Role), signup.SignedUpAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting signup: %w", err)
	}
	return nil
}

func (s *EventStore) ListSignups(ctx context.Context, eventID string, role *domain.RoleKind) ([]domain.Signup, error) {
	query := `SELECT event_id, player_id, player_name, role, signed_up_at
	          FROM signups WHERE event_id = ?`
	args := []any{eventID}

	if role != nil {
		query += ` AND role = ?`
		args = append(args, string(*role))
	}
	query += ` ORDER BY signed_up_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing signups: %w", err)
	}
	defer rows.Close()

	return collectSignups(rows)
}

func (s *EventStore) DeleteSignups(ctx context.Context, eventID, playerID string, role *domain.RoleKind) (int64, error) {
	query := `DELETE FROM signups WHERE event_id = ? AND player_id = ?`
	args := []any{eventID, playerID}

	if role != nil {
		query += ` AND role = ?`
		args = append(args, string(*role))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting signups: %w", err)
	}
	return result.RowsAffected()
}

// DeleteMostRecentSignups selects and removes the n newest signups for a
// role inside one transaction, so a concurrent caller can never observe the
// selection without the deletion.
func (s *EventStore) DeleteMostRecentSignups(ctx context.Context, eventID string, role domain.RoleKind, n int) ([]domain.Signup, error) {
	if n <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting eviction transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT rowid, event_id, player_id, player_name, role, signed_up_at
		 FROM signups
		 WHERE event_id = ? AND role = ?
		 ORDER BY signed_up_at DESC, rowid DESC
		 LIMIT ?`,
		eventID, string(role), n,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting eviction set: %w", err)
	}

	var rowIDs []int64
	var victims []domain.Signup
	for rows.Next() {
		var rowID int64
		var signup domain.Signup
		var roleStr string
		var signedUpAt int64
		if err := rows.Scan(&rowID, &signup.EventID, &signup.PlayerID, &signup.PlayerName, &roleStr, &signedUpAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning eviction row: %w", err)
		}
		signup.Role = domain.RoleKind(roleStr)
		signup.SignedUpAt = time.Unix(0, signedUpAt).UTC()
		rowIDs = append(rowIDs, rowID)
		victims = append(victims, signup)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("reading eviction set: %w", err)
	}
	rows.Close()

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM signups WHERE rowid = ?`, rowID); err != nil {
			return nil, fmt.Errorf("deleting evicted signup: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing eviction: %w", err)
	}

	return victims, nil
}

func (s *EventStore) DistinctSignupPlayers(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT player_id FROM signups WHERE event_id = ? ORDER BY rowid ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing distinct players: %w", err)
	}
	defer rows.Close()

	var players []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning player id: %w", err)
		}
		players = append(players, id)
	}
	return players, rows.Err()
}

func (s *EventStore) ListPlayerEvents(ctx context.Context, guildID, playerID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT e.id, e.guild_id, e.host_id, e.host_name, e.title,
		        e.start_time, e.dps_limit, e.support_limit,
		        e.retirement_state, e.confirm_deadline, e.calendar_ref,
		        e.created_at, e.updated_at
		 FROM events e
		 JOIN signups s ON s.event_id = e.id
		 WHERE s.player_id = ? AND e.guild_id = ?
		 ORDER BY e.start_time ASC`,
		playerID, guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing player events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// scanEvent scans a single row from QueryRow into a domain.Event.
func (s *EventStore) scanEvent(row *sql.Row) (domain.Event, error) {
	var e domain.Event
	var retirement string
	var startTime, createdAt, updatedAt int64
	var dpsLimit, supportLimit, confirmDeadline sql.NullInt64

	err := row.Scan(&e.ID, &e.GuildID, &e.HostID, &e.HostName, &e.Title,
		&startTime, &dpsLimit, &supportLimit, &retirement, &confirmDeadline,
		&e.CalendarRef, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("scanning event: %w", err)
	}

	fillEvent(&e, retirement, startTime, createdAt, updatedAt, dpsLimit, supportLimit, confirmDeadline)
	return e, nil
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var retirement string
		var startTime, createdAt, updatedAt int64
		var dpsLimit, supportLimit, confirmDeadline sql.NullInt64

		err := rows.Scan(&e.ID, &e.GuildID, &e.HostID, &e.HostName, &e.Title,
			&startTime, &dpsLimit, &supportLimit, &retirement, &confirmDeadline,
			&e.CalendarRef, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		fillEvent(&e, retirement, startTime, createdAt, updatedAt, dpsLimit, supportLimit, confirmDeadline)
		events = append(events, e)
	}
	return events, rows.Err()
}

func collectSignups(rows *sql.Rows) ([]domain.Signup, error) {
	var signups []domain.Signup
	for rows.Next() {
		var s domain.Signup
		var role string
		var signedUpAt int64
		if err := rows.Scan(&s.EventID, &s.PlayerID, &s.PlayerName, &role, &signedUpAt); err != nil {
			return nil, fmt.Errorf("scanning signup row: %w", err)
		}
		s.Role = domain.RoleKind(role)
		s.SignedUpAt = time.Unix(0, signedUpAt).UTC()
		signups = append(signups, s)
	}
	return signups, rows.Err()
}

func fillEvent(e *domain.Event, retirement string, startTime, createdAt, updatedAt int64, dpsLimit, supportLimit, confirmDeadline sql.NullInt64) {
	e.Retirement = domain.RetirementState(retirement)
	e.StartTime = time.Unix(startTime, 0).UTC()
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if dpsLimit.Valid {
		v := int(dpsLimit.Int64)
		e.Limits.DPS = &v
	}
	if supportLimit.Valid {
		v := int(supportLimit.Int64)
		e.Limits.Support = &v
	}
	if confirmDeadline.Valid {
		t := time.Unix(confirmDeadline.Int64, 0).UTC()
		e.ConfirmDeadline = &t
	}
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
