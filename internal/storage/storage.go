// Package storage persists locations, conversations and messages in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	country TEXT NOT NULL DEFAULT '',
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	usage_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE (latitude, longitude)
);

CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL UNIQUE,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	location_id INTEGER REFERENCES locations(id),
	content TEXT NOT NULL,
	is_user INTEGER NOT NULL DEFAULT 0,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// Store wraps the SQLite database. The production flag suppresses
// usage-count writes so the service can run against a read-only database.
type Store struct {
	db         *sql.DB
	production bool
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, production bool) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// modernc's driver dislikes concurrent writers on a single file;
	// serialize through one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{db: db, production: production}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

const locationColumns = "id, name, country, latitude, longitude, timezone, usage_count"

func scanLocation(row interface{ Scan(...any) error }) (*model.Location, error) {
	loc := &model.Location{}
	err := row.Scan(&loc.ID, &loc.Name, &loc.Country, &loc.Latitude, &loc.Longitude, &loc.Timezone, &loc.UsageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// FindLocationByID looks up one location by primary key.
func (s *Store) FindLocationByID(ctx context.Context, id int64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+locationColumns+" FROM locations WHERE id = ?", id)
	return scanLocation(row)
}

// FindOrCreateLocation resolves a location record, creating it on first use.
// Coordinates are rounded to 4 decimals and checked before the (name, country)
// pair, since coordinates are the stronger identity signal. The insert is an
// atomic upsert on the coordinate unique constraint, so concurrent first-time
// resolutions of the same place cannot produce duplicate rows.
func (s *Store) FindOrCreateLocation(ctx context.Context, name, country string, lat, lon float64, timezone string) (*model.Location, error) {
	lat = round4(lat)
	lon = round4(lon)
	if timezone == "" {
		timezone = "UTC"
	}

	loc, err := scanLocation(s.db.QueryRowContext(ctx,
		"SELECT "+locationColumns+" FROM locations WHERE latitude = ? AND longitude = ?", lat, lon))
	if err == nil {
		return loc, s.incrementUsage(ctx, loc)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	loc, err = scanLocation(s.db.QueryRowContext(ctx,
		"SELECT "+locationColumns+" FROM locations WHERE name = ? AND country = ?", name, country))
	if err == nil {
		return loc, s.incrementUsage(ctx, loc)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return s.insertLocation(ctx, name, country, lat, lon, timezone)
}

// insertLocation creates the row, or on a concurrent-insert conflict falls
// back to counting the usage like incrementUsage would. The conflict action
// must still return the row, so production uses a no-op update instead of
// DO NOTHING.
func (s *Store) insertLocation(ctx context.Context, name, country string, lat, lon float64, timezone string) (*model.Location, error) {
	conflict := "DO UPDATE SET usage_count = usage_count + 1"
	if s.production {
		conflict = "DO UPDATE SET usage_count = usage_count"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO locations (name, country, latitude, longitude, timezone, usage_count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (latitude, longitude) `+conflict+`
		RETURNING `+locationColumns,
		name, country, lat, lon, timezone)
	return scanLocation(row)
}

func (s *Store) incrementUsage(ctx context.Context, loc *model.Location) error {
	if s.production {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE locations SET usage_count = usage_count + 1 WHERE id = ?", loc.ID)
	if err != nil {
		return err
	}
	loc.UsageCount++
	return nil
}

// FirstOrCreateConversation returns the conversation for a session id,
// creating it when absent.
func (s *Store) FirstOrCreateConversation(ctx context.Context, sessionID, ip, userAgent string) (*model.Conversation, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (session_id, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID, ip, userAgent, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.FindConversationBySession(ctx, sessionID)
}

// FindConversationBySession looks up a conversation by its session id.
func (s *Store) FindConversationBySession(ctx context.Context, sessionID string) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, ip_address, user_agent, created_at
		FROM conversations WHERE session_id = ?`, sessionID).
		Scan(&conv.ID, &conv.SessionID, &conv.IPAddress, &conv.UserAgent, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendMessage stores a message and fills in its generated id.
func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	var metadata any
	if msg.Metadata != nil {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("storage: encode metadata: %w", err)
		}
		metadata = string(b)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, location_id, content, is_user, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		msg.ConversationID, msg.LocationID, msg.Content, msg.IsUser, metadata, msg.CreatedAt)
	return row.Scan(&msg.ID)
}

// LatestLocation returns the location attached to the most recent message of
// the conversation, or ErrNotFound when no message carries one.
func (s *Store) LatestLocation(ctx context.Context, conversationID int64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT l.id, l.name, l.country, l.latitude, l.longitude, l.timezone, l.usage_count
		FROM messages m
		JOIN locations l ON l.id = m.location_id
		WHERE m.conversation_id = ? AND m.location_id IS NOT NULL
		ORDER BY m.id DESC
		LIMIT 1`, conversationID)
	return scanLocation(row)
}

// Messages returns the conversation history in chronological order, with
// location summaries attached where present.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.location_id, m.content, m.is_user, m.metadata, m.created_at,
		       l.id, l.name, l.country, l.latitude, l.longitude, l.timezone, l.usage_count
		FROM messages m
		LEFT JOIN locations l ON l.id = m.location_id
		WHERE m.conversation_id = ?
		ORDER BY m.id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var (
			msg      model.Message
			metadata sql.NullString
			locID    sql.NullInt64
			name     sql.NullString
			country  sql.NullString
			lat, lon sql.NullFloat64
			tz       sql.NullString
			usage    sql.NullInt64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.LocationID, &msg.Content, &msg.IsUser, &metadata, &msg.CreatedAt,
			&locID, &name, &country, &lat, &lon, &tz, &usage); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("storage: decode metadata: %w", err)
			}
		}
		if locID.Valid {
			msg.Location = &model.Location{
				ID:         locID.Int64,
				Name:       name.String,
				Country:    country.String,
				Latitude:   lat.Float64,
				Longitude:  lon.Float64,
				Timezone:   tz.String,
				UsageCount: usage.Int64,
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
