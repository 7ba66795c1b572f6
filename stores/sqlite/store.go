package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"pairpad-server/core"
)

const maxIDAttempts = 5

type sqliteStore struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at dataSourceName.
func NewStore(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	roomsTable := `CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		code_content TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(roomsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	return &sqliteStore{db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	log := logrus.WithField("room_id", id)
	log.Debug("Retrieving room by ID")

	var (
		room               core.Room
		createdAt, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code_content, language, created_at, updated_at FROM rooms WHERE id = ?", id,
	).Scan(&room.ID, &room.CodeContent, &room.Language, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("Room with specified ID not found")
			return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
		}
		log.WithError(err).Error("Failed to retrieve room")
		return nil, err
	}
	room.CreatedAt = time.UnixMilli(createdAt).UTC()
	room.UpdatedAt = time.UnixMilli(updated).UTC()

	log.Debug("Room retrieved successfully")
	return &room, nil
}

func (s *sqliteStore) CreateRoom(ctx context.Context, language string) (*core.Room, error) {
	for i := 0; i < maxIDAttempts; i++ {
		room := core.NewRoom(language)
		log := logrus.WithFields(logrus.Fields{
			"room_id":  room.ID,
			"language": room.Language,
		})

		res, err := s.db.ExecContext(ctx,
			`INSERT INTO rooms (id, code_content, language, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			room.ID, room.CodeContent, room.Language,
			room.CreatedAt.UnixMilli(), room.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			log.WithError(err).Error("Failed to create room")
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			log.Debug("Room id collision, retrying")
			continue
		}
		log.Info("Room created successfully")
		return room, nil
	}
	return nil, fmt.Errorf("allocate room id: gave up after %d attempts", maxIDAttempts)
}

func (s *sqliteStore) UpdateRoomCode(ctx context.Context, id, code string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE rooms SET code_content = ?, updated_at = ? WHERE id = ?",
		code, time.Now().UnixMilli(), id,
	)
	if err != nil {
		logrus.WithError(err).WithField("room_id", id).Error("Failed to update room")
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}
	return nil
}
