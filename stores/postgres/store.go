package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"pairpad-server/core"
)

const maxIDAttempts = 5

// roomRecord is the rooms table row.
type roomRecord struct {
	ID          string `gorm:"primaryKey;size:16"`
	CodeContent string `gorm:"type:text;not null;default:''"`
	Language    string `gorm:"size:32;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (roomRecord) TableName() string { return "rooms" }

type gormStore struct {
	db *gorm.DB
}

// NewStore connects to PostgreSQL and migrates the rooms table.
func NewStore(dsn string) (*gormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return New(db)
}

// New wraps an open gorm handle, migrating the rooms table on it.
func New(db *gorm.DB) (*gormStore, error) {
	if err := db.AutoMigrate(&roomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate rooms table: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	log := logrus.WithField("room_id", id)

	var rec roomRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Debug("Room with specified ID not found")
			return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
		}
		log.WithError(err).Error("Failed to retrieve room")
		return nil, err
	}
	return rec.room(), nil
}

func (s *gormStore) CreateRoom(ctx context.Context, language string) (*core.Room, error) {
	for i := 0; i < maxIDAttempts; i++ {
		room := core.NewRoom(language)
		rec := roomRecord{
			ID:          room.ID,
			CodeContent: room.CodeContent,
			Language:    room.Language,
			CreatedAt:   room.CreatedAt,
			UpdatedAt:   room.UpdatedAt,
		}

		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			logrus.WithError(res.Error).WithField("room_id", room.ID).Error("Failed to create room")
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		logrus.WithFields(logrus.Fields{
			"room_id":  room.ID,
			"language": room.Language,
		}).Info("Room created successfully")
		return room, nil
	}
	return nil, fmt.Errorf("allocate room id: gave up after %d attempts", maxIDAttempts)
}

func (s *gormStore) UpdateRoomCode(ctx context.Context, id, code string) error {
	res := s.db.WithContext(ctx).
		Model(&roomRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"code_content": code,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		logrus.WithError(res.Error).WithField("room_id", id).Error("Failed to update room")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}
	return nil
}

func (r *roomRecord) room() *core.Room {
	return &core.Room{
		ID:          r.ID,
		CodeContent: r.CodeContent,
		Language:    r.Language,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
