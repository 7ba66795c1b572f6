package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pairpad-server/core"
)

const (
	keyPrefix     = "room:"
	maxIDAttempts = 5

	fieldCode      = "code_content"
	fieldLanguage  = "language"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// updateScript writes the code only when the room hash already exists.
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'code_content', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

type redisStore struct {
	rdb *goredis.Client
}

// NewStore connects to redis at addr and verifies the connection.
func NewStore(ctx context.Context, addr string, db int) (*redisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &redisStore{rdb: rdb}, nil
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}

func roomKey(id string) string {
	return keyPrefix + id
}

func (s *redisStore) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	log := logrus.WithField("room_id", id)

	fields, err := s.rdb.HGetAll(ctx, roomKey(id)).Result()
	if err != nil {
		log.WithError(err).Error("Failed to retrieve room")
		return nil, fmt.Errorf("hgetall %s: %w", roomKey(id), err)
	}
	if len(fields) == 0 {
		log.Debug("Room with specified ID not found")
		return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}

	return &core.Room{
		ID:          id,
		CodeContent: fields[fieldCode],
		Language:    fields[fieldLanguage],
		CreatedAt:   parseMillis(fields[fieldCreatedAt]),
		UpdatedAt:   parseMillis(fields[fieldUpdatedAt]),
	}, nil
}

func (s *redisStore) CreateRoom(ctx context.Context, language string) (*core.Room, error) {
	for i := 0; i < maxIDAttempts; i++ {
		room := core.NewRoom(language)
		key := roomKey(room.ID)

		// HSETNX on the language field claims the id atomically.
		claimed, err := s.rdb.HSetNX(ctx, key, fieldLanguage, room.Language).Result()
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", key, err)
		}
		if !claimed {
			continue
		}
		err = s.rdb.HSet(ctx, key,
			fieldCode, room.CodeContent,
			fieldCreatedAt, room.CreatedAt.UnixMilli(),
			fieldUpdatedAt, room.UpdatedAt.UnixMilli(),
		).Err()
		if err != nil {
			logrus.WithError(err).WithField("room_id", room.ID).Error("Failed to create room")
			return nil, fmt.Errorf("hset %s: %w", key, err)
		}

		logrus.WithFields(logrus.Fields{
			"room_id":  room.ID,
			"language": room.Language,
		}).Info("Room created successfully")
		return room, nil
	}
	return nil, fmt.Errorf("allocate room id: gave up after %d attempts", maxIDAttempts)
}

func (s *redisStore) UpdateRoomCode(ctx context.Context, id, code string) error {
	n, err := updateScript.Run(ctx, s.rdb, []string{roomKey(id)}, code, time.Now().UnixMilli()).Int()
	if err != nil {
		logrus.WithError(err).WithField("room_id", id).Error("Failed to update room")
		return fmt.Errorf("update %s: %w", roomKey(id), err)
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}
	return nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
