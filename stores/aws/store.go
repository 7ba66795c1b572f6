package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"pairpad-server/core"
)

const (
	keyPrefix     = "rooms"
	maxIDAttempts = 5
)

// objectAPI is the subset of the S3 client the store relies on.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type s3Store struct {
	client objectAPI
	bucket string
	// mu serializes read-modify-write cycles issued by this process.
	mu sync.Mutex
}

// object is the JSON document stored per room.
type object struct {
	ID          string    `json:"room_id"`
	CodeContent string    `json:"code_content"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewStore creates an S3-backed store using the default AWS credential chain.
func NewStore(ctx context.Context, bucketName string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config: %w", err)
	}
	return newStoreWithClient(s3.NewFromConfig(cfg), bucketName), nil
}

func newStoreWithClient(client objectAPI, bucketName string) *s3Store {
	return &s3Store{client: client, bucket: bucketName}
}

func (s *s3Store) key(id string) (string, error) {
	if id == "" || id == "." || id == ".." || path.Base(id) != id {
		return "", fmt.Errorf("invalid room id %q", id)
	}
	return path.Join(keyPrefix, id+".json"), nil
}

func (s *s3Store) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	key, err := s.key(id)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}
	obj, err := s.get(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			return nil, fmt.Errorf("room %s: %w", id, err)
		}
		logrus.WithError(err).WithField("room_id", id).Error("Failed to retrieve room")
		return nil, err
	}
	return obj.room(), nil
}

func (s *s3Store) CreateRoom(ctx context.Context, language string) (*core.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		room := core.NewRoom(language)
		key, err := s.key(room.ID)
		if err != nil {
			return nil, err
		}
		exists, err := s.exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if err := s.put(ctx, key, newObject(room)); err != nil {
			logrus.WithError(err).WithField("room_id", room.ID).Error("Failed to create room")
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"room_id":  room.ID,
			"language": room.Language,
			"bucket":   s.bucket,
		}).Info("Room created successfully")
		return room, nil
	}
	return nil, fmt.Errorf("allocate room id: gave up after %d attempts", maxIDAttempts)
}

func (s *s3Store) UpdateRoomCode(ctx context.Context, id, code string) error {
	key, err := s.key(id)
	if err != nil {
		return fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.get(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			return fmt.Errorf("room %s: %w", id, err)
		}
		return err
	}
	obj.CodeContent = code
	obj.UpdatedAt = time.Now().UTC()
	return s.put(ctx, key, obj)
}

func (s *s3Store) get(ctx context.Context, key string) (*object, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrRoomNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode object %s: %w", key, err)
	}
	return &obj, nil
}

func (s *s3Store) put(ctx context.Context, key string, obj *object) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", key, err)
}

func newObject(room *core.Room) *object {
	return &object{
		ID:          room.ID,
		CodeContent: room.CodeContent,
		Language:    room.Language,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

func (o *object) room() *core.Room {
	return &core.Room{
		ID:          o.ID,
		CodeContent: o.CodeContent,
		Language:    o.Language,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
