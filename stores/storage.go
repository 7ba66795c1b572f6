package stores

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"pairpad-server/config"
	"pairpad-server/core"
	"pairpad-server/stores/aws"
	"pairpad-server/stores/filesystem"
	"pairpad-server/stores/memory"
	"pairpad-server/stores/postgres"
	"pairpad-server/stores/redis"
	"pairpad-server/stores/sqlite"
)

// GetStore builds the RoomStore selected by cfg.StorageType.
func GetStore(ctx context.Context, cfg *config.Config) (core.RoomStore, error) {
	var (
		store core.RoomStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
	}

	switch cfg.StorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store, err = filesystem.NewStore(cfg.LocalStoragePath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store, err = sqlite.NewStore(cfg.DataSourceName)
	case "s3":
		if cfg.S3BucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.S3BucketName
		store, err = aws.NewStore(ctx, cfg.S3BucketName)
	case "redis":
		storageField["redisAddr"] = cfg.RedisAddr
		storageField["redisDB"] = cfg.RedisDB
		store, err = redis.NewStore(ctx, cfg.RedisAddr, cfg.RedisDB)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN must be set for postgres storage type")
		}
		store, err = postgres.NewStore(cfg.PostgresDSN)
	case "memory", "":
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.StorageType, err)
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
