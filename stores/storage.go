package stores

import (
	"certificate-server/config"
	"certificate-server/core"
	"certificate-server/stores/aws"
	"certificate-server/stores/filesystem"
	"certificate-server/stores/memory"
	"certificate-server/stores/postgres"
	"certificate-server/stores/sqlstore"
	"context"

	"github.com/sirupsen/logrus"
)

// Store is what every backend provides. Backends that also track room
// activity implement core.RoomRegistry.
type Store interface {
	core.TemplateStore
	core.IssuanceStore
}

func GetStore(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		store Store
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
		store, err = sqlstore.NewSQLiteStore(cfg.DataSourceName)
	case "mysql":
		store, err = sqlstore.NewMySQLStore(cfg.DataSourceName)
	case "postgres":
		store, err = postgres.NewStore(ctx, cfg.DataSourceName)
	case "s3":
		storageField["bucket"] = cfg.S3Bucket
		store, err = aws.NewStore(ctx, cfg.S3Bucket, cfg.S3Endpoint)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		logrus.WithFields(storageField).WithError(err).Error("Failed to open storage")
		return nil, err
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
