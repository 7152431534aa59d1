package storage

import (
	"github.com/sxm1129/bookqueue/internal/config"
)

// NewBlobStore builds the S3-compatible adapter the processor uploads
// audio through and presigns GET URLs against. The blob store is
// always S3-compatible in production; LocalAdapter remains available
// directly (NewLocalAdapter) for local development without wiring it
// through this factory.
func NewBlobStore(cfg config.Storage) (*S3Adapter, error) {
	return NewS3Adapter(S3Options{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UseSSL:          true,
	})
}
