// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ManuGH/camfleet/internal/domain/recording"
)

const defaultPartSize = 8 * 1024 * 1024

// S3Config selects the bucket and credentials. Empty keys use the default
// AWS credential chain. Endpoint targets S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PartSize        int64
}

// S3Archiver streams recordings to S3 with the multipart upload manager.
type S3Archiver struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3 builds the client from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	partSize := cfg.PartSize
	if partSize < manager.MinUploadPartSize {
		partSize = defaultPartSize
	}
	return &S3Archiver{
		bucket: cfg.Bucket,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}, nil
}

// Upload streams rec's media file to Key(rec).
func (a *S3Archiver) Upload(ctx context.Context, rec recording.Recording) error {
	if rec.FilePath == "" {
		return errors.New("archive: recording has no file")
	}
	f, err := os.Open(rec.FilePath) // #nosec G304 -- path comes from the recording store
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", rec.FilePath, err)
	}
	defer func() { _ = f.Close() }()

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(rec)),
		Body:        f,
		ContentType: aws.String(rec.Format.ContentType()),
		Metadata: map[string]string{
			"camera-id":    rec.CameraID,
			"recording-id": rec.ID,
		},
	})
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", Key(rec), err)
	}
	return nil
}
