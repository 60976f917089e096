package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain/ports/adapter"
)

var _ adapter.DocumentStore = (*S3Store)(nil)

// objectPutter is the part of *s3.Client the store needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store archives bank receipts in an S3-compatible bucket (MinIO works too).
type S3Store struct {
	client objectPutter
	bucket string
	log    *zerolog.Logger
}

func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *zerolog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg.Bucket, logger), nil
}

func newS3Store(client objectPutter, bucket string, logger *zerolog.Logger) *S3Store {
	l := logger.With().Str("component", "s3_store").Str("bucket", bucket).Logger()
	return &S3Store{client: client, bucket: bucket, log: &l}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.log.Debug().Str("key", key).Int("size", len(body)).Msg("object stored")
	return nil
}

// NoopStore drops documents; used when storage is disabled.
type NoopStore struct{}

func (NoopStore) Put(context.Context, string, string, []byte) error { return nil }
