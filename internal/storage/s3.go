package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Store keeps images in an S3 bucket.
type S3Store struct {
	Client *s3.Client
	Bucket string
}

func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return &S3Store{
		Client: s3.NewFromConfig(cfg),
		Bucket: bucket,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	key := uuid.New().String() + filepath.Ext(filename)
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.Bucket,
		Key:    &key,
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("storage: put s3 object %s: %w", key, err)
	}
	return key, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.Bucket,
		Key:    &ref,
	})
	if err != nil {
		return fmt.Errorf("storage: delete s3 object %s: %w", ref, err)
	}
	return nil
}
