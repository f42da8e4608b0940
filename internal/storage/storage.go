// Package storage is the object-storage collaborator used for avatars. It
// talks to any S3-compatible endpoint (AWS, MinIO, R2) with path-style URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/sakif/habitquest/internal/apperror"
)

// MaxUploadSize is the largest object Upload accepts (5 MB).
const MaxUploadSize = 5 << 20

// allowedTypes maps accepted image content types to the key extension.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Validate checks an upload against the size ceiling and image allowlist.
func Validate(size int, contentType string) error {
	if size == 0 {
		return apperror.ValidationFailed("file", "file is empty")
	}
	if size > MaxUploadSize {
		return apperror.ValidationFailed("file", "file exceeds the 5 MB limit")
	}
	if _, ok := allowedTypes[contentType]; !ok {
		return apperror.ValidationFailed("file", "only jpeg, png and gif images are allowed")
	}
	return nil
}

// AvatarKey returns a fresh object key for userID's avatar.
func AvatarKey(userID, contentType string) string {
	return fmt.Sprintf("avatars/%s/%s%s", userID, uuid.NewString(), allowedTypes[contentType])
}

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

type S3Store struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

func NewS3(cfg Config) (*S3Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: endpoint and bucket are required")
	}

	awsCfg := aws.Config{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Store{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// Upload validates and stores body under key, returning its public URL.
func (s *S3Store) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if err := Validate(len(body), contentType); err != nil {
		return "", err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage: putting %s: %w", key, err)
	}
	return s.URL(key), nil
}

// URL is the path-style public address of key.
func (s *S3Store) URL(key string) string {
	return s.endpoint + "/" + s.bucket + "/" + key
}
