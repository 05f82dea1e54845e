// Package avatars stores user profile images in an S3-compatible bucket.
package avatars

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxSize is the largest avatar accepted, in bytes.
const DefaultMaxSize int64 = 5 << 20

var (
	// ErrNotAnImage is returned when either the declared or the detected
	// content type is not image/*.
	ErrNotAnImage = errors.New("not an image")
	// ErrTooLarge is returned for images over the size limit.
	ErrTooLarge = errors.New("image too large")
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// objectPutter is the part of *s3.Client the store needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config describes the bucket and the credentials to reach it.
type Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

type Store struct {
	client   objectPutter
	bucket   string
	endpoint string
	maxSize  int64
	now      func() time.Time
}

// NewStore builds an S3 client with static credentials and path-style
// addressing, which MinIO and most S3-compatible servers expect.
func NewStore(ctx context.Context, c Config) (*Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &Store{
		client:   client,
		bucket:   c.Bucket,
		endpoint: strings.TrimRight(c.BaseEndpoint, "/"),
		maxSize:  DefaultMaxSize,
		now:      time.Now,
	}, nil
}

// storageKey returns avatars/YYYY/M/D/<uuid>.
func (s *Store) storageKey() string {
	d := s.now()
	return fmt.Sprintf("avatars/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// Upload writes the image under a fresh key and returns its public URL.
// The declared contentType and the type detected from the bytes must both
// be image/*; the detected one is stored. size may be -1 when unknown.
func (s *Store) Upload(ctx context.Context, contentType string, body io.Reader, size int64) (string, error) {
	if !isImage(contentType) {
		return "", ErrNotAnImage
	}
	if size > s.maxSize {
		return "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(body, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}

	detected := mimetype.Detect(data).String()
	if !isImage(detected) {
		return "", ErrNotAnImage
	}

	key := s.storageKey()
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(detected),
		ContentLength: aws.Int64(int64(len(data))),
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return s.URL(key), nil
}

// URL is the path-style public address of key.
func (s *Store) URL(key string) string {
	return s.endpoint + "/" + s.bucket + "/" + key
}
