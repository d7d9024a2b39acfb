package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config contains S3-compatible object storage configuration
type S3Config struct {
	Endpoint        string // Optional: custom endpoint for MinIO or DigitalOcean Spaces
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool // required for MinIO
}

// S3Store keeps cache entries as objects, one per key.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewS3Store creates an S3-backed cache store
func NewS3Store(ctx context.Context, cfg S3Config, ttl time.Duration) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "pagecache/"
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: prefix, ttl: ttl, now: time.Now}, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + key + ".json"
}

func (s *S3Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, ErrEmptyKey
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, false, fmt.Errorf("read s3 object: %w", err)
	}

	entry, err := decode(data)
	if err != nil || Expired(entry.FetchedAt, s.ttl, s.now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *S3Store) Put(ctx context.Context, key string, entry Entry) error {
	if key == "" {
		return ErrEmptyKey
	}

	data, err := encode(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	// PutObject replaces the whole object, so concurrent writers never interleave.
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
