// Package remote stores backup archives in S3 compatible object storage.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Environment variables holding static S3 credentials. When unset the AWS
// default credential chain is used.
const (
	EnvAccessKeyID     = "SKM_S3_ACCESS_KEY_ID"
	EnvSecretAccessKey = "SKM_S3_SECRET_ACCESS_KEY"
)

// MaxObjectSize bounds downloads. Archives hold a handful of keys, so
// anything larger is not an archive.
const MaxObjectSize = 16 << 20

var (
	// ErrNotRemote indicates a location without the s3:// scheme.
	ErrNotRemote = errors.New("not an s3:// location")
	// ErrInvalidLocation indicates an s3:// location without bucket or key.
	ErrInvalidLocation = errors.New("invalid s3 location")
	// ErrObjectTooLarge indicates a download above MaxObjectSize.
	ErrObjectTooLarge = errors.New("object too large")
)

// Location is an object in a bucket.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// IsRemote reports whether s names an s3:// location.
func IsRemote(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// ParseLocation parses s3://bucket/key.
func ParseLocation(s string) (Location, error) {
	if !IsRemote(s) {
		return Location{}, fmt.Errorf("%w: %q", ErrNotRemote, s)
	}
	u, err := url.Parse(s)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	loc := Location{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}
	if loc.Bucket == "" || loc.Key == "" || strings.HasSuffix(loc.Key, "/") {
		return Location{}, fmt.Errorf("%w: %q (want s3://bucket/key)", ErrInvalidLocation, s)
	}
	return loc, nil
}

// Options configures the S3 client.
type Options struct {
	Region   string
	Endpoint string

	// PathStyle addresses buckets as endpoint/bucket, as MinIO expects.
	PathStyle bool
}

// objectAPI is the subset of the S3 client used by Store.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// Store reads and writes archives in S3.
type Store struct {
	client objectAPI
}

// NewS3Store builds a client from the AWS default configuration, overridden
// by opts and by static credentials from the environment.
func NewS3Store(ctx context.Context, opts Options) (*Store, error) {
	var loaders []func(*config.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if id, secret := os.Getenv(EnvAccessKeyID), os.Getenv(EnvSecretAccessKey); id != "" && secret != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return &Store{client: client}, nil
}

// Put uploads data to loc.
func (s *Store) Put(ctx context.Context, loc Location, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", loc, err)
	}
	return nil
}

// Get downloads the object at loc.
func (s *Store) Get(ctx context.Context, loc Location) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", loc, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", loc, err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("%w: %s", ErrObjectTooLarge, loc)
	}
	return data, nil
}
