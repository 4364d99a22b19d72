package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"dtk-go/internal/dtk"
)

// S3Options configures an S3Store.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Static credentials override the default AWS credential chain when set.
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint targets an S3-compatible service (MinIO, localstack) with
	// path-style addressing.
	Endpoint string

	// ContentType is set on every uploaded object. Defaults to
	// application/octet-stream since blobs may be sealed.
	ContentType string
}

func (o S3Options) contentType() string {
	if o.ContentType == "" {
		return "application/octet-stream"
	}
	return o.ContentType
}

// S3Store keeps each blob as an object at <prefix>/<key>.json.
type S3Store struct {
	client      *s3.Client
	uploader    *manager.Uploader
	bucket      string
	prefix      string
	contentType string
}

// NewS3Store loads the AWS configuration and creates the client.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:      client,
		uploader:    manager.NewUploader(client),
		bucket:      opts.Bucket,
		prefix:      opts.Prefix,
		contentType: opts.contentType(),
	}, nil
}

func (s *S3Store) objectKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return path.Join(s.prefix, key+".json"), nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, dtk.ErrBlobNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", objKey, err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", objKey, err)
	}
	return blob, nil
}

func (s *S3Store) Set(ctx context.Context, key string, blob []byte) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String(s.contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", objKey, err)
	}
	return nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", objKey, err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is accessible.
func (s *S3Store) ValidateSetup(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }

var _ Store = (*S3Store)(nil)
