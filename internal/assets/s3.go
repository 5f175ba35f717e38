package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	keyAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	keyLength    = 21
	keyPrefix    = "images/"
	presignTTL   = 15 * time.Minute
	checksumMeta = "blake2b-256"
)

// S3Options configures an S3 or S3-compatible bucket.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// PublicBaseURL, when set, is used for URLs instead of presigned requests.
	PublicBaseURL string
	MaxBytes      int64
}

// S3Store keeps images in a bucket under random keys.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	opts    S3Options
}

// NewS3Store builds a client from static credentials.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("assets: s3 bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	cfg := aws.Config{Region: opts.Region}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Store{client: client, presign: s3.NewPresignClient(client), opts: opts}, nil
}

// Put uploads the object and returns its id.
func (s *S3Store) Put(ctx context.Context, object Object) (string, error) {
	p, err := prepare(object, s.opts.MaxBytes)
	if err != nil {
		return "", err
	}

	key, err := gonanoid.Generate(keyAlphabet, keyLength)
	if err != nil {
		return "", fmt.Errorf("assets: generate key: %w", err)
	}
	id := key + p.extension

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(keyPrefix + id),
		Body:          bytes.NewReader(p.data),
		ContentType:   aws.String(p.contentType),
		ContentLength: aws.Int64(int64(len(p.data))),
		Metadata:      map[string]string{checksumMeta: p.checksum},
	})
	if err != nil {
		return "", fmt.Errorf("assets: put %s: %w", id, err)
	}
	return id, nil
}

// URL returns the public URL when configured, otherwise a presigned GET URL.
func (s *S3Store) URL(ctx context.Context, id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	if s.opts.PublicBaseURL != "" {
		return joinURL(s.opts.PublicBaseURL, keyPrefix+id), nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(keyPrefix + id),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", fmt.Errorf("assets: presign %s: %w", id, err)
	}
	return req.URL, nil
}
