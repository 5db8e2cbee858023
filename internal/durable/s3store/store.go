// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package s3store is a [durable.Store] that keeps each value as an object in
// an S3 (or S3-compatible) bucket.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/opentofu/mapsync/internal/durable"
)

const contentTypeJSON = "application/json"

const errNoSuchBucket = `S3 bucket does not exist.

The referenced S3 bucket must have been previously created. If the S3 bucket
was created within the last minute, please wait for a minute or two and try
again.

Error: %w
`

// API is the subset of the S3 client that [Store] uses.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Config describes the bucket a [Store] uses.
type Config struct {
	Bucket string

	// Prefix is prepended to every object key.
	Prefix string

	Region       string
	Endpoint     string
	UsePathStyle bool

	// SkipChecksum disables the SHA-256 checksum on uploads, which some
	// S3-compatible services do not support.
	SkipChecksum bool
}

// Store maps each key to the object Prefix+key.
type Store struct {
	client       API
	bucket       string
	prefix       string
	skipChecksum bool
}

var _ durable.Store = (*Store)(nil)

// New loads the AWS configuration from the environment and returns a store
// for the configured bucket.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient returns a store that uses the given client. Only the bucket,
// prefix and checksum settings of cfg are used.
func NewWithClient(client API, cfg Config) *Store {
	return &Store{
		client:       client,
		bucket:       cfg.Bucket,
		prefix:       cfg.Prefix,
		skipChecksum: cfg.SkipChecksum,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey := s.prefix + key

	// Head works around some S3-compatible backends not handling missing
	// GetObject requests correctly.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return nil, s.translateErr(key, err)
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return nil, s.translateErr(key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := durable.ValidateKey(key); err != nil {
		return err
	}
	objectKey := s.prefix + key

	i := &s3.PutObjectInput{
		ContentType:   aws.String(contentTypeJSON),
		ContentLength: aws.Int64(int64(len(value))),
		Body:          bytes.NewReader(value),
		Bucket:        &s.bucket,
		Key:           &objectKey,
	}
	if !s.skipChecksum {
		// We pre-compute the hash to work around the SDK's streaming
		// checksum, which many S3-compatible services reject.
		// ref: https://github.com/aws/aws-sdk-go-v2/issues/1689
		i.ChecksumAlgorithm = types.ChecksumAlgorithmSha256
		sum := sha256.Sum256(value)
		i.ChecksumSHA256 = aws.String(base64.StdEncoding.EncodeToString(sum[:]))
	}

	log.Printf("[DEBUG] s3store: uploading %d bytes to s3://%s/%s", len(value), s.bucket, objectKey)
	if _, err := s.client.PutObject(ctx, i); err != nil {
		var nb *types.NoSuchBucket
		if errors.As(err, &nb) {
			return fmt.Errorf(errNoSuchBucket, err)
		}
		return fmt.Errorf("uploading %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey := s.prefix + key
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		if errors.Is(s.translateErr(key, err), durable.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		params.Prefix = aws.String(s.prefix)
	}

	var ret []string
	pg := s3.NewListObjectsV2Paginator(s.client, params)
	for pg.HasMorePages() {
		page, err := pg.NextPage(ctx)
		if err != nil {
			var nb *types.NoSuchBucket
			if errors.As(err, &nb) {
				return nil, fmt.Errorf(errNoSuchBucket, err)
			}
			return nil, fmt.Errorf("listing objects: %w", err)
		}
		for _, obj := range page.Contents {
			key, ok := strings.CutPrefix(aws.ToString(obj.Key), s.prefix)
			if !ok || key == "" {
				continue
			}
			ret = append(ret, key)
		}
	}
	return ret, nil
}

func (s *Store) translateErr(key string, err error) error {
	var nb *types.NoSuchBucket
	if errors.As(err, &nb) {
		return fmt.Errorf(errNoSuchBucket, err)
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return durable.NotFoundError(key)
	}
	var nk *types.NoSuchKey
	if errors.As(err, &nk) {
		return durable.NotFoundError(key)
	}
	// Some S3-compatible services only report a generic API error code.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
		return durable.NotFoundError(key)
	}
	return fmt.Errorf("reading %q: %w", key, err)
}
