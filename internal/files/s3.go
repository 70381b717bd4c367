// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package files resolves uploaded attachments to the file fields stored on
// chat messages. Uploads themselves go straight from the client to the
// bucket; chat only sees the object key.
package files

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tomtom215/campusnet/internal/chat"
	"github.com/tomtom215/campusnet/internal/config"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
)

// filenameMetaKey is the object metadata entry holding the original file
// name; upload clients set it as x-amz-meta-filename.
const filenameMetaKey = "filename"

type headObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignGetAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Resolver implements chat.FileResolver on top of an S3 bucket.
type S3Resolver struct {
	head    headObjectAPI
	presign presignGetAPI
	bucket  string
	ttl     time.Duration
	maxSize int64
}

// NewS3Resolver builds a resolver from the default AWS credential chain.
// A custom endpoint switches to path-style addressing for S3-compatible
// stores such as MinIO.
func NewS3Resolver(ctx context.Context, cfg config.FilesConfig) (*S3Resolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logging.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Dur("presign_ttl", cfg.PresignTTL).
		Msg("S3 file resolver initialized")

	return newS3Resolver(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Resolver(head headObjectAPI, presign presignGetAPI, cfg config.FilesConfig) *S3Resolver {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Resolver{
		head:    head,
		presign: presign,
		bucket:  cfg.Bucket,
		ttl:     ttl,
		maxSize: cfg.MaxSize,
	}
}

// Resolve checks that key exists and returns a presigned download URL
// with the object's name, size and content type.
func (r *S3Resolver) Resolve(ctx context.Context, key string) (*models.FileMeta, error) {
	const op = "resolve file"
	key, err := cleanKey(key)
	if err != nil {
		return nil, chat.Invalid(op, "%v", err)
	}

	head, err := r.head.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, chat.Invalid(op, "file %q was not uploaded", key)
		}
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}

	size := aws.ToInt64(head.ContentLength)
	if r.maxSize > 0 && size > r.maxSize {
		return nil, chat.Invalid(op, "file is %d bytes, limit is %d", size, r.maxSize)
	}

	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	name := head.Metadata[filenameMetaKey]
	if name == "" {
		name = path.Base(key)
	}
	return &models.FileMeta{
		URL:         req.URL,
		Name:        name,
		Size:        size,
		ContentType: aws.ToString(head.ContentType),
	}, nil
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "", errors.New("file key is required")
	case len(key) > 1024:
		return "", errors.New("file key is too long")
	case strings.HasPrefix(key, "/"), strings.Contains(key, ".."):
		return "", fmt.Errorf("file key %q is not a valid object key", key)
	}
	return key, nil
}
