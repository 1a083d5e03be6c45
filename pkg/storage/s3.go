// Package storage provides object storage access for delivered exports.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader stores an object in a bucket.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// S3Client implements Uploader against AWS S3.
type S3Client struct {
	client *s3.Client
}

// NewS3Client builds an S3 client from the default AWS config chain.
func NewS3Client(ctx context.Context, region string) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &S3Client{client: s3.NewFromConfig(cfg)}, nil
}

// Upload stores data under bucket/key.
func (c *S3Client) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
