package services

import (
	"context"
	"fmt"
	"strings"

	appconfig "meetmap-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an S3 client. Static keys are used when configured,
// otherwise the default credential chain applies. A custom endpoint
// switches to path-style addressing for S3-compatible providers.
func NewS3Client(ctx context.Context, cfg appconfig.AWSConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// objectURL is the public URL of an object key.
func objectURL(cfg appconfig.AWSConfig, key string) string {
	if cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s", trimSlash(cfg.PublicBaseURL), key)
	}
	if cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", trimSlash(cfg.Endpoint), cfg.S3Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.S3Bucket, cfg.Region, key)
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
