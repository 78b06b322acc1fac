package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"meetmap-backend/internal/metrics"
	"meetmap-backend/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const backupPrefix = "backups/data."

// ObjectStore is the subset of the S3 API used for backups.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// BackupService snapshots the whole document to object storage and keeps
// the newest few snapshots.
type BackupService struct {
	clock
	gw     *repository.Gateway
	store  ObjectStore
	bucket string
	keep   int
}

// NewBackupService creates a backup service
func NewBackupService(gw *repository.Gateway, store ObjectStore, bucket string, keep int) *BackupService {
	if keep <= 0 {
		keep = 3
	}
	return &BackupService{gw: gw, store: store, bucket: bucket, keep: keep}
}

// Backup uploads a snapshot and prunes old ones. It returns the new key.
func (b *BackupService) Backup(ctx context.Context) (string, error) {
	doc, err := b.gw.Read(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}

	// the timestamp layout sorts lexically
	key := fmt.Sprintf("%s%s.json", backupPrefix, b.Now().UTC().Format("20060102T150405.000Z"))
	_, err = b.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		metrics.Backups.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}
	metrics.Backups.WithLabelValues("ok").Inc()

	removed, err := b.prune(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune old backups")
	}
	log.Info().Str("key", key).Int("bytes", len(data)).Int("pruned", removed).Msg("Backup uploaded")
	return key, nil
}

// prune deletes every snapshot except the newest b.keep.
func (b *BackupService) prune(ctx context.Context) (int, error) {
	var keys []string
	var token *string
	for {
		out, err := b.store.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(backupPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to list backups: %w", err)
		}
		for _, obj := range out.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".json") {
				keys = append(keys, k)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	if len(keys) <= b.keep {
		return 0, nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	removed := 0
	for _, key := range keys[b.keep:] {
		_, err := b.store.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return removed, fmt.Errorf("failed to delete backup %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// RunPeriodic takes a backup every interval until ctx is done.
func (b *BackupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Backup(ctx); err != nil {
				log.Error().Err(err).Msg("Backup failed")
			}
		}
	}
}
