// Package media archives incoming lead attachments to S3 with a retention
// window and sweeps expired objects.
package media

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Downloader fetches a media payload from its provider URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// MediaStore persists attachment metadata rows.
type MediaStore interface {
	InsertLeadMedia(ctx context.Context, m *models.LeadMedia) error
	ListExpiredMedia(ctx context.Context, now time.Time) ([]models.LeadMedia, error)
	DeleteLeadMedia(ctx context.Context, id uuid.UUID) error
}

// Archiver downloads provider media, writes it to S3 and records metadata
// with an expiry.
type Archiver struct {
	s3Client   S3API
	bucket     string
	downloader Downloader
	store      MediaStore
	retention  time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

// New creates an archiver. An empty bucket disables archival: Archive then
// records metadata with an empty storage path so intake still counts photos.
func New(s3Client S3API, bucket string, downloader Downloader, store MediaStore, retention time.Duration, logger *logging.Logger) *Archiver {
	if downloader == nil {
		panic("media: downloader required")
	}
	if store == nil {
		panic("media: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if retention <= 0 {
		retention = models.MediaRetention
	}
	return &Archiver{
		s3Client:   s3Client,
		bucket:     bucket,
		downloader: downloader,
		store:      store,
		retention:  retention,
		logger:     logger,
		now:        time.Now,
	}
}

func (a *Archiver) enabled() bool {
	return a.bucket != "" && a.s3Client != nil
}

// Archive downloads the attachment, stores the blob, and records the
// metadata row with the retention expiry.
func (a *Archiver) Archive(ctx context.Context, leadID uuid.UUID, mediaType, downloadURL, caption string) (*models.LeadMedia, error) {
	now := a.now().UTC()
	m := &models.LeadMedia{
		ID:        uuid.New(),
		LeadID:    leadID,
		MediaType: mediaType,
		Caption:   caption,
		ExpiresAt: now.Add(a.retention),
	}

	if a.enabled() && downloadURL != "" {
		data, contentType, err := a.downloader.Download(ctx, downloadURL)
		if err != nil {
			return nil, fmt.Errorf("media: download: %w", err)
		}

		key := fmt.Sprintf("leads/%s/%d/%02d/%s%s",
			leadID, now.Year(), now.Month(), m.ID, extensionFor(contentType))
		_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return nil, fmt.Errorf("media: s3 put %s: %w", key, err)
		}
		m.StoragePath = key
	}

	if err := a.store.InsertLeadMedia(ctx, m); err != nil {
		return nil, err
	}

	a.logger.Info("archived lead media",
		"lead_id", leadID,
		"media_type", mediaType,
		"storage_path", m.StoragePath,
		"expires_at", m.ExpiresAt.Format(time.RFC3339),
	)
	return m, nil
}

// SweepExpired deletes blobs and metadata past retention. A failed blob
// delete keeps the row so the next sweep retries it.
func (a *Archiver) SweepExpired(ctx context.Context) (int, error) {
	expired, err := a.store.ListExpiredMedia(ctx, a.now().UTC())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, m := range expired {
		if a.enabled() && m.StoragePath != "" {
			_, err := a.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    aws.String(m.StoragePath),
			})
			if err != nil {
				a.logger.Warn("media sweep: s3 delete failed", "storage_path", m.StoragePath, "error", err)
				continue
			}
		}
		if err := a.store.DeleteLeadMedia(ctx, m.ID); err != nil {
			a.logger.Warn("media sweep: metadata delete failed", "media_id", m.ID, "error", err)
			continue
		}
		deleted++
	}

	if len(expired) > 0 {
		a.logger.Info("media sweep finished", "expired", len(expired), "deleted", deleted)
	}
	return deleted, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
