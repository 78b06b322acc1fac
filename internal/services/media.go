package services

import (
	"context"
	"fmt"
	"time"

	"meetmap-backend/internal/apperr"
	appconfig "meetmap-backend/internal/config"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const uploadURLTTL = 5 * time.Minute

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Presigner signs upload requests. Satisfied by *s3.PresignClient.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// MediaService hands out presigned upload targets for photos. Clients PUT
// the bytes straight to object storage and then reference the object URL
// in chat messages, check-ins, posts or their profile.
type MediaService struct {
	clock
	gw        *repository.Gateway
	presigner Presigner
	aws       appconfig.AWSConfig
}

// NewMediaService creates a media service. A nil presigner disables uploads.
func NewMediaService(gw *repository.Gateway, presigner Presigner, cfg appconfig.AWSConfig) *MediaService {
	return &MediaService{gw: gw, presigner: presigner, aws: cfg}
}

// UploadRequest represents a request to get a pre-signed URL
type UploadRequest struct {
	ContentType string `json:"contentType"`
}

// UploadResponse represents the response with pre-signed URL
type UploadResponse struct {
	ID        models.ID `json:"id"`
	UploadURL string    `json:"uploadUrl"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresIn int       `json:"expiresIn"`
}

// UploadURL presigns an upload of a photo owned by userID.
func (s *MediaService) UploadURL(ctx context.Context, userID models.ID, req UploadRequest) (*UploadResponse, error) {
	resp, err := s.presign(ctx, "uploads", userID, req.ContentType)
	if err != nil {
		return nil, err
	}

	err = s.gw.Update(ctx, func(doc *models.Document) error {
		doc.Media = append(doc.Media, models.UploadedMedia{
			ID:        resp.ID,
			URL:       resp.URL,
			Key:       resp.Key,
			OwnerID:   userID,
			CreatedAt: s.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// AvatarUpload presigns an avatar upload and points the user's avatar at
// the object it will create.
func (s *MediaService) AvatarUpload(ctx context.Context, userID models.ID, req UploadRequest) (*UploadResponse, error) {
	resp, err := s.presign(ctx, "avatars", userID, req.ContentType)
	if err != nil {
		return nil, err
	}

	err = s.gw.Update(ctx, func(doc *models.Document) error {
		user := doc.FindUser(userID)
		if user == nil {
			return apperr.NotFound("user not found")
		}
		user.Avatar = resp.URL
		doc.Media = append(doc.Media, models.UploadedMedia{
			ID:        resp.ID,
			URL:       resp.URL,
			Key:       resp.Key,
			OwnerID:   userID,
			CreatedAt: s.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", userID.String()).Str("key", resp.Key).Msg("Avatar upload prepared")
	return resp, nil
}

func (s *MediaService) presign(ctx context.Context, prefix string, userID models.ID, contentType string) (*UploadResponse, error) {
	if s.presigner == nil || s.aws.S3Bucket == "" {
		return nil, apperr.Business("media uploads are not configured")
	}
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, apperr.Validation("unsupported image format, use JPG, PNG or WEBP")
	}

	id := newID()
	// {prefix}/{user_id}/{media_id}.{ext}
	key := fmt.Sprintf("%s/%s/%s%s", prefix, userID, id, ext)

	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.aws.S3Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadURLTTL
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &UploadResponse{
		ID:        id,
		UploadURL: request.URL,
		Method:    request.Method,
		URL:       objectURL(s.aws, key),
		Key:       key,
		ExpiresIn: int(uploadURLTTL.Seconds()),
	}, nil
}
