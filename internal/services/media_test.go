package services

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePresigner struct {
	keys    []string
	expires time.Duration
}

func (p *fakePresigner) PresignPutObject(_ context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	key := aws.ToString(params.Key)
	p.keys = append(p.keys, key)
	return &v4.PresignedHTTPRequest{
		URL:          "https://signed.example.com/" + key + "?X-Amz-Signature=abc",
		Method:       http.MethodPut,
		SignedHeader: http.Header{},
	}, nil
}

func TestMediaUploadURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, _ := f.register(t, "ana@example.com", "Ana")

	presigner := &fakePresigner{}
	media := NewMediaService(f.gw, presigner, config.AWSConfig{
		Region:        "us-east-1",
		S3Bucket:      "meetmap-media",
		PublicBaseURL: "https://cdn.example.com/",
	})

	_, err := media.UploadURL(ctx, ana, UploadRequest{ContentType: "image/gif"})
	wantKind(t, err, apperr.KindValidation)

	resp, err := media.UploadURL(ctx, ana, UploadRequest{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("UploadURL: %v", err)
	}
	if !strings.HasPrefix(resp.Key, "uploads/"+ana.String()+"/") || !strings.HasSuffix(resp.Key, ".png") {
		t.Errorf("key = %q", resp.Key)
	}
	if resp.URL != "https://cdn.example.com/"+resp.Key {
		t.Errorf("url = %q", resp.URL)
	}
	if resp.Method != http.MethodPut || presigner.expires != uploadURLTTL || resp.ExpiresIn != 300 {
		t.Errorf("method %s expires %v expiresIn %d", resp.Method, presigner.expires, resp.ExpiresIn)
	}

	stored := f.doc(t).Media
	if len(stored) != 1 || stored[0].Key != resp.Key || stored[0].OwnerID != ana {
		t.Errorf("media = %+v", stored)
	}

	avatar, err := media.AvatarUpload(ctx, ana, UploadRequest{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("AvatarUpload: %v", err)
	}
	if !strings.HasPrefix(avatar.Key, "avatars/") {
		t.Errorf("avatar key = %q", avatar.Key)
	}
	if got := f.doc(t).FindUser(ana).Avatar; got != avatar.URL {
		t.Errorf("avatar = %q, want %q", got, avatar.URL)
	}
}

func TestMediaUploadDisabled(t *testing.T) {
	f := newFixture(t)
	ana, _ := f.register(t, "ana@example.com", "Ana")
	media := NewMediaService(f.gw, nil, config.AWSConfig{})

	_, err := media.UploadURL(context.Background(), ana, UploadRequest{ContentType: "image/png"})
	wantKind(t, err, apperr.KindBusiness)
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AWSConfig
		want string
	}{
		{"public base", config.AWSConfig{PublicBaseURL: "https://cdn.example.com", S3Bucket: "b"}, "https://cdn.example.com/k.png"},
		{"custom endpoint", config.AWSConfig{Endpoint: "http://minio:9000/", S3Bucket: "b"}, "http://minio:9000/b/k.png"},
		{"aws", config.AWSConfig{S3Bucket: "b", Region: "sa-east-1"}, "https://b.s3.sa-east-1.amazonaws.com/k.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := objectURL(tt.cfg, "k.png"); got != tt.want {
				t.Errorf("objectURL = %q, want %q", got, tt.want)
			}
		})
	}
}
