// Package media hands out presigned S3 URLs for profile picture uploads and
// removes replaced pictures.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sundayezeilo/shortly/internal/config"
	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/idgen"
)

const (
	DefaultKeyPrefix = "profile-pictures"
	DefaultURLTTL    = 5 * time.Minute
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Presigner signs PutObject requests. *s3.PresignClient implements it.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectDeleter removes objects. *s3.Client implements it.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Upload is a presigned upload target.
type Upload struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
	FinalURL  string `json:"finalUrl"`
}

// Uploader issues upload URLs for one bucket.
type Uploader struct {
	presigner Presigner
	deleter   ObjectDeleter
	bucket    string
	prefix    string
	ttl       time.Duration
	baseURL   string
	ids       idgen.Generator
}

// UploaderConfig holds configuration for an Uploader.
type UploaderConfig struct {
	Bucket    string
	KeyPrefix string
	URLTTL    time.Duration
	// PublicBaseURL is where uploaded objects are served from. Defaults to
	// the bucket's virtual-hosted S3 endpoint.
	PublicBaseURL string
	IDGenerator   idgen.Generator
}

// NewUploader creates an Uploader over the given S3 clients.
func NewUploader(presigner Presigner, deleter ObjectDeleter, cfg UploaderConfig) *Uploader {
	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}
	ids := cfg.IDGenerator
	if ids == nil {
		ids = idgen.NewV4()
	}

	return &Uploader{
		presigner: presigner,
		deleter:   deleter,
		bucket:    cfg.Bucket,
		prefix:    prefix,
		ttl:       ttl,
		baseURL:   baseURL,
		ids:       ids,
	}
}

// NewS3Uploader loads the default AWS credential chain for cfg.Region and
// returns an Uploader for cfg.Bucket.
func NewS3Uploader(ctx context.Context, cfg config.MediaConfig) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return NewUploader(s3.NewPresignClient(client), client, UploaderConfig{
		Bucket:    cfg.Bucket,
		KeyPrefix: cfg.KeyPrefix,
		URLTTL:    cfg.URLTTL,
	}), nil
}

// PresignUpload returns a URL the client can PUT an image of contentType to.
func (u *Uploader) PresignUpload(ctx context.Context, contentType string) (Upload, error) {
	const op = "media.uploader.PresignUpload"

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return Upload{}, errx.E(op, errx.Invalid, errors.New("contentType is required"))
	}
	if !allowedContentTypes[contentType] {
		return Upload{}, errx.E(op, errx.Invalid, fmt.Errorf("unsupported content type %q", contentType))
	}

	id, err := u.ids.Generate()
	if err != nil {
		return Upload{}, errx.E(op, errx.Internal, err)
	}
	key := u.prefix + "/" + id.String()

	req, err := u.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(u.ttl))
	if err != nil {
		return Upload{}, errx.E(op, errx.Unavailable, fmt.Errorf("failed to presign upload: %w", err))
	}

	return Upload{
		UploadURL: req.URL,
		Key:       key,
		FinalURL:  u.baseURL + "/" + key,
	}, nil
}

// Delete removes an uploaded object. Keys outside the upload prefix are
// rejected.
func (u *Uploader) Delete(ctx context.Context, key string) error {
	const op = "media.uploader.Delete"

	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if !strings.HasPrefix(key, u.prefix+"/") || strings.Contains(key, "..") || len(key) == len(u.prefix)+1 {
		return errx.E(op, errx.Invalid, fmt.Errorf("key must be under %s/", u.prefix))
	}

	_, err := u.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errx.E(op, errx.Unavailable, fmt.Errorf("failed to delete object: %w", err))
	}
	return nil
}
