package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/ecopower/ecopower/internal/apperror"
)

// MaxAttachmentSize caps uploaded chat attachments.
const MaxAttachmentSize = 10 << 20 // 10 MiB

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// Store uploads chat attachments to S3-compatible object storage.
type Store struct {
	cfg    S3Config
	client s3Client
}

// NewStore returns a store, or nil when storage is not configured.
// A nil store refuses uploads with a dependency error.
func NewStore(cfg S3Config) *Store {
	s := &Store{cfg: cfg}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		s.client = newS3Client(cfg)
	}
	return s
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether object storage is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// Attachment describes a stored upload.
type Attachment struct {
	Key  string
	URL  string
	Name string
	Size int64
}

// Upload stores an attachment under a fresh key and returns its location.
// The size must be known up front so oversized uploads are refused before
// any bytes move.
func (s *Store) Upload(ctx context.Context, userID int64, name, contentType string, size int64, body io.Reader) (*Attachment, error) {
	if !s.Enabled() {
		return nil, apperror.New(apperror.KindDependency, "attachment storage is not configured")
	}
	if size <= 0 {
		return nil, apperror.Validation("attachment size must be positive")
	}
	if size > MaxAttachmentSize {
		return nil, apperror.Validation("attachment exceeds the %s limit (%s sent)",
			humanize.IBytes(MaxAttachmentSize), humanize.IBytes(uint64(size)))
	}
	name = sanitizeName(name)
	if name == "" {
		return nil, apperror.Validation("attachment name must not be empty")
	}

	key := fmt.Sprintf("attachments/%d/%s/%s%s",
		userID, time.Now().UTC().Format("2006/01"), uuid.NewString(), path.Ext(name))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "upload attachment", err)
	}

	return &Attachment{
		Key:  key,
		URL:  s.objectURL(key),
		Name: name,
		Size: size,
	}, nil
}

// Fetch streams a stored attachment. The caller closes the reader.
func (s *Store) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	if !s.Enabled() {
		return nil, apperror.New(apperror.KindDependency, "attachment storage is not configured")
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "fetch attachment", err)
	}
	return out.Body, nil
}

// Delete removes a stored attachment.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !s.Enabled() {
		return apperror.New(apperror.KindDependency, "attachment storage is not configured")
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperror.Wrap(apperror.KindDependency, "delete attachment", err)
	}
	return nil
}

func (s *Store) objectURL(key string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimSuffix(s.cfg.PublicURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimSuffix(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// sanitizeName strips any path components from a client-supplied filename.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
