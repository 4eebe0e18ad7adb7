package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/friendchat/backend/internal/config"
)

const (
	uploadPartSize    = 5 * 1024 * 1024
	imageCacheControl = "public, max-age=31536000, immutable"
)

// S3Storage keeps uploaded chat images in an S3-compatible bucket under the
// same files/<name> layout LocalStorage uses.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

// NewS3Storage connects to the bucket named in cfg. A custom Endpoint switches
// to path-style addressing for MinIO and similar servers.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if !cfg.Enabled() {
		return nil, errors.New("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
		}),
		bucket:  cfg.Bucket,
		baseURL: strings.TrimSuffix(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}, nil
}

// Save uploads r as files/<name> and returns the reference stored on the message:
// the public URL when one is configured, the object key otherwise.
func (s *S3Storage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	base, ok := cleanName(name)
	if !ok {
		return "", fmt.Errorf("s3 storage: invalid name %q", name)
	}
	key := path.Join(PublicPrefix, base)

	br := bufio.NewReaderSize(r, 512)
	head, _ := br.Peek(512)

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         br,
		ContentType:  aws.String(http.DetectContentType(head)),
		CacheControl: aws.String(imageCacheControl),
		ACL:          s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}
	return s.reference(key), nil
}

// Exists reports whether ref names an object in the bucket.
func (s *S3Storage) Exists(ctx context.Context, ref string) (bool, error) {
	key, ok := s.key(ref)
	if !ok {
		return false, nil
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noKey) {
			return false, nil
		}
		return false, fmt.Errorf("s3 storage head %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the object ref names. Foreign references are ignored.
func (s *S3Storage) Delete(ctx context.Context, ref string) error {
	key, ok := s.key(ref)
	if !ok {
		return nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 storage delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) reference(key string) string {
	if s.baseURL == "" {
		return key
	}
	return s.baseURL + "/" + key
}

// key maps a reference produced by Save back to its object key.
func (s *S3Storage) key(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if s.baseURL != "" {
		var ok bool
		if ref, ok = strings.CutPrefix(ref, s.baseURL+"/"); !ok {
			return "", false
		}
	}
	rest, ok := strings.CutPrefix(strings.TrimLeft(ref, "/"), PublicPrefix+"/")
	if !ok {
		return "", false
	}
	base, ok := cleanName(rest)
	if !ok {
		return "", false
	}
	return path.Join(PublicPrefix, base), true
}
