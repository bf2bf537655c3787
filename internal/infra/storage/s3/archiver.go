package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/DanielNoblero/consultorios-app/internal/app/closing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

const defaultPrefix = "reports"

// Archiver stores rendered period reports in an S3 compatible bucket. The
// bucket is private; reports hold billing data.
type Archiver struct {
	bucket         string
	prefix         string
	client         *minio.Client
	logger         *slog.Logger
	bucketInitOnce sync.Once
	bucketInitErr  error
}

type Options struct {
	Endpoint  string
	UseSSL    bool
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key, "reports" when empty.
	Prefix string
	Logger *slog.Logger
}

func NewArchiver(opts Options) (*Archiver, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	client, err := minio.New(parseEndpoint(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	prefix := strings.Trim(strings.TrimSpace(opts.Prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Archiver{bucket: bucket, prefix: prefix, client: client, logger: opts.Logger}, nil
}

// ObjectKey is where the report of period is stored. Re-running a close
// overwrites the same object.
func ObjectKey(prefix string, period calendar.Period, filename string) string {
	return path.Join(prefix, fmt.Sprint(period.Year), filename)
}

func (a *Archiver) Archive(ctx context.Context, period calendar.Period, artifact closing.Artifact) (string, error) {
	if len(artifact.Body) == 0 {
		return "", errors.New("s3: empty artifact")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	filename := artifact.Filename
	if filename == "" {
		filename = closing.Filename(period)
	}
	key := ObjectKey(a.prefix, period, filename)
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(artifact.Body), int64(len(artifact.Body)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"period": period.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}
	if a.logger != nil {
		a.logger.InfoContext(ctx, "report archived", "bucket", a.bucket, "key", key, "period", period.String(), "bytes", len(artifact.Body))
	}
	return key, nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.bucketInitOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			a.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return a.bucketInitErr
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ closing.Archiver = (*Archiver)(nil)
