// Package publish copies an export folder to an S3-compatible bucket.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/ackruti/Oracle-etl-tool/cmd/formatters"
)

var (
	ErrBucketRequired   = errors.New("S3 bucket is required")
	ErrUploaderRequired = errors.New("S3 uploader not initialized")
)

// Config describes the target bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Publisher uploads files with the S3 upload manager, which switches to
// multipart uploads for large files on its own.
type Publisher struct {
	bucket   string
	uploader s3manageriface.UploaderAPI
	logger   *slog.Logger
}

// New opens an S3 session from cfg.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return NewWithUploader(cfg.Bucket, s3manager.NewUploader(sess), logger), nil
}

// NewWithUploader wraps an existing uploader.
func NewWithUploader(bucket string, uploader s3manageriface.UploaderAPI, logger *slog.Logger) *Publisher {
	return &Publisher{bucket: bucket, uploader: uploader, logger: logger}
}

// PublishDir uploads every file under dir to {prefix}/{relative path} and
// returns the object keys in walk order. It stops at the first failure.
func (p *Publisher) PublishDir(ctx context.Context, dir, prefix string) ([]string, error) {
	if p.uploader == nil {
		return nil, ErrUploaderRequired
	}

	var keys []string
	start := time.Now()
	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := p.upload(ctx, file, key); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}

	p.logger.Info(fmt.Sprintf("☁️  Published %d files to s3://%s/%s in %v", len(keys), p.bucket, prefix, time.Since(start).Round(time.Millisecond)))
	return keys, nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	p.logger.Debug(fmt.Sprintf("  ☁️  Uploading %s to s3://%s/%s", file, p.bucket, key))
	_, err = p.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func contentType(file string) string {
	ext := strings.ToLower(filepath.Ext(file))
	if f, err := formatters.GetFormatter(ext, formatters.Options{}); err == nil {
		return f.MIMEType()
	}
	return "application/octet-stream"
}
