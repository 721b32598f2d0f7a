// Package storage copies finished videos from the provider's temporary URL
// into S3-compatible object storage (Cloudflare R2) and returns the durable
// public URL persisted on the job.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Uploader struct {
	s3Client   *s3.Client
	bucket     string
	publicBase string
	httpClient *http.Client
}

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
}

// NewUploader builds an S3 client pointed at the R2 endpoint. R2 ignores the
// region but the SDK requires one; "auto" is the documented value.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage credentials and bucket must be set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})

	return &Uploader{
		s3Client:   client,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// UploadFromURL streams the video at srcURL into the bucket under key and
// returns the public URL.
func (u *Uploader) UploadFromURL(ctx context.Context, srcURL, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download video: unexpected status %d", resp.StatusCode)
	}

	_, err = u.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          resp.Body,
		ContentType:   aws.String("video/mp4"),
		ContentLength: contentLength(resp),
	})
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}

	return u.publicBase + "/" + key, nil
}

func contentLength(resp *http.Response) *int64 {
	if resp.ContentLength < 0 {
		return nil
	}
	return aws.Int64(resp.ContentLength)
}
