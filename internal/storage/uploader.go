package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const maxImageBytes = 10 << 20

var ErrNotImage = errors.New("downloaded content is not an image")

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader mirrors stock images into an S3-compatible bucket so post
// drafts keep working after the upstream link expires.
type Uploader struct {
	cfg        Config
	client     objectPutter
	httpClient *http.Client
	now        func() time.Time
}

func NewUploader(cfg Config, fetchTimeout time.Duration) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newUploader(cfg, s3.New(options), &http.Client{Timeout: fetchTimeout}), nil
}

func newUploader(cfg Config, client objectPutter, httpClient *http.Client) *Uploader {
	if cfg.Prefix == "" {
		cfg.Prefix = "images"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Uploader{cfg: cfg, client: client, httpClient: httpClient, now: time.Now}
}

// Mirror downloads sourceURL and stores it, returning the public URL.
func (u *Uploader) Mirror(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: status=%d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return u.Upload(ctx, data)
}

// Upload stores data under a dated key; the content type is sniffed.
func (u *Uploader) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}

	key := u.generateKey(mt.Extension())
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mt.String()),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key, nil
}

func (u *Uploader) generateKey(ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	now := u.now().UTC()
	prefix := strings.Trim(u.cfg.Prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), uuid.NewString()+ext)
}
