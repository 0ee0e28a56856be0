package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AssetStore saves generated media and returns a URL for it.
type AssetStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// FileAssets writes assets under a directory.
type FileAssets struct {
	dir     string
	baseURL string
}

// NewFileAssets creates dir if needed. When baseURL is set, returned URLs are
// baseURL/name; otherwise they are file:// URLs.
func NewFileAssets(dir, baseURL string) (*FileAssets, error) {
	if dir == "" {
		return nil, errors.New("store: asset dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create asset dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &FileAssets{dir: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data to dir/name.
func (f *FileAssets) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	name, err := cleanAssetName(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(f.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("store: write asset: %w", err)
	}
	if f.baseURL != "" {
		return f.baseURL + "/" + name, nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(), nil
}

// S3Config configures S3 asset storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL, when set, prefixes returned object URLs.
	PublicBaseURL string
	// Prefix is prepended to every object key.
	Prefix string
}

// S3Assets writes assets to an S3 bucket.
type S3Assets struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Assets creates an S3 asset store with static credentials. A custom
// Endpoint switches to path-style addressing for S3-compatible servers.
func NewS3Assets(cfg S3Config) (*S3Assets, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("store: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	awsCfg := aws.Config{Region: cfg.Region}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})
	return &S3Assets{client: client, cfg: cfg}, nil
}

// Put uploads data as name.
func (s *S3Assets) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	name, err := cleanAssetName(name)
	if err != nil {
		return "", err
	}
	key := path.Join(s.cfg.Prefix, name)
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("store: s3 put %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

func (s *S3Assets) objectURL(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	case s.cfg.Endpoint != "":
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
}

func cleanAssetName(name string) (string, error) {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." {
		return "", errors.New("store: asset name is required")
	}
	return name, nil
}

// DecodeDataURL splits a base64 data URL into its bytes and content type.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", errors.New("store: not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("store: malformed data URL")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("store: data URL is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("store: decode data URL: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// PutDataURL decodes a data URL and stores it as name plus the extension
// of its content type.
func PutDataURL(ctx context.Context, assets AssetStore, name, dataURL string) (string, error) {
	data, contentType, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 && path.Ext(name) == "" {
		name += preferredExt(contentType, exts)
	}
	return assets.Put(ctx, name, contentType, data)
}

func preferredExt(contentType string, exts []string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "video/mp4":
		return ".mp4"
	}
	return exts[0]
}
