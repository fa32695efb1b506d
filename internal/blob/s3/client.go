// Package s3blob stores event archives and token metadata documents in
// S3-compatible object storage (AWS S3, MinIO, R2, iDrive e2).
package s3blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig configures the object store connection. Endpoint is empty
// for AWS S3.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
	// KeyPrefix is prepended to every object key, e.g. "devnet/".
	KeyPrefix string
	// PublicURL is the base used when building links to stored objects.
	// When empty, links are built from Endpoint and Bucket.
	PublicURL string
}

// Client wraps the SDK client with the default bucket and key prefix.
type Client struct {
	s3        *s3.Client
	bucket    string
	prefix    string
	publicURL string
}

// New creates a Client for AWS S3 or any S3-compatible endpoint.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		s3:        client,
		bucket:    cfg.Bucket,
		prefix:    cfg.KeyPrefix,
		publicURL: publicBase(cfg, endpoint),
	}, nil
}

// Health verifies the bucket is reachable with HeadBucket.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK client needs no teardown.
func (c *Client) Close() error { return nil }

// S3 returns the underlying SDK client.
func (c *Client) S3() *s3.Client { return c.s3 }

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// ObjectKey applies the configured prefix to path.
func (c *Client) ObjectKey(path string) string {
	return c.prefix + strings.TrimPrefix(path, "/")
}

// URL returns a link to the object at path.
func (c *Client) URL(path string) string {
	return strings.TrimSuffix(c.publicURL, "/") + "/" + c.ObjectKey(path)
}

func publicBase(cfg ClientConfig, endpoint string) string {
	switch {
	case cfg.PublicURL != "":
		return cfg.PublicURL
	case endpoint != "":
		return strings.TrimSuffix(endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// normaliseEndpoint adds a scheme when endpoint has none.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
