// Package s3fetch mirrors burst reference tables from S3 into a local
// directory.
package s3fetch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientOptions tunes the S3 client. The zero value uses the default AWS
// configuration chain.
type ClientOptions struct {
	Region       string
	Endpoint     string // S3-compatible service, e.g. a local MinIO
	UsePathStyle bool
}

// Client wraps the S3 API client used for downloads.
type Client struct {
	s3Client *s3.Client
}

// NewClient loads the AWS configuration chain and applies opts on top.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	var load []func(*config.LoadOptions) error
	if opts.Region != "" {
		load = append(load, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(cfg, opts), nil
}

// NewClientWithConfig builds a Client from an already loaded AWS config.
func NewClientWithConfig(cfg aws.Config, opts ClientOptions) *Client {
	return &Client{
		s3Client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
			o.UsePathStyle = opts.UsePathStyle
		}),
	}
}
