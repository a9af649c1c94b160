package objectstore

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the connection settings of an S3 compatible bucket.
type Config struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket"`
	EndpointURL     string `mapstructure:"endpoint"` // Optional for S3-compatible services
	PublicBaseURL   string `mapstructure:"public_base_url"`
	CreateBucket    bool   `mapstructure:"create_bucket"`
	PartSizeMB      int64  `mapstructure:"part_size_mb"`
}

// StorjGateway is the hosted S3 gateway of the Storj network.
const StorjGateway = "https://gateway.storjshare.io"

// Validate checks the fields required to reach the bucket.
func (c Config) Validate() error {
	if c.BucketName == "" {
		return errors.New("bucket is required")
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.New("access_key_id and secret_access_key are required")
	}
	return nil
}

// ObjectURL returns the public URL of key.
func (c Config) ObjectURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	switch {
	case c.PublicBaseURL != "":
		return strings.TrimSuffix(c.PublicBaseURL, "/") + "/" + key
	case c.EndpointURL != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.EndpointURL, "/"), c.BucketName, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, key)
	}
}
