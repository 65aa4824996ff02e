package artwork

import (
	"errors"
	"fmt"
	"strings"

	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
)

// Temp uploads live under this prefix until the owning order's payment is
// approved; promotion moves them below the per-order prefix.
const (
	TempPrefix      = "temp/"
	PermanentPrefix = "orders/"
)

// Config holds artwork object store configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads object store configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("ARTWORK_STORE_ENABLED", "false") == "true",
	}

	// Validate required fields if the artwork store is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the artwork store is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the artwork store is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when the artwork store is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the artwork store is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// TempKey builds the object key for a fresh customization upload.
func TempKey(filename string) string {
	return TempPrefix + filename
}

// PermanentKey maps a temporary upload key to its per-order permanent key.
func PermanentKey(orderID uint, tempKey string) string {
	name := strings.TrimPrefix(tempKey, TempPrefix)
	return fmt.Sprintf("%s%d/%s", PermanentPrefix, orderID, name)
}
