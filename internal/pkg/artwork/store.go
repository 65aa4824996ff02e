package artwork

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// Store moves customization artwork between the temporary upload area and
// permanent per-order storage in an S3-compatible bucket.
type Store struct {
	s3Client *s3.Client
	config   *Config
}

// NewStore creates an artwork store client
func NewStore(cfg *Config) (*Store, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("artwork store is disabled")
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible endpoints want path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	store := &Store{
		s3Client: s3Client,
		config:   cfg,
	}

	log.Infof("[Artwork] Initialized object store for bucket: %s", cfg.BucketName)
	return store, nil
}

var (
	storeOnce   sync.Once
	sharedStore *Store
)

// GetStore returns the process-wide store, or nil when the store is
// disabled or misconfigured.
func GetStore() *Store {
	storeOnce.Do(func() {
		store, err := NewStoreFromEnv()
		if err != nil {
			log.Errorf("[Artwork] Store unavailable: %v", err)
			return
		}
		sharedStore = store
	})
	return sharedStore
}

// NewStoreFromEnv builds the store from environment configuration; it
// returns (nil, nil) when the store is disabled.
func NewStoreFromEnv() (*Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.IsEnabled() {
		return nil, nil
	}
	return NewStore(cfg)
}

// Promote copies each temporary artwork object to its permanent per-order
// key and removes the temp object. Re-runs are safe: a temp key that is
// already gone counts as promoted as long as the permanent object exists.
func (s *Store) Promote(ctx context.Context, orderID uint, keys []string) error {
	bucket := s.config.BucketName
	for _, key := range keys {
		permKey := PermanentKey(orderID, key)

		if !s.objectExists(ctx, bucket, key) {
			if s.objectExists(ctx, bucket, permKey) {
				// Already promoted by an earlier run.
				continue
			}
			return fmt.Errorf("artwork object %s missing from bucket %s", key, bucket)
		}

		copySource := fmt.Sprintf("%s/%s", bucket, url.PathEscape(key))
		if _, err := s.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(bucket),
			CopySource: aws.String(copySource),
			Key:        aws.String(permKey),
		}); err != nil {
			return fmt.Errorf("copy artwork %s -> %s: %w", key, permKey, err)
		}

		if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			// The copy already succeeded; a dangling temp object is harmless.
			log.Warnf("[Artwork] Failed to delete temp object %s: %v", key, err)
		}
		log.Infof("[Artwork] Promoted %s -> %s", key, permKey)
	}
	return nil
}

// Upload writes a customization upload to the temporary area.
func (s *Store) Upload(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload artwork %s: %w", key, err)
	}
	return nil
}

func (s *Store) objectExists(ctx context.Context, bucket, key string) bool {
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err == nil
}
