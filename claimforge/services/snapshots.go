package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotService ships checkpoint screenshots to a Spaces bucket so session
// evidence survives container restarts.
type SnapshotService struct {
	client *s3.Client
	bucket string
	region string
	root   string
}

func NewSnapshotService(spacesKey, spacesSecret, region, bucket, root string) (*SnapshotService, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load Spaces config: %w", err)
	}

	return &SnapshotService{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		root:   root,
	}, nil
}

// Upload pushes one local screenshot under root/YYYY-MM-DD/filename.
func (s *SnapshotService) Upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	key := fmt.Sprintf("%s/%s/%s", s.root, time.Now().UTC().Format("2006-01-02"), filepath.Base(path))
	contentType := "image/png"

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotService) GetBucket() string {
	return s.bucket
}
