package index

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Mirror uploads finalized index artifact parts to an S3 bucket for
// off-box backup/distribution. Mirroring is best-effort: it never
// blocks or fails a build.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror creates a mirror targeting bucket/prefix using the
// default AWS credential chain.
func NewS3Mirror(ctx context.Context, region, bucket, prefix string) (*S3Mirror, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("index: load aws config: %w", err)
	}
	return &S3Mirror{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// MirrorFile uploads the artifact at path (and any numbered shard
// siblings) to the mirror bucket under prefix/basename.
func (m *S3Mirror) MirrorFile(ctx context.Context, path string) error {
	if err := m.uploadOne(ctx, path); err != nil && !os.IsNotExist(err) {
		return err
	}
	for i := 0; ; i++ {
		p := shardPath(path, i)
		if _, err := os.Stat(p); err != nil {
			break
		}
		if err := m.uploadOne(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *S3Mirror) uploadOne(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/%s", m.prefix, filepath.Base(path))

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("index: mirror upload %s: %w", key, err)
	}
	return nil
}
