package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/pkg/logger"
)

// s3Getter is the slice of the S3 API the source needs.
type s3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads raw interactions from a CSV object in S3. Production data
// drops land in a bucket; the scheduler re-reads the same key each cycle and
// the watermark filters out rows already processed.
type S3Source struct {
	client s3Getter
	bucket string
	key    string
}

// NewS3Source creates an S3-backed source using the shared AWS config chain.
func NewS3Source(ctx context.Context, bucket, key, region, profile string) (*S3Source, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Source{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		key:    key,
	}, nil
}

// ReadBatches streams the object in batchSize chunks, skipping rows at or
// before the watermark.
func (s *S3Source) ReadBatches(ctx context.Context, after *time.Time, batchSize int, fn BatchFunc) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key)
		}
		return fmt.Errorf("source: get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	logger.Info("Reading S3 source", "bucket", s.bucket, "key", s.key, "batch_size", batchSize)

	return readBatches(out.Body, after, batchSize, func(batch []domain.RawInteraction) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(batch)
	})
}
