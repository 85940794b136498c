package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

// S3Config holds connection settings for an S3-compatible backend
// (AWS S3 or MinIO).
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3Store implements AssetStore on top of a single bucket; partitions
// become key prefixes.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// newAssetKey builds a date-partitioned object key under the partition
// prefix, e.g. shared/z1/2026/9/1/<uuid>.
func newAssetKey(p models.Partition) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%d/%d/%v", PartitionPrefix(p), d.Year(), d.Month(), d.Day(), uuid.New())
}

// progressReader reports cumulative bytes read to the callback.
type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

func (s *S3Store) Create(ctx context.Context, p models.Partition, payload []byte, meta AssetMetadata, onProgress ProgressFunc) (string, error) {
	key := newAssetKey(p)

	body := &progressReader{
		r:     bytes.NewReader(payload),
		total: int64(len(payload)),
		fn:    onProgress,
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(int64(len(payload))),
		Metadata: map[string]string{
			"owner-record-id":   meta.OwnerRecordID,
			"media-kind":        string(meta.Kind),
			"byte-size":         strconv.FormatInt(meta.ByteSize, 10),
			"checksum-sha256":   meta.Checksum,
			"original-filename": meta.OriginalFilename,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	if onProgress != nil {
		onProgress(int64(len(payload)), int64(len(payload)))
	}

	return key, nil
}

func (s *S3Store) Fetch(ctx context.Context, p models.Partition, assetID string) ([]byte, error) {
	var data []byte

	// Transport blips are retried in place with a short backoff;
	// cross-attempt retry policy stays with the engine.
	err := retry.Do(ctx, retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond)), func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(assetID),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return fmt.Errorf("asset %s: %w", assetID, syncerr.ErrNotFound)
			}
			if syncerr.Classify(err) == syncerr.ClassTransient {
				return retry.RetryableError(err)
			}
			return err
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", assetID, err)
	}

	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, p models.Partition, assetID string) error {
	err := retry.Do(ctx, retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond)), func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(assetID),
		})
		if err != nil && syncerr.Classify(err) == syncerr.ClassTransient {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", assetID, err)
	}
	return nil
}

// Ping probes the bucket with a short deadline; used by the
// reachability monitor.
func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket: %w", err)
	}
	return nil
}
