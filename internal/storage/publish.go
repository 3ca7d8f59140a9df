package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/keagan/reelmixer/pkg/util"
	"github.com/rs/zerolog"
)

// ErrS3NotConfigured is returned by NewS3Publisher without a bucket.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// Publisher delivers a finished reel and reports where it can be found.
type Publisher interface {
	Publish(ctx context.Context, localPath, name string) (string, error)
}

// Deliver copies the reel from the session directory to dst, creating
// parent directories. The copy is written beside dst and renamed into place.
func Deliver(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := util.EnsureDir(filepath.Dir(dst)); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".reelmixer-*"+filepath.Ext(dst))
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

// LocalPublisher copies reels into a directory.
type LocalPublisher struct {
	Dir string
}

// Publish copies localPath to Dir/name and returns the destination path.
func (p LocalPublisher) Publish(ctx context.Context, localPath, name string) (string, error) {
	dst := filepath.Join(p.Dir, name)
	if err := Deliver(ctx, localPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// S3Config holds the configuration for S3 uploads.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string // optional S3-compatible endpoint
	AccessKeyID     string
	SecretAccessKey string
}

// objectPutter is the part of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads reels to a bucket.
type S3Publisher struct {
	client objectPutter
	bucket string
	region string
	prefix string
	logger zerolog.Logger
}

// NewS3Publisher builds a client from the default AWS chain, overriding
// credentials when a static key pair is configured.
func NewS3Publisher(ctx context.Context, logger zerolog.Logger, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrS3NotConfigured
	}

	var configOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		configOpts = append(configOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3Publisher(logger, s3.NewFromConfig(awsCfg, clientOpts...), cfg.Bucket, awsCfg.Region, cfg.Prefix), nil
}

func newS3Publisher(logger zerolog.Logger, client objectPutter, bucket, region, prefix string) *S3Publisher {
	return &S3Publisher{
		client: client,
		bucket: bucket,
		region: region,
		prefix: prefix,
		logger: logger.With().Str("component", "s3").Logger(),
	}
}

// Key returns the object key for name.
func (p *S3Publisher) Key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Publish uploads localPath as prefix/name and returns its public URL.
func (p *S3Publisher) Publish(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := p.Key(name)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
	p.logger.Info().Str("bucket", p.bucket).Str("key", key).Str("url", url).Msg("reel uploaded")
	return url, nil
}
