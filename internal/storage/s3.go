package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/OFFIS-RIT/lexlink/internal/config"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func NewS3Client(ctx context.Context, cfg config.AWS) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// ObjectGetter is the part of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// MaterialLoader reads raw source material from a bucket. The object key is
// Prefix joined with Record.SourceKey.
type MaterialLoader struct {
	Client ObjectGetter
	Bucket string
	Prefix string
}

func NewMaterialLoader(client ObjectGetter, cfg config.AWS) *MaterialLoader {
	return &MaterialLoader{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}
}

func (l *MaterialLoader) Load(ctx context.Context, record common.Record) (extract.Material, error) {
	if record.SourceKey == "" {
		return extract.Material{}, fmt.Errorf("%w: record %d has no source key", extract.ErrNoMaterial, record.ID)
	}
	key := record.SourceKey
	if l.Prefix != "" {
		key = path.Join(l.Prefix, key)
	}

	body, contentType, err := GetFile(ctx, l.Client, l.Bucket, key)
	if err != nil {
		return extract.Material{}, err
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	return extract.Material{Key: key, ContentType: contentType, Body: body}, nil
}

// GetFile downloads an object. A missing object is reported as
// extract.ErrNoMaterial.
func GetFile(ctx context.Context, client ObjectGetter, bucket, key string) ([]byte, string, error) {
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", fmt.Errorf("%w: s3://%s/%s", extract.ErrNoMaterial, bucket, key)
		}
		return nil, "", fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read file contents: %w", err)
	}

	contentType := strings.TrimSpace(aws.ToString(result.ContentType))
	if contentType == "binary/octet-stream" || contentType == "application/octet-stream" {
		contentType = ""
	}
	return buf.Bytes(), contentType, nil
}

var _ extract.MaterialLoader = (*MaterialLoader)(nil)
