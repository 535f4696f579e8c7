package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appconfig "lprview/internal/config"
	"lprview/internal/domain"
)

const archivePrefix = "detections/"

// ImageArchive keeps a copy of every successfully analysed image together with
// the detections the backend returned for it.
type ImageArchive interface {
	ArchiveDetection(ctx context.Context, img *domain.SelectedImage, results []domain.DetectionResult) (string, error)
}

// ObjectPutter is the subset of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Archive struct {
	client ObjectPutter
	bucket string
	log    *zap.Logger
}

// NewS3Archive connects to the configured bucket and creates it when missing.
func NewS3Archive(ctx context.Context, cfg *appconfig.S3Config, log *zap.Logger) (ImageArchive, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint))
		}
		o.UsePathStyle = true
	})

	if err := ensureBucketExists(ctx, client, cfg, log); err != nil {
		log.Warn("Failed to ensure bucket exists", zap.String("bucket", cfg.BucketName), zap.Error(err))
	}

	return NewArchive(client, cfg.BucketName, log), nil
}

// NewArchive builds an archive on top of any ObjectPutter.
func NewArchive(client ObjectPutter, bucket string, log *zap.Logger) ImageArchive {
	return &s3Archive{
		client: client,
		bucket: bucket,
		log:    log,
	}
}

func ensureBucketExists(ctx context.Context, client *s3.Client, cfg *appconfig.S3Config, log *zap.Logger) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.BucketName),
	})
	if err == nil {
		log.Info("Bucket already exists", zap.String("bucket", cfg.BucketName))
		return nil
	}

	log.Info("Creating bucket", zap.String("bucket", cfg.BucketName))

	input := &s3.CreateBucketInput{Bucket: aws.String(cfg.BucketName)}
	// us-east-1 rejects an explicit location constraint
	if cfg.Region != "" && cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(cfg.Region),
		}
	}

	if _, err := client.CreateBucket(ctx, input); err != nil {
		return err
	}

	log.Info("Bucket created successfully", zap.String("bucket", cfg.BucketName))
	return nil
}

func (a *s3Archive) ArchiveDetection(ctx context.Context, img *domain.SelectedImage, results []domain.DetectionResult) (string, error) {
	id := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(img.Filename))
	imageKey := archivePrefix + id + ext
	resultKey := archivePrefix + id + ".json"

	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(imageKey),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(img.Data))),
		Metadata: map[string]string{
			"original-name": img.Filename,
		},
	})
	if err != nil {
		a.log.Error("Failed to upload image to S3",
			zap.String("key", imageKey),
			zap.Error(err))
		return "", fmt.Errorf("put %s: %w", imageKey, err)
	}

	payload, err := json.Marshal(struct {
		Image      string                   `json:"image"`
		Filename   string                   `json:"filename"`
		Detections []domain.DetectionResult `json:"detections"`
	}{
		Image:      imageKey,
		Filename:   img.Filename,
		Detections: results,
	})
	if err != nil {
		return "", fmt.Errorf("encode detections: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(resultKey),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		a.log.Error("Failed to upload detections to S3",
			zap.String("key", resultKey),
			zap.Error(err))
		return "", fmt.Errorf("put %s: %w", resultKey, err)
	}

	a.log.Info("Detection archived",
		zap.String("key", imageKey),
		zap.Int("detections", len(results)),
		zap.Int64("size", img.Size))

	return imageKey, nil
}

func endpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "http://" + endpoint
}
