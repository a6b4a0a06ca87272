package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

// S3Client implements Client using the AWS SDK v2
type S3Client struct {
	client    *s3.Client
	uploader  *manager.Uploader
	threshold int64
	logger    *zap.Logger
}

// NewS3Client creates an S3-backed client. Credentials resolve through the
// default chain, a named profile, or an assumed role, in that order of
// specificity.
func NewS3Client(ctx context.Context, cfg Config, opts Options, logger *zap.Logger) (*S3Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.AssumeRole != nil {
		awsCfg, err = assumeRole(ctx, awsCfg, cfg.AssumeRole, logger)
		if err != nil {
			return nil, err
		}
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		if opts.PartSize > 0 {
			u.PartSize = opts.PartSize
		}
		if opts.Concurrency > 0 {
			u.Concurrency = opts.Concurrency
		}
	})

	return &S3Client{
		client:    s3Client,
		uploader:  uploader,
		threshold: opts.MultipartThreshold,
		logger:    logger,
	}, nil
}

func assumeRole(ctx context.Context, awsCfg aws.Config, cfg *AssumeRoleConfig, logger *zap.Logger) (aws.Config, error) {
	logger.Info("Assuming role",
		zap.String("role_arn", cfg.RoleArn),
		zap.String("session_name", cfg.SessionName),
	)

	stsClient := sts.NewFromConfig(awsCfg)
	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(cfg.RoleArn),
		RoleSessionName: aws.String(cfg.SessionName),
		DurationSeconds: aws.Int32(int32(cfg.DurationSeconds)),
	}
	if cfg.ExternalID != "" {
		input.ExternalId = aws.String(cfg.ExternalID)
	}

	result, err := stsClient.AssumeRole(ctx, input)
	if err != nil {
		return awsCfg, fmt.Errorf("assume role failed: %w", err)
	}

	awsCfg.Credentials = credentials.NewStaticCredentialsProvider(
		aws.ToString(result.Credentials.AccessKeyId),
		aws.ToString(result.Credentials.SecretAccessKey),
		aws.ToString(result.Credentials.SessionToken),
	)
	return awsCfg, nil
}

// Upload transfers a local file to S3. Files below the multipart threshold
// go up in a single PutObject call; larger bodies go through the transfer
// manager, which splits them into concurrent parts.
func (c *S3Client) Upload(ctx context.Context, localPath, bucket, key string, progress ProgressFunc) error {
	file, err := os.Open(localPath)
	if err != nil {
		return classifyLocalError(localPath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return classifyLocalError(localPath, err)
	}

	body := newProgressReader(file, progress)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(guessContentType(localPath)),
	}

	if c.threshold > 0 && stat.Size() < c.threshold {
		input.ContentLength = aws.Int64(stat.Size())
		_, err = c.client.PutObject(ctx, input)
	} else {
		_, err = c.uploader.Upload(ctx, input)
	}
	if err != nil {
		// Failures past this point came from the service or the network,
		// which the retry policy treats as transient.
		return Transient(fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, bucket, key, err))
	}

	c.logger.Debug("Object uploaded",
		zap.String("file", localPath),
		zap.String("bucket", bucket),
		zap.String("key", key),
	)
	return nil
}
