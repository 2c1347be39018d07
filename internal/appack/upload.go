package appack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Client wraps the S3 client for a Cloudflare R2 mirror bucket.
type R2Client struct {
	Client     *s3.Client
	BucketName string
}

// NewR2Client initializes an R2 client from configuration values, or
// reports which credentials are missing.
func NewR2Client(cfg *Config) (*R2Client, error) {
	accountID := cfg.Values["R2_ACCOUNT_ID"]
	accessKey := cfg.Values["R2_ACCESS_KEY_ID"]
	secretKey := cfg.Values["R2_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["R2_BUCKET_NAME"]

	if accountID == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("R2 credentials missing in configuration (R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME)")
	}

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
		}, nil
	})

	options := []func(*config.LoadOptions) error{
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("auto"),
	}

	awsCfg, err := config.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &R2Client{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// UploadLocalFile uploads a file from disk to the bucket under key.
func (r *R2Client) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	return err
}

// maybeUploadArtifact pushes the finished bundle to the configured R2
// mirror. Skipped silently when no bucket is configured; an upload
// failure warns but never fails a build that already produced its
// artifact locally.
func maybeUploadArtifact(ctx context.Context, cfg *Config, artifact string) {
	if cfg.Values["R2_BUCKET_NAME"] == "" {
		return
	}

	client, err := NewR2Client(cfg)
	if err != nil {
		colWarn.Printf("Warning: mirror upload skipped: %v\n", err)
		return
	}

	key := filepath.Base(artifact)
	colArrow.Print("-> ")
	colSuccess.Printf("Uploading %s to mirror bucket %s\n", key, client.BucketName)

	if err := client.UploadLocalFile(ctx, key, artifact); err != nil {
		colWarn.Printf("Warning: mirror upload failed: %v\n", err)
		return
	}
	colArrow.Print("-> ")
	colSuccess.Println("Mirror upload complete")
}
