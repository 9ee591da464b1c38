package backup

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader copies archives to an S3 bucket using the shared AWS config
// (env vars, ~/.aws). Large archives go up in parallel multipart chunks.
type S3Uploader struct {
	bucket   string
	uploader *manager.Uploader
}

func NewS3Uploader(ctx context.Context, bucket string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &S3Uploader{
		bucket:   bucket,
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, r io.Reader) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	return err
}
