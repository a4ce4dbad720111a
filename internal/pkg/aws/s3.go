package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sConfig "github.com/hearthlab/heater-control/internal/pkg/config"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
)

const backupPrefix = "backups"

type Client struct {
	S3            *s3.Client
	Bucket        string
	BackupFileKey string
	TmpWritePath  string
}

// spacesEndpointResolver points the SDK at a Spaces-compatible endpoint
// instead of the default AWS one.
func spacesEndpointResolver(url string) aws.EndpointResolverWithOptionsFunc {
	return func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: url}, nil
	}
}

func NewClient(serverConfig sConfig.ServerConfig) (Client, error) {
	ctx := context.Background()
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(serverConfig.S3Config.AccessKeyID, serverConfig.S3Config.SecretAccessKey, "")),
	}
	if serverConfig.S3Config.URL != "" {
		opts = append(opts, awsConfig.WithEndpointResolverWithOptions(spacesEndpointResolver(serverConfig.S3Config.URL)))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return Client{}, err
	}
	cfg.Region = serverConfig.S3Config.Region

	client := s3.NewFromConfig(cfg)

	return Client{
		S3:            client,
		Bucket:        serverConfig.S3Config.Bucket,
		BackupFileKey: fmt.Sprintf("%s/%s", backupPrefix, serverConfig.AppName),
		TmpWritePath:  fmt.Sprintf("/tmp/%s", serverConfig.AppName),
	}, nil
}

// WriteBackupFile renders the readings as JSON lines at the tmp path.
func (c *Client) WriteBackupFile(readings []postgres.Reading) error {
	f, err := os.Create(c.TmpWritePath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range readings {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding reading: %w", err)
		}
	}
	return nil
}

// UploadBackupFile uploads the tmp backup file to the bucket.
func (c *Client) UploadBackupFile(ctx context.Context) error {
	file, err := os.Open(c.TmpWritePath)
	if err != nil {
		return err
	}
	defer file.Close()

	uploader := manager.NewUploader(c.S3)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(c.BackupFileKey),
		Body:   file,
	})
	return err
}
