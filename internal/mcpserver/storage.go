package mcpserver

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Storage handles S3 uploads for program artifacts.
type Storage struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string // e.g. "https://programs.rjm.agency"
}

// NewStorage creates an S3 storage handler.
func NewStorage(client *s3.Client, bucket, cdnBaseURL string) *Storage {
	return &Storage{client: client, bucket: bucket, cdnBaseURL: cdnBaseURL}
}

// Upload uploads a program JSON artifact to S3 and returns the S3 key and public URL.
func (s *Storage) Upload(ctx context.Context, programID, jsonPath string) (key, url string, err error) {
	key = "programs/" + programID + ".json"

	f, err := os.Open(jsonPath)
	if err != nil {
		return "", "", fmt.Errorf("open program file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("stat program file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          f,
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", "", fmt.Errorf("upload to s3: %w", err)
	}

	url = s.cdnBaseURL + "/" + key
	return key, url, nil
}
