package config

import (
	"fmt"
	"os"
)

type S3Config struct {
	BucketName string
	Region     string
	KeyPrefix  string
}

func GetS3Config() (*S3Config, error) {
	bucketName := os.Getenv("OUTPUT_BUCKET_NAME")
	if bucketName == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET_NAME must be set")
	}

	region := os.Getenv("REGION")
	if region == "" {
		return nil, fmt.Errorf("REGION must be set")
	}

	prefix := os.Getenv("OUTPUT_KEY_PREFIX")
	if prefix == "" {
		prefix = "outputs"
	}

	return &S3Config{
		BucketName: bucketName,
		Region:     region,
		KeyPrefix:  prefix,
	}, nil
}
