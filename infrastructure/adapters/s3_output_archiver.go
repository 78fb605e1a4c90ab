package adapters

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
)

type s3OutputArchiver struct {
	ContentFetcher
	s3Svc    *s3.S3
	s3Config *config.S3Config
	logger   outbound.LoggerPort
}

func NewS3OutputArchiver(fetcher ContentFetcher, s3Svc *s3.S3, s3Config *config.S3Config, logger outbound.LoggerPort) outbound.OutputArchiverPort {
	return &s3OutputArchiver{
		ContentFetcher: fetcher,
		s3Svc:          s3Svc,
		s3Config:       s3Config,
		logger:         logger,
	}
}

func (a *s3OutputArchiver) Archive(ctx context.Context, jobID string, variantIndex int, resultRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultRef, nil)
	if err != nil {
		a.logger.Error(err, "Failed to create the download request")
		return "", err
	}

	content, err := a.FetchContent(req)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s/variant-%d.mp4", a.s3Config.KeyPrefix, jobID, variantIndex)
	putInput := &s3.PutObjectInput{
		Bucket:        aws.String(a.s3Config.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	}

	if _, err := a.s3Svc.PutObjectWithContext(ctx, putInput); err != nil {
		a.logger.ErrorWithFields(err, "Failed to archive variant output", map[string]interface{}{
			"job_id": jobID,
			"key":    key,
		})
		return "", err
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.s3Config.BucketName, a.s3Config.Region, key), nil
}
