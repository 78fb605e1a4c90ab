package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"promo-video-api/domain"
)

type PipelineConfig struct {
	MaxVariants     int
	PollConcurrency int
	WorkerPoolSize  int
	StageTimeouts   map[domain.Step]time.Duration
}

func GetPipelineConfig() (*PipelineConfig, error) {
	maxVariants, err := intEnv("MAX_BATCH_VARIANTS", 5)
	if err != nil {
		return nil, err
	}

	pollConcurrency, err := intEnv("POLL_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}

	poolSize, err := intEnv("WORKER_POOL_SIZE", 120)
	if err != nil {
		return nil, err
	}

	scriptTimeout, err := minutesEnv("SCRIPT_TIMEOUT_MINUTES", 5)
	if err != nil {
		return nil, err
	}

	imageTimeout, err := minutesEnv("IMAGE_TIMEOUT_MINUTES", 10)
	if err != nil {
		return nil, err
	}

	videoTimeout, err := minutesEnv("VIDEO_TIMEOUT_MINUTES", 20)
	if err != nil {
		return nil, err
	}

	return &PipelineConfig{
		MaxVariants:     maxVariants,
		PollConcurrency: pollConcurrency,
		WorkerPoolSize:  poolSize,
		StageTimeouts: map[domain.Step]time.Duration{
			domain.StepScript:         scriptTimeout,
			domain.StepReferenceImage: imageTimeout,
			domain.StepOutput:         videoTimeout,
		},
	}, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return value, nil
}

func minutesEnv(name string, fallback int) (time.Duration, error) {
	minutes, err := intEnv(name, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}
