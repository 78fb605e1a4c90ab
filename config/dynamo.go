package config

import (
	"fmt"
	"os"
)

type DynamoConfig struct {
	JobsTableName     string
	LedgerTableName   string
	VariantsTableName string
	UserIndexName     string
	JobIndexName      string
}

func GetDynamoConfig() (*DynamoConfig, error) {
	jobsTable := os.Getenv("DYNAMO_JOBS_TABLE")
	if jobsTable == "" {
		return nil, fmt.Errorf("DYNAMO_JOBS_TABLE must be set")
	}

	ledgerTable := os.Getenv("DYNAMO_LEDGER_TABLE")
	if ledgerTable == "" {
		return nil, fmt.Errorf("DYNAMO_LEDGER_TABLE must be set")
	}

	variantsTable := os.Getenv("DYNAMO_VARIANTS_TABLE")
	if variantsTable == "" {
		return nil, fmt.Errorf("DYNAMO_VARIANTS_TABLE must be set")
	}

	userIndex := os.Getenv("DYNAMO_USER_INDEX")
	if userIndex == "" {
		userIndex = "user_id-index"
	}

	jobIndex := os.Getenv("DYNAMO_JOB_INDEX")
	if jobIndex == "" {
		jobIndex = "job_id-index"
	}

	return &DynamoConfig{
		JobsTableName:     jobsTable,
		LedgerTableName:   ledgerTable,
		VariantsTableName: variantsTable,
		UserIndexName:     userIndex,
		JobIndexName:      jobIndex,
	}, nil
}
