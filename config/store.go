package config

import (
	"fmt"
	"os"
)

const (
	StoreDriverSqlite = "sqlite"
	StoreDriverDynamo = "dynamo"
)

type StoreConfig struct {
	Driver     string
	SqlitePath string
}

func GetStoreConfig() (*StoreConfig, error) {
	driver := os.Getenv("STORE_DRIVER")
	if driver == "" {
		driver = StoreDriverSqlite
	}
	if driver != StoreDriverSqlite && driver != StoreDriverDynamo {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverSqlite, StoreDriverDynamo)
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "data/promo-video.db"
	}

	return &StoreConfig{
		Driver:     driver,
		SqlitePath: sqlitePath,
	}, nil
}
