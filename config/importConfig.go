package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ImportSourceLocal = "local"
	ImportSourceGCS   = "gcs"
)

// JobConfig holds the lock settings for one dataset job.
type JobConfig struct {
	LockAtMostFor        time.Duration `validate:"gt=0"`
	MaximumExecutionTime time.Duration `validate:"gt=0,ltefield=LockAtMostFor"`
}

// ImportConfig is the externally supplied configuration of the import service.
type ImportConfig struct {
	OrganizationBatchSize int `validate:"gte=1"`
	EmployeeBatchSize     int `validate:"gte=1"`

	Source          string `validate:"oneof=local gcs"`
	TempDownloadDir string `validate:"required_if=Source local"`
	IncomingDir     string `validate:"required"`
	ProcessedDir    string `validate:"required,nefield=IncomingDir"`
	OrgFileName     string `validate:"required"`
	EmpFileName     string `validate:"required,nefield=OrgFileName"`

	GCSBucket string `validate:"required_if=Source gcs"`
	GCSPrefix string

	// ImportInterval paces the organization job; the employee job follows
	// each successful organization run.
	ImportInterval  time.Duration `validate:"gt=0"`
	OrganizationJob JobConfig
	EmployeeJob     JobConfig
	RunOnStartup    bool

	EventsTopic string
}

// LoadImportConfig reads IMPORT_* and SCHEDULER_* env vars, applies defaults and validates.
func LoadImportConfig() (ImportConfig, error) {
	cfg := ImportConfig{
		OrganizationBatchSize: intFromEnv("IMPORT_ORGANIZATION_BATCH_SIZE", 500),
		EmployeeBatchSize:     intFromEnv("IMPORT_EMPLOYEE_BATCH_SIZE", 500),

		Source:          stringFromEnv("IMPORT_SOURCE", ImportSourceLocal),
		TempDownloadDir: stringFromEnv("IMPORT_TEMP_DOWNLOAD_DIR", "./data/download"),
		IncomingDir:     stringFromEnv("IMPORT_INCOMING_DIR", "./data/incoming"),
		ProcessedDir:    stringFromEnv("IMPORT_PROCESSED_DIR", "./data/processed"),
		OrgFileName:     stringFromEnv("IMPORT_ORG_FILE_NAME", "organization.csv"),
		EmpFileName:     stringFromEnv("IMPORT_EMP_FILE_NAME", "employee.csv"),

		GCSBucket: stringFromEnv("GCS_BUCKET", ""),
		GCSPrefix: stringFromEnv("IMPORT_GCS_PREFIX", ""),

		ImportInterval: durationFromEnv("SCHEDULER_IMPORT_INTERVAL", 24*time.Hour),

		OrganizationJob: JobConfig{
			LockAtMostFor:        durationFromEnv("SCHEDULER_ORG_LOCK_AT_MOST_FOR", time.Hour),
			MaximumExecutionTime: durationFromEnv("SCHEDULER_ORG_MAXIMUM_EXECUTION_TIME", 50*time.Minute),
		},
		EmployeeJob: JobConfig{
			LockAtMostFor:        durationFromEnv("SCHEDULER_EMP_LOCK_AT_MOST_FOR", time.Hour),
			MaximumExecutionTime: durationFromEnv("SCHEDULER_EMP_MAXIMUM_EXECUTION_TIME", 50*time.Minute),
		},
		RunOnStartup: boolFromEnv("IMPORT_RUN_ON_STARTUP", true),

		EventsTopic: stringFromEnv("IMPORT_EVENTS_TOPIC", ""),
	}
	if err := cfg.Validate(); err != nil {
		return ImportConfig{}, err
	}
	return cfg, nil
}

func (c ImportConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid import config: %w", err)
	}
	return nil
}
