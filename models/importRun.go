package models

import "time"

const (
	ImportDatasetOrganization = "organization"
	ImportDatasetEmployee     = "employee"
)

const (
	ImportRunStatusRunning = "running"
	ImportRunStatusSuccess = "success"
	ImportRunStatusFailed  = "failed"
)

const (
	ImportTriggeredSchedule = "schedule"
	ImportTriggeredManual   = "manual"
	ImportTriggeredStartup  = "startup"
)

// ImportRun is the history record of one dataset phase.
type ImportRun struct {
	ID                   uint       `gorm:"primary_key" json:"id"`
	RunId                string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	Dataset              string     `gorm:"size:20;index;not null" json:"dataset"`
	Status               string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy          string     `gorm:"size:20" json:"triggered_by"`
	SourceFile           string     `gorm:"size:512" json:"source_file"`
	RowsRead             int        `json:"rows_read"`
	RowsWritten          int        `json:"rows_written"`
	Batches              int        `json:"batches"`
	OrgsCorrected        int        `json:"orgs_corrected"`
	EmployeesDeactivated int64      `json:"employees_deactivated"`
	Error                *string    `gorm:"type:text" json:"error"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at"`
	DurationMs           int64      `json:"duration_ms"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ImportRun) TableName() string { return "import_run" }
