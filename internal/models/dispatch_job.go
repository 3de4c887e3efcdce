package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DispatchQueued  = "queued"
	DispatchRunning = "running"
	DispatchDone    = "done"
	DispatchError   = "error"
)

// DispatchJob is one unit of cross-process claimable work, scoped to a trading run.
type DispatchJob struct {
	DispatchID string         `gorm:"column:dispatch_id;type:uuid;primaryKey;default:gen_random_uuid()"`
	JobType    string         `gorm:"column:job_type;type:text;not null;index"`
	RunID      *string        `gorm:"column:run_id;type:uuid;index"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb"`
	Status     string         `gorm:"column:status;type:varchar(16);not null;default:'queued';index"`
	Allowed    bool           `gorm:"column:allowed;not null;default:true"`
	TS         time.Time      `gorm:"column:ts;type:timestamptz;not null;default:now()"`
}

func (DispatchJob) TableName() string {
	return "job_dispatch"
}
