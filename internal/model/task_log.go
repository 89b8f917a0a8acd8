package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrLogImmutable is returned when something tries to rewrite history.
var ErrLogImmutable = errors.New("task log rows are append-only")

// Action names the workflow operation recorded by a log row.
type Action string

const (
	ActionStart     Action = "start"
	ActionComplete  Action = "complete"
	ActionPassAudit Action = "pass_audit"
	ActionFailAudit Action = "fail_audit"
	ActionCancel    Action = "cancel"
)

// TaskLog is one append-only entry per workflow operation.
type TaskLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	TaskID         uint       `gorm:"index;not null" json:"task_id"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	Action         Action     `gorm:"size:32;not null" json:"action"`
	PreviousStatus TaskStatus `gorm:"size:20;not null" json:"previous_status"`
	NewStatus      TaskStatus `gorm:"size:20;not null" json:"new_status"`
	Notes          string     `json:"notes"`
	Timestamp      time.Time  `gorm:"index;not null" json:"timestamp"`
}

func (TaskLog) BeforeUpdate(*gorm.DB) error {
	return ErrLogImmutable
}

func (TaskLog) BeforeDelete(*gorm.DB) error {
	return ErrLogImmutable
}
