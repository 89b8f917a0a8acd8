package model

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionType says what evidence an assignee handed in with completed work.
type SubmissionType string

const SubmissionSheetLink SubmissionType = "sheet_link"

// Task is a unit of work moving through the audit workflow.
type Task struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	TicketID      string            `gorm:"size:20;uniqueIndex;not null" json:"ticket_id"`
	Title         string            `gorm:"size:200;not null" json:"title"`
	Description   string            `json:"description"`
	ContentData   datatypes.JSONMap `gorm:"type:json" json:"content,omitempty"`
	CreatedByID   uint              `gorm:"index;not null" json:"created_by_id"`
	AssignedToID  uint              `gorm:"index;not null" json:"assigned_to_id"`
	AuditorID     *uint             `gorm:"index" json:"auditor_id"`
	PlanDate      *time.Time        `json:"plan_date"`
	CompletedAt   *time.Time        `json:"completed_at"`
	AuditedAt     *time.Time        `json:"audited_at"`
	RevisionCount int               `gorm:"not null;default:0" json:"revision_count"`
	AuditNotes    string            `json:"audit_notes"`
	Submission    SubmissionType    `gorm:"size:20" json:"submission_type,omitempty"`
	SheetURL      string            `gorm:"size:500" json:"sheet_url,omitempty"`
	Status        TaskStatus        `gorm:"size:20;not null;default:assigned;index" json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Logs          []TaskLog         `gorm:"foreignKey:TaskID" json:"-"`
}

// Overdue reports whether the plan date has passed for unfinished work.
func (t Task) Overdue(now time.Time) bool {
	if t.PlanDate == nil || t.Status.Terminal() || t.Status == StatusUnderAudit {
		return false
	}
	return now.After(t.PlanDate.Add(24 * time.Hour))
}
