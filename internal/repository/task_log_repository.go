package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"task-audit/internal/model"
)

// TaskLogRepository appends and reads workflow history. It has no update or
// delete methods; the model hooks reject those as well.
type TaskLogRepository struct {
	db *gorm.DB
}

func NewTaskLogRepository(db *gorm.DB) *TaskLogRepository {
	return &TaskLogRepository{db: db}
}

func (r *TaskLogRepository) Append(ctx context.Context, entry *model.TaskLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append task log: %w", err)
	}
	return nil
}

// ListByTask returns the history of a task, oldest first.
func (r *TaskLogRepository) ListByTask(ctx context.Context, taskID uint) ([]model.TaskLog, error) {
	var entries []model.TaskLog
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("timestamp ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	return entries, nil
}
