package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"task-audit/internal/model"
)

// TaskFilter narrows task listings. Zero values mean "no restriction".
type TaskFilter struct {
	AssignedToID *uint
	AuditorID    *uint
	Status       model.TaskStatus
	Search       string
	Offset       int
	Limit        int
}

// TaskRepository handles persistence for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Omit("Logs").Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, notFound(err, "find task")
	}
	return &task, nil
}

func (r *TaskRepository) TicketExists(ctx context.Context, ticketID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("ticket_id = ?", ticketID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check ticket: %w", err)
	}
	return count > 0, nil
}

// SaveWorkflow writes the workflow columns of task, but only if the stored
// status still equals expected. A mismatch yields ErrStaleTask.
func (r *TaskRepository) SaveWorkflow(ctx context.Context, task *model.Task, expected model.TaskStatus) error {
	task.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ?", task.ID, expected).
		Updates(map[string]interface{}{
			"status":         task.Status,
			"auditor_id":     task.AuditorID,
			"plan_date":      task.PlanDate,
			"completed_at":   task.CompletedAt,
			"audited_at":     task.AuditedAt,
			"revision_count": task.RevisionCount,
			"audit_notes":    task.AuditNotes,
			"submission":     task.Submission,
			"sheet_url":      task.SheetURL,
			"updated_at":     task.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleTask
	}
	return nil
}

// List returns one page of tasks matching filter, most recently updated first,
// along with the total number of matches.
func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]model.Task, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&model.Task{}), filter).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	var tasks []model.Task
	page := query.Order("updated_at DESC, id DESC")
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := page.Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

// CountByStatus groups tasks matching filter by status. Status, Search and
// paging fields of filter are ignored.
func (r *TaskRepository) CountByStatus(ctx context.Context, filter TaskFilter) (map[model.TaskStatus]int64, error) {
	filter.Status = ""
	filter.Search = ""

	var rows []struct {
		Status model.TaskStatus
		Count  int64
	}
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&model.Task{}), filter).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}

	counts := make(map[model.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ListAwaiting returns tasks that wait on userID: work assigned to them that is
// not yet submitted, and audits assigned to them.
func (r *TaskRepository) ListAwaiting(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("(assigned_to_id = ? AND status IN ?) OR (auditor_id = ? AND status = ?)",
			userID, []model.TaskStatus{model.StatusAssigned, model.StatusInProgress},
			userID, model.StatusUnderAudit).
		Order("plan_date IS NULL, plan_date ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list awaiting tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) applyFilter(query *gorm.DB, filter TaskFilter) *gorm.DB {
	if filter.AssignedToID != nil {
		query = query.Where("assigned_to_id = ?", *filter.AssignedToID)
	}
	if filter.AuditorID != nil {
		query = query.Where("auditor_id = ?", *filter.AuditorID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("ticket_id LIKE ? OR title LIKE ? OR description LIKE ?", like, like, like)
	}
	return query
}
