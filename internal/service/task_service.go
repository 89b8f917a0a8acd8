package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"task-audit/internal/model"
	"task-audit/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string `validate:"required,min=5,max=200"`
	Description string `validate:"max=5000"`
	AssigneeID  uint   `validate:"required"`
	PlanDate    *time.Time
	Content     map[string]interface{}
}

// ListOptions controls dashboard listings.
type ListOptions struct {
	Status  model.TaskStatus
	Search  string
	Page    int
	PerPage int
}

// TaskPage is one page of a dashboard listing.
type TaskPage struct {
	Tasks   []model.Task `json:"tasks"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
}

// DashboardStats mirrors the counters shown on the dashboard.
type DashboardStats struct {
	Total      int64 `json:"total"`
	Assigned   int64 `json:"assigned"`
	InProgress int64 `json:"in_progress"`
	UnderAudit int64 `json:"under_audit"`
	Passed     int64 `json:"audit_passed"`
	Cancelled  int64 `json:"cancelled"`
}

// AuditQueue lists the work waiting on an auditor.
type AuditQueue struct {
	Pending []model.Task `json:"pending"`
	Total   int64        `json:"total"`
	Waiting int64        `json:"waiting"`
	Passed  int64        `json:"passed"`
}

var allowedPageSizes = map[int]bool{10: true, 25: true, 50: true, 100: true}

// TaskService wraps task creation and read-side queries.
type TaskService struct {
	store    *repository.Store
	tickets  *TicketGenerator
	validate *validator.Validate
}

func NewTaskService(store *repository.Store, tickets *TicketGenerator) *TaskService {
	return &TaskService{store: store, tickets: tickets, validate: validator.New()}
}

func (s *TaskService) CreateTask(ctx context.Context, actor *model.User, input TaskInput) (*model.Task, error) {
	if !actor.IsActive || !actor.Role.CanManage() {
		return nil, fmt.Errorf("%w: only managers and admins can create tasks", ErrForbidden)
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	assignee, err := s.store.Users.FindByID(ctx, input.AssigneeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: assignee %d", ErrUserNotFound, input.AssigneeID)
		}
		return nil, err
	}
	if !assignee.IsActive {
		return nil, fmt.Errorf("%w: assignee %s is deactivated", ErrInvalidInput, assignee.Username)
	}

	ticketID, err := s.tickets.Next(ctx, s.store.Tasks.TicketExists)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		TicketID:     ticketID,
		Title:        input.Title,
		Description:  input.Description,
		ContentData:  input.Content,
		CreatedByID:  actor.ID,
		AssignedToID: assignee.ID,
		PlanDate:     input.PlanDate,
		Status:       model.StatusAssigned,
	}
	if err := s.store.Tasks.Create(ctx, &task); err != nil {
		return nil, err
	}

	log.Printf("[info] task created ticket=%s by user=%d assignee=%d", task.TicketID, actor.ID, assignee.ID)
	return &task, nil
}

// ListVisible returns the tasks the actor's role lets them see: everything for
// managers, audits for auditors and own assignments for everyone else.
func (s *TaskService) ListVisible(ctx context.Context, actor *model.User, opts ListOptions) (*TaskPage, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, opts.Status)
	}
	if !allowedPageSizes[opts.PerPage] {
		opts.PerPage = 10
	}
	if opts.Page < 1 {
		opts.Page = 1
	}

	filter := visibilityFilter(actor)
	filter.Status = opts.Status
	filter.Search = opts.Search
	filter.Limit = opts.PerPage
	filter.Offset = (opts.Page - 1) * opts.PerPage

	tasks, total, err := s.store.Tasks.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &TaskPage{Tasks: tasks, Total: total, Page: opts.Page, PerPage: opts.PerPage}, nil
}

// Get loads a task the actor is allowed to see.
func (s *TaskService) Get(ctx context.Context, actor *model.User, taskID uint) (*model.Task, error) {
	task, err := s.store.Tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if !canView(actor, task) {
		return nil, fmt.Errorf("%w: you do not have permission to view this task", ErrForbidden)
	}
	return task, nil
}

// History returns the log rows of a visible task, oldest first.
func (s *TaskService) History(ctx context.Context, actor *model.User, taskID uint) ([]model.TaskLog, error) {
	if _, err := s.Get(ctx, actor, taskID); err != nil {
		return nil, err
	}
	return s.store.Logs.ListByTask(ctx, taskID)
}

func (s *TaskService) Stats(ctx context.Context, actor *model.User) (*DashboardStats, error) {
	var filter repository.TaskFilter
	if !actor.Role.CanManage() {
		filter.AssignedToID = &actor.ID
	}
	counts, err := s.store.Tasks.CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		Assigned:   counts[model.StatusAssigned],
		InProgress: counts[model.StatusInProgress],
		UnderAudit: counts[model.StatusUnderAudit],
		Passed:     counts[model.StatusAuditPassed],
		Cancelled:  counts[model.StatusCancelled],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// AuditQueue returns the audits assigned to actor.
func (s *TaskService) AuditQueue(ctx context.Context, actor *model.User) (*AuditQueue, error) {
	if !actor.Role.CanAudit() {
		return nil, fmt.Errorf("%w: auditors only", ErrForbidden)
	}
	filter := repository.TaskFilter{AuditorID: &actor.ID}
	counts, err := s.store.Tasks.CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}

	filter.Status = model.StatusUnderAudit
	pending, _, err := s.store.Tasks.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	queue := &AuditQueue{
		Pending: pending,
		Waiting: counts[model.StatusUnderAudit],
		Passed:  counts[model.StatusAuditPassed],
	}
	for _, n := range counts {
		queue.Total += n
	}
	return queue, nil
}

func visibilityFilter(actor *model.User) repository.TaskFilter {
	switch {
	case actor.Role.CanManage():
		return repository.TaskFilter{}
	case actor.Role == model.RoleAuditor:
		return repository.TaskFilter{AuditorID: &actor.ID}
	default:
		return repository.TaskFilter{AssignedToID: &actor.ID}
	}
}
