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

// WorkflowService applies status transitions. Every call updates the task and
// appends its log row in one transaction, or changes nothing.
type WorkflowService struct {
	store    *repository.Store
	picker   *AuditorPicker
	now      func() time.Time
	validate *validator.Validate
}

func NewWorkflowService(store *repository.Store, picker *AuditorPicker, now func() time.Time) *WorkflowService {
	if now == nil {
		now = time.Now
	}
	return &WorkflowService{store: store, picker: picker, now: now, validate: newSubmissionValidator()}
}

// operation describes one workflow call. path is walked from the current
// status; every step but the last is transient and never stored.
type operation struct {
	action  model.Action
	path    []model.TaskStatus
	allowed func(actor *model.User, task *model.Task) bool
	denied  string
	apply   func(ctx context.Context, tx *repository.Store, task *model.Task, now time.Time) error
	notes   string
}

// Start moves an assigned task into progress. Only the assignee may start it.
func (s *WorkflowService) Start(ctx context.Context, actor *model.User, taskID uint) (*model.Task, error) {
	return s.run(ctx, actor, taskID, operation{
		action:  model.ActionStart,
		path:    []model.TaskStatus{model.StatusInProgress},
		allowed: canStart,
		denied:  "only the assignee can start this task",
	})
}

// Complete submits the work with its evidence and hands it to an auditor. The
// task passes through completed and ends under_audit; if nobody can audit it
// the call fails with ErrNoAuditorAvailable and the task stays in progress.
func (s *WorkflowService) Complete(ctx context.Context, actor *model.User, taskID uint, sub Submission) (*model.Task, error) {
	return s.run(ctx, actor, taskID, operation{
		action:  model.ActionComplete,
		path:    []model.TaskStatus{model.StatusCompleted, model.StatusUnderAudit},
		allowed: canComplete,
		denied:  "only the assignee can complete this task",
		notes:   sub.Notes,
		apply: func(ctx context.Context, tx *repository.Store, task *model.Task, now time.Time) error {
			checked, err := s.checkSubmission(sub)
			if err != nil {
				return err
			}
			task.Submission = checked.Type
			task.SheetURL = checked.SheetURL
			task.CompletedAt = &now
			auditorID, err := s.selectAuditor(ctx, tx, task)
			if err != nil {
				return err
			}
			task.AuditorID = &auditorID
			return nil
		},
	})
}

// PassAudit accepts the work. The task is finished afterwards.
func (s *WorkflowService) PassAudit(ctx context.Context, actor *model.User, taskID uint, notes string) (*model.Task, error) {
	return s.run(ctx, actor, taskID, operation{
		action:  model.ActionPassAudit,
		path:    []model.TaskStatus{model.StatusAuditPassed},
		allowed: canJudgeAudit,
		denied:  "only the assigned auditor or a manager can audit this task",
		notes:   notes,
		apply: func(_ context.Context, _ *repository.Store, task *model.Task, now time.Time) error {
			task.AuditedAt = &now
			task.AuditNotes = strings.TrimSpace(notes)
			return nil
		},
	})
}

// FailAudit rejects the work and returns the task to its assignee for another
// revision. Notes are mandatory; newPlanDate optionally moves the deadline.
func (s *WorkflowService) FailAudit(ctx context.Context, actor *model.User, taskID uint, notes string, newPlanDate *time.Time) (*model.Task, error) {
	return s.run(ctx, actor, taskID, operation{
		action:  model.ActionFailAudit,
		path:    []model.TaskStatus{model.StatusAuditFailed, model.StatusInProgress},
		allowed: canJudgeAudit,
		denied:  "only the assigned auditor or a manager can audit this task",
		notes:   notes,
		apply: func(_ context.Context, _ *repository.Store, task *model.Task, now time.Time) error {
			trimmed := strings.TrimSpace(notes)
			if trimmed == "" {
				return &FieldError{Field: "notes"}
			}
			task.AuditedAt = &now
			task.AuditNotes = trimmed
			task.RevisionCount++
			if newPlanDate != nil {
				planDate := *newPlanDate
				task.PlanDate = &planDate
			}
			return nil
		},
	})
}

// Cancel stops a task that has not finished. Managers and admins only.
func (s *WorkflowService) Cancel(ctx context.Context, actor *model.User, taskID uint, notes string) (*model.Task, error) {
	return s.run(ctx, actor, taskID, operation{
		action:  model.ActionCancel,
		path:    []model.TaskStatus{model.StatusCancelled},
		allowed: canCancel,
		denied:  "only managers can cancel tasks",
		notes:   notes,
	})
}

func (s *WorkflowService) run(ctx context.Context, actor *model.User, taskID uint, op operation) (*model.Task, error) {
	if actor == nil {
		return nil, &TransitionError{Op: op.action, Reason: "no acting user"}
	}

	var result *model.Task
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		task, err := tx.Tasks.FindByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		from := task.Status
		to := from
		for _, step := range op.path {
			if !to.CanTransitionTo(step) {
				return &TransitionError{Op: op.action, From: from, Reason: fmt.Sprintf("not allowed from %s", from)}
			}
			to = step
		}
		if !op.allowed(actor, task) {
			reason := op.denied
			if !actor.IsActive {
				reason = "acting user is deactivated"
			}
			return &TransitionError{Op: op.action, From: from, Reason: reason}
		}

		now := s.now().UTC()
		if op.apply != nil {
			if err := op.apply(ctx, tx, task, now); err != nil {
				return err
			}
		}

		task.Status = to
		if err := tx.Tasks.SaveWorkflow(ctx, task, from); err != nil {
			if errors.Is(err, repository.ErrStaleTask) {
				return &TransitionError{Op: op.action, From: from, Reason: "task was changed by someone else"}
			}
			return err
		}

		entry := &model.TaskLog{
			TaskID:         task.ID,
			UserID:         actor.ID,
			Action:         op.action,
			PreviousStatus: from,
			NewStatus:      to,
			Notes:          strings.TrimSpace(op.notes),
			Timestamp:      now,
		}
		if err := tx.Logs.Append(ctx, entry); err != nil {
			return err
		}

		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[info] task %s %s by user=%d -> %s", result.TicketID, op.action, actor.ID, result.Status)
	return result, nil
}

// selectAuditor keeps the auditor of an earlier revision when still eligible,
// otherwise picks a new one at random.
func (s *WorkflowService) selectAuditor(ctx context.Context, tx *repository.Store, task *model.Task) (uint, error) {
	if task.AuditorID != nil {
		current, err := tx.Users.FindByID(ctx, *task.AuditorID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return 0, err
		}
		if err == nil && eligibleAuditor(current, task.AssignedToID) {
			return current.ID, nil
		}
	}

	candidates, err := tx.Users.ListEligibleAuditors(ctx, task.AssignedToID)
	if err != nil {
		return 0, err
	}
	picked, ok := s.picker.Pick(candidates)
	if !ok {
		return 0, ErrNoAuditorAvailable
	}
	return picked.ID, nil
}
