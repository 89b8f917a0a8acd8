package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"task-audit/internal/model"
	"task-audit/internal/repository"
)

// ReminderService builds the periodic digest sent to linked Telegram users.
type ReminderService struct {
	taskRepo *repository.TaskRepository
}

func NewReminderService(taskRepo *repository.TaskRepository) *ReminderService {
	return &ReminderService{taskRepo: taskRepo}
}

// Digest lists the work waiting on user. The second result is false when
// there is nothing to report.
func (s *ReminderService) Digest(ctx context.Context, user model.User, now time.Time) (string, bool, error) {
	tasks, err := s.taskRepo.ListAwaiting(ctx, user.ID)
	if err != nil {
		return "", false, err
	}

	var work, audits []model.Task
	for _, task := range tasks {
		if task.Status == model.StatusUnderAudit {
			audits = append(audits, task)
			continue
		}
		work = append(work, task)
	}
	if len(work) == 0 && len(audits) == 0 {
		return "", false, nil
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Task digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("2006-01-02 15:04")))

	if len(work) > 0 {
		builder.WriteString("\n🔥 <b>Your tasks</b>\n")
		for _, task := range work {
			builder.WriteString(formatDigestTask(task, now))
		}
	}
	if len(audits) > 0 {
		builder.WriteString("\n🔍 <b>Waiting for your audit</b>\n")
		for _, task := range audits {
			builder.WriteString(formatDigestTask(task, now))
		}
	}

	return strings.TrimSpace(builder.String()), true, nil
}

func formatDigestTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case task.Overdue(now):
		icon = "⚠️"
	case task.PlanDate != nil && task.PlanDate.Sub(now) <= 48*time.Hour:
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s <code>%s</code> %s", icon, task.TicketID, html.EscapeString(strings.TrimSpace(task.Title))))
	sb.WriteString(fmt.Sprintf("\n   %s", task.Status.Label()))
	if task.RevisionCount > 0 {
		sb.WriteString(fmt.Sprintf(" · revision %d", task.RevisionCount))
	}

	if task.PlanDate != nil {
		d := task.PlanDate.In(now.Location())
		if task.Overdue(now) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ planned %s, <b>overdue</b>", d.Format("2006-01-02")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ planned %s", d.Format("2006-01-02")))
		}
	}

	if task.Status == model.StatusInProgress && task.AuditNotes != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.AuditNotes))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
