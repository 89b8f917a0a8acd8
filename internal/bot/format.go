package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-audit/internal/model"
	"task-audit/internal/service"
)

const (
	cbViewPrefix   = "view:"
	cbActionPrefix = "act:"
)

const (
	btnConfirm      = "✅ Confirm"
	btnCancel       = "↩️ Back"
	btnCancelDialog = "⏪ Cancel input"
	iconDefault     = "🟢"
	iconDue         = "⏳"
	iconOverdue     = "⚠️"
	menuLabelTasks  = "📋 Tasks"
	menuLabelAudits = "🔍 Audits"
	menuLabelReport = "📨 Report"
	menuLabelHelp   = "ℹ️ Help"
)

type callbackData struct {
	action model.Action
	taskID uint
}

func viewCallback(taskID uint) string {
	return fmt.Sprintf("%s%d", cbViewPrefix, taskID)
}

func actionCallback(action model.Action, taskID uint) string {
	return fmt.Sprintf("%s%s:%d", cbActionPrefix, action, taskID)
}

// parseCallback decodes inline button data. An empty action means "show the task".
func parseCallback(data string) (callbackData, error) {
	switch {
	case strings.HasPrefix(data, cbViewPrefix):
		id, err := parseTaskID(strings.TrimPrefix(data, cbViewPrefix))
		if err != nil {
			return callbackData{}, err
		}
		return callbackData{taskID: id}, nil
	case strings.HasPrefix(data, cbActionPrefix):
		parts := strings.Split(strings.TrimPrefix(data, cbActionPrefix), ":")
		if len(parts) != 2 {
			return callbackData{}, fmt.Errorf("malformed callback %q", data)
		}
		action := model.Action(parts[0])
		if !knownAction(action) {
			return callbackData{}, fmt.Errorf("unknown action %q", parts[0])
		}
		id, err := parseTaskID(parts[1])
		if err != nil {
			return callbackData{}, err
		}
		return callbackData{action: action, taskID: id}, nil
	default:
		return callbackData{}, fmt.Errorf("unknown callback %q", data)
	}
}

func knownAction(action model.Action) bool {
	switch action {
	case model.ActionStart, model.ActionComplete, model.ActionPassAudit, model.ActionFailAudit, model.ActionCancel:
		return true
	}
	return false
}

func parseTaskID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil {
		return 0, err
	}
	if value == 0 {
		return 0, fmt.Errorf("task id must be positive")
	}
	return uint(value), nil
}

// parseIDArgs splits "12 some notes" into the id and the remaining text.
func parseIDArgs(args string) (uint, string, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0, "", fmt.Errorf("missing task id")
	}
	head, rest, _ := strings.Cut(args, " ")
	id, err := parseTaskID(head)
	if err != nil {
		return 0, "", err
	}
	return id, strings.TrimSpace(rest), nil
}

// splitSheetArgs separates "<sheet link> [notes]".
func splitSheetArgs(args string) (string, string) {
	head, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	return head, strings.TrimSpace(rest)
}

func sheetLinkPrompt(taskID uint) string {
	return fmt.Sprintf("📎 Task #%d: send the Google Sheets link with your work, optionally followed by notes.", taskID)
}

func describeError(err error) string {
	var transitionErr *service.TransitionError
	switch {
	case errors.As(err, &transitionErr):
		return "⛔ " + escape(transitionErr.Reason) + "."
	case errors.Is(err, service.ErrMissingRequiredField):
		return "✏️ " + escape(err.Error()) + "."
	case errors.Is(err, service.ErrNoAuditorAvailable):
		return "🙈 No auditor is available right now. The task stays in progress."
	case errors.Is(err, service.ErrTaskNotFound):
		return "Task not found."
	case errors.Is(err, service.ErrInvalidInput):
		return "⚠️ " + escape(strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")) + "."
	case errors.Is(err, service.ErrForbidden):
		return "🔒 You do not have access to that."
	default:
		return fmt.Sprintf("Error: %s", escape(err.Error()))
	}
}

func actionVerb(action model.Action) string {
	switch action {
	case model.ActionStart:
		return "Start"
	case model.ActionComplete:
		return "Submit for audit"
	case model.ActionPassAudit:
		return "Pass audit of"
	case model.ActionFailAudit:
		return "Fail audit of"
	case model.ActionCancel:
		return "Cancel"
	default:
		return string(action)
	}
}

func actionButtonLabel(action model.Action) string {
	switch action {
	case model.ActionStart:
		return "▶️ Start"
	case model.ActionComplete:
		return "📤 Submit"
	case model.ActionPassAudit:
		return "✅ Pass"
	case model.ActionFailAudit:
		return "❌ Fail"
	case model.ActionCancel:
		return "🚫 Cancel"
	default:
		return string(action)
	}
}

func formatActionResult(action model.Action, task *model.Task) string {
	title := escape(shortTitle(task.Title, 40))
	switch action {
	case model.ActionStart:
		return fmt.Sprintf("▶️ <code>%s</code> %s is in progress.", task.TicketID, title)
	case model.ActionComplete:
		return fmt.Sprintf("📤 <code>%s</code> %s was sent for audit.", task.TicketID, title)
	case model.ActionPassAudit:
		return fmt.Sprintf("✅ <code>%s</code> %s passed the audit.", task.TicketID, title)
	case model.ActionFailAudit:
		return fmt.Sprintf("❌ <code>%s</code> %s went back to the assignee (revision %d).", task.TicketID, title, task.RevisionCount)
	case model.ActionCancel:
		return fmt.Sprintf("🚫 <code>%s</code> %s was cancelled.", task.TicketID, title)
	default:
		return fmt.Sprintf("<code>%s</code> is now %s.", task.TicketID, task.Status.Label())
	}
}

func statusIcon(task model.Task, now time.Time) string {
	switch {
	case task.Overdue(now):
		return iconOverdue
	case task.PlanDate != nil && !task.Status.Terminal() && task.PlanDate.Sub(now) <= 48*time.Hour:
		return iconDue
	default:
		return iconDefault
	}
}

func formatTaskLine(task model.Task, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> <code>%s</code> %s\n", statusIcon(task, now), task.ID, task.TicketID, escape(shortTitle(task.Title, 48))))
	b.WriteString(fmt.Sprintf("   %s", task.Status.Label()))
	if task.PlanDate != nil {
		b.WriteString(fmt.Sprintf(" · planned %s", task.PlanDate.In(now.Location()).Format("2006-01-02")))
	}
	if task.RevisionCount > 0 {
		b.WriteString(fmt.Sprintf(" · revision %d", task.RevisionCount))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatTaskList(page *service.TaskPage, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Tasks</b> (%d of %d)\n", len(page.Tasks), page.Total))
	b.WriteString("Tap a task to see details and actions.\n\n")
	for _, task := range page.Tasks {
		b.WriteString(formatTaskLine(task, now))
	}
	return strings.TrimSpace(b.String())
}

func formatAuditQueue(queue *service.AuditQueue, now time.Time) string {
	var b strings.Builder
	b.WriteString("🔍 <b>Audit queue</b>\n")
	b.WriteString(fmt.Sprintf("Waiting: %d · Passed: %d · Total: %d\n", queue.Waiting, queue.Passed, queue.Total))
	if len(queue.Pending) == 0 {
		b.WriteString("\nNothing to audit right now.")
		return b.String()
	}
	b.WriteByte('\n')
	for _, task := range queue.Pending {
		b.WriteString(formatTaskLine(task, now))
	}
	return strings.TrimSpace(b.String())
}

func formatTaskCard(task *model.Task, logs []model.TaskLog, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", statusIcon(*task, now), escape(strings.TrimSpace(task.Title))))
	b.WriteString(fmt.Sprintf("<code>%s</code> · #%d\n", task.TicketID, task.ID))
	b.WriteString(fmt.Sprintf("• <b>Status:</b> %s\n", task.Status.Label()))
	if task.PlanDate != nil {
		planned := task.PlanDate.In(now.Location()).Format("2006-01-02")
		if task.Overdue(now) {
			b.WriteString(fmt.Sprintf("• <b>Planned:</b> %s, <b>overdue</b>\n", planned))
		} else {
			b.WriteString(fmt.Sprintf("• <b>Planned:</b> %s\n", planned))
		}
	}
	if task.RevisionCount > 0 {
		b.WriteString(fmt.Sprintf("• <b>Revisions:</b> %d\n", task.RevisionCount))
	}
	if task.AuditNotes != "" {
		b.WriteString(fmt.Sprintf("• <b>Audit notes:</b> %s\n", escape(task.AuditNotes)))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("\n📝 %s\n", escape(strings.TrimSpace(task.Description))))
	}
	if len(logs) > 0 {
		b.WriteString("\n🕓 <b>History</b>\n")
		for _, entry := range logs {
			b.WriteString(fmt.Sprintf("• %s %s → %s", entry.Timestamp.In(now.Location()).Format("2006-01-02 15:04"),
				entry.PreviousStatus.Label(), entry.NewStatus.Label()))
			if entry.Notes != "" {
				b.WriteString(fmt.Sprintf(": %s", escape(shortTitle(entry.Notes, 60))))
			}
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func taskListKeyboard(tasks []model.Task) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		label := fmt.Sprintf("#%d · %s", task.ID, shortTitle(task.Title, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, viewCallback(task.ID))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func actionKeyboard(taskID uint, actions []model.Action) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, action := range actions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(actionButtonLabel(action), actionCallback(action, taskID)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelAudits),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelReport),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "back" || value == "no"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel input"
}
