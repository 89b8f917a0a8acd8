package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-audit/internal/model"
	"task-audit/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageFailNotes
	stageSheetLink
)

type conversationState struct {
	stage  conversationStage
	taskID uint
}

type confirmationRequest struct {
	taskID uint
	action model.Action
}

// sender is the part of the Telegram API the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Services groups what the bot needs from the service layer.
type Services struct {
	Users     *service.UserService
	Tasks     *service.TaskService
	Workflow  *service.WorkflowService
	Reminders *service.ReminderService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           *tgbotapi.BotAPI
	out           sender
	users         *service.UserService
	tasks         *service.TaskService
	workflow      *service.WorkflowService
	reminders     *service.ReminderService
	now           func() time.Time
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

func New(token string, svc Services) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	b := newBot(api, svc, time.Now)
	b.api = api
	return b, nil
}

func newBot(out sender, svc Services, now func() time.Time) *Bot {
	return &Bot{
		out:           out,
		users:         svc.Users,
		tasks:         svc.Tasks,
		workflow:      svc.Workflow,
		reminders:     svc.Reminders,
		now:           now,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.resetInput(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if state := b.getConversation(msg.From.ID); state != nil {
		log.Printf("[info] conversation step %d from %d", state.stage, msg.From.ID)
		return b.handleConversation(ctx, msg, state)
	}

	return b.sendText(msg.Chat.ID, "I did not understand that. Try /tasks or /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	// A command abandons whatever input was pending.
	b.resetInput(msg.From.ID)

	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "link":
		return b.handleLink(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "task":
		return b.handleShowTask(ctx, msg)
	case "begin":
		return b.handleWorkflowCommand(ctx, msg, model.ActionStart)
	case "done":
		return b.handleWorkflowCommand(ctx, msg, model.ActionComplete)
	case "pass":
		return b.handleWorkflowCommand(ctx, msg, model.ActionPassAudit)
	case "fail":
		return b.handleWorkflowCommand(ctx, msg, model.ActionFailAudit)
	case "cancel":
		if strings.TrimSpace(msg.CommandArguments()) == "" {
			return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
		}
		return b.handleWorkflowCommand(ctx, msg, model.ActionCancel)
	case "audits":
		return b.handleAudits(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	user, err := b.users.FindByTelegramID(ctx, msg.From.ID)
	if err != nil && !errors.Is(err, service.ErrUserNotFound) {
		return err
	}

	var text string
	if user == nil {
		text = fmt.Sprintf("👋 Hi, %s!\n<b>I keep track of your CRM tasks and audits.</b>\n\n"+
			"Link your account first:\n<code>/link username password</code>", escape(name))
	} else {
		text = fmt.Sprintf("👋 Hi, %s!\nYou are signed in as <b>%s</b> (%s).\n\nSee /help for commands.",
			escape(name), escape(user.Username), user.Role)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /link &lt;username&gt; &lt;password&gt; — connect your CRM account\n" +
		"• /tasks — tasks you can see\n" +
		"• /task &lt;id&gt; — task details and actions\n" +
		"• /begin &lt;id&gt; — start working on a task\n" +
		"• /done &lt;id&gt; &lt;sheet link&gt; [notes] — submit a task for audit\n" +
		"• /pass &lt;id&gt; [notes] — pass an audit\n" +
		"• /fail &lt;id&gt; &lt;notes&gt; — fail an audit and send it back\n" +
		"• /cancel &lt;id&gt; [notes] — cancel a task (managers)\n" +
		"• /audits — your audit queue\n" +
		"• /report — digest of what waits on you\n" +
		"• /cancel — abort the current input"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	// The command carries a password, so drop it from the chat history.
	if _, err := b.out.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		log.Printf("delete link message: %v", err)
	}

	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		return b.sendText(msg.Chat.ID, "Usage: <code>/link username password</code>")
	}

	user, err := b.users.LinkTelegram(ctx, fields[0], fields[1], msg.From.ID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrUserInactive) {
			return b.sendText(msg.Chat.ID, "❌ "+escape(err.Error()))
		}
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔗 Linked to <b>%s</b> (%s).", escape(user.Username), user.Role))
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
	if !ok {
		return err
	}

	log.Printf("[info] list tasks for user=%d", user.ID)
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

func (b *Bot) handleShowTask(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, _, err := parseIDArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give me a task id: /task 12")
	}
	user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
	if !ok {
		return err
	}
	return b.sendTaskCard(ctx, msg.Chat.ID, user, taskID)
}

func (b *Bot) handleWorkflowCommand(ctx context.Context, msg *tgbotapi.Message, action model.Action) error {
	taskID, notes, err := parseIDArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Give me a task id: /%s 12", msg.Command()))
	}
	user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
	if !ok {
		return err
	}
	if action == model.ActionFailAudit && notes == "" {
		b.setConversation(msg.From.ID, &conversationState{stage: stageFailNotes, taskID: taskID})
		return b.sendWithReplyMarkup(msg.Chat.ID, "📝 What needs to be fixed? Send the audit notes.", cancelKeyboard())
	}
	if action == model.ActionComplete && notes == "" {
		b.setConversation(msg.From.ID, &conversationState{stage: stageSheetLink, taskID: taskID})
		return b.sendWithReplyMarkup(msg.Chat.ID, sheetLinkPrompt(taskID), cancelKeyboard())
	}
	return b.applyAction(ctx, msg.Chat.ID, user, action, taskID, notes)
}

func (b *Bot) handleAudits(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
	if !ok {
		return err
	}

	queue, err := b.tasks.AuditQueue(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}

	text := formatAuditQueue(queue, b.now())
	if len(queue.Pending) == 0 {
		return b.sendText(msg.Chat.ID, text)
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, text, taskListKeyboard(queue.Pending))
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
	if !ok {
		return err
	}
	text, pending, err := b.reminders.Digest(ctx, *user, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the digest: %s", escape(err.Error())))
	}
	if !pending {
		return b.sendText(msg.Chat.ID, "🎉 Nothing is waiting on you.")
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	switch state.stage {
	case stageFailNotes:
		notes := strings.TrimSpace(msg.Text)
		if notes == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Notes cannot be empty. What needs to be fixed?", cancelKeyboard())
		}
		b.clearConversation(msg.From.ID)
		user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
		if !ok {
			return err
		}
		return b.applyAction(ctx, msg.Chat.ID, user, model.ActionFailAudit, state.taskID, notes)
	case stageSheetLink:
		args := strings.TrimSpace(msg.Text)
		if args == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, sheetLinkPrompt(state.taskID), cancelKeyboard())
		}
		b.clearConversation(msg.From.ID)
		user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
		if !ok {
			return err
		}
		return b.applyAction(ctx, msg.Chat.ID, user, model.ActionComplete, state.taskID, args)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Conversation reset.")
	}
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		user, ok, err := b.requireUser(ctx, msg.Chat.ID, msg.From)
		if !ok {
			return err
		}
		return b.applyAction(ctx, msg.Chat.ID, user, req.action, req.taskID, "")
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("Confirm or go back: %s task #%d?", actionVerb(req.action), req.taskID), confirmKeyboard())
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.out.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	parsed, err := parseCallback(cb.Data)
	if err != nil {
		return nil
	}
	log.Printf("[info] callback %s user=%d task=%d", cb.Data, cb.From.ID, parsed.taskID)

	chatID := cb.Message.Chat.ID
	user, ok, err := b.requireUser(ctx, chatID, cb.From)
	if !ok {
		return err
	}
	b.resetInput(cb.From.ID)

	switch parsed.action {
	case "":
		return b.sendTaskCard(ctx, chatID, user, parsed.taskID)
	case model.ActionFailAudit:
		b.setConversation(cb.From.ID, &conversationState{stage: stageFailNotes, taskID: parsed.taskID})
		return b.sendWithReplyMarkup(chatID, fmt.Sprintf("📝 Task #%d: what needs to be fixed?", parsed.taskID), cancelKeyboard())
	case model.ActionComplete:
		b.setConversation(cb.From.ID, &conversationState{stage: stageSheetLink, taskID: parsed.taskID})
		return b.sendWithReplyMarkup(chatID, sheetLinkPrompt(parsed.taskID), cancelKeyboard())
	case model.ActionCancel:
		b.setConfirmation(cb.From.ID, confirmationRequest{taskID: parsed.taskID, action: parsed.action})
		return b.sendWithReplyMarkup(chatID, fmt.Sprintf("%s task #%d?", actionVerb(parsed.action), parsed.taskID), confirmKeyboard())
	default:
		return b.applyAction(ctx, chatID, user, parsed.action, parsed.taskID, "")
	}
}

// applyAction runs one workflow operation. For completion, notes carries the
// sheet link followed by optional notes.
func (b *Bot) applyAction(ctx context.Context, chatID int64, user *model.User, action model.Action, taskID uint, notes string) error {
	var (
		task *model.Task
		err  error
	)
	switch action {
	case model.ActionStart:
		task, err = b.workflow.Start(ctx, user, taskID)
	case model.ActionComplete:
		sheetURL, rest := splitSheetArgs(notes)
		task, err = b.workflow.Complete(ctx, user, taskID, service.SheetSubmission(sheetURL, rest))
	case model.ActionPassAudit:
		task, err = b.workflow.PassAudit(ctx, user, taskID, notes)
	case model.ActionFailAudit:
		task, err = b.workflow.FailAudit(ctx, user, taskID, notes, nil)
	case model.ActionCancel:
		task, err = b.workflow.Cancel(ctx, user, taskID, notes)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return b.sendTextWithRemove(chatID, describeError(err))
	}
	return b.sendTextWithRemove(chatID, formatActionResult(action, task))
}

// SendDigests sends the digest to every linked account with pending work.
func (b *Bot) SendDigests(ctx context.Context) error {
	users, err := b.users.ListLinked(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramID == nil {
			continue
		}
		text, pending, err := b.reminders.Digest(ctx, user, now)
		if err != nil {
			log.Printf("build digest for user %d: %v", user.ID, err)
			continue
		}
		if !pending {
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			log.Printf("send digest to %d: %v", *user.TelegramID, err)
		}
	}
	return nil
}

// requireUser resolves the linked account. When it returns false the caller
// should return the error as is; a nil error means the user was told to link.
func (b *Bot) requireUser(ctx context.Context, chatID int64, from *tgbotapi.User) (*model.User, bool, error) {
	user, err := b.users.FindByTelegramID(ctx, from.ID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return nil, false, b.sendText(chatID, "🔒 Link your account first: <code>/link username password</code>")
		}
		return nil, false, err
	}
	if !user.IsActive {
		return nil, false, b.sendText(chatID, "🔒 Your account is deactivated.")
	}
	return user, true, nil
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	page, err := b.tasks.ListVisible(ctx, user, service.ListOptions{PerPage: 10})
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	if len(page.Tasks) == 0 {
		return b.sendText(chatID, "📭 No tasks for you right now.")
	}

	text := formatTaskList(page, b.now())
	return b.sendWithReplyMarkup(chatID, text, taskListKeyboard(page.Tasks))
}

func (b *Bot) sendTaskCard(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.tasks.Get(ctx, user, taskID)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	logs, err := b.tasks.History(ctx, user, taskID)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}

	text := formatTaskCard(task, logs, b.now())
	actions := service.AvailableActions(user, task)
	if len(actions) == 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, actionKeyboard(task.ID, actions))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelTasks):
		b.resetInput(msg.From.ID)
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelAudits):
		b.resetInput(msg.From.ID)
		return true, b.handleAudits(ctx, msg)
	case strings.ToLower(menuLabelReport):
		return true, b.handleReport(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.out.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Main menu")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

// resetInput drops any pending conversation or confirmation for the user.
func (b *Bot) resetInput(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
	delete(b.confirmations, userID)
}
