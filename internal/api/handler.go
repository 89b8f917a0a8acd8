package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"task-audit/internal/model"
	"task-audit/internal/service"
)

// Handler serves the JSON API on top of the services.
type Handler struct {
	tasks    *service.TaskService
	workflow *service.WorkflowService
	users    *service.UserService
	tokens   *TokenManager
}

func NewHandler(tasks *service.TaskService, workflow *service.WorkflowService, users *service.UserService, tokens *TokenManager) *Handler {
	return &Handler{tasks: tasks, workflow: workflow, users: users, tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createTaskRequest struct {
	Title        string                 `json:"title" binding:"required"`
	Description  string                 `json:"description"`
	AssignedToID uint                   `json:"assigned_to_id" binding:"required"`
	PlanDate     *dateValue             `json:"plan_date"`
	Content      map[string]interface{} `json:"content"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type completeRequest struct {
	Notes          string `json:"notes"`
	SubmissionType string `json:"submission_type"`
	SheetURL       string `json:"sheet_url"`
}

type failAuditRequest struct {
	Notes       string     `json:"notes"`
	NewPlanDate *dateValue `json:"new_plan_date"`
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type taskDetail struct {
	Task    *model.Task     `json:"task"`
	Logs    []model.TaskLog `json:"logs"`
	Actions []model.Action  `json:"actions"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		respondError(c, fmt.Errorf("issue token: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expires, "user": user})
}

func (h *Handler) ListTasks(c *gin.Context) {
	opts := service.ListOptions{
		Status: model.TaskStatus(c.Query("status")),
		Search: c.Query("search"),
	}
	opts.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	opts.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "10"))

	page, err := h.tasks.ListVisible(c.Request.Context(), actorFrom(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), actorFrom(c), service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssignedToID,
		PlanDate:    req.PlanDate.timePtr(),
		Content:     req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) GetTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	actor := actorFrom(c)
	task, err := h.tasks.Get(ctx, actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	logs, err := h.tasks.History(ctx, actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskDetail{Task: task, Logs: logs, Actions: service.AvailableActions(actor, task)})
}

func (h *Handler) StartTask(c *gin.Context) {
	h.transition(c, func(ctx context.Context, actor *model.User, id uint) (*model.Task, error) {
		return h.workflow.Start(ctx, actor, id)
	})
}

func (h *Handler) CompleteTask(c *gin.Context) {
	var req completeRequest
	if !bindOptional(c, &req) {
		return
	}
	sub := service.Submission{
		Type:     model.SubmissionType(req.SubmissionType),
		SheetURL: req.SheetURL,
		Notes:    req.Notes,
	}
	h.transition(c, func(ctx context.Context, actor *model.User, id uint) (*model.Task, error) {
		return h.workflow.Complete(ctx, actor, id, sub)
	})
}

func (h *Handler) PassAudit(c *gin.Context) {
	var req notesRequest
	if !bindOptional(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, actor *model.User, id uint) (*model.Task, error) {
		return h.workflow.PassAudit(ctx, actor, id, req.Notes)
	})
}

func (h *Handler) FailAudit(c *gin.Context) {
	var req failAuditRequest
	if !bindOptional(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, actor *model.User, id uint) (*model.Task, error) {
		return h.workflow.FailAudit(ctx, actor, id, req.Notes, req.NewPlanDate.timePtr())
	})
}

func (h *Handler) CancelTask(c *gin.Context) {
	var req notesRequest
	if !bindOptional(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, actor *model.User, id uint) (*model.Task, error) {
		return h.workflow.Cancel(ctx, actor, id, req.Notes)
	})
}

func (h *Handler) transition(c *gin.Context, op func(context.Context, *model.User, uint) (*model.Task, error)) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	task, err := op(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) AuditQueue(c *gin.Context) {
	queue, err := h.tasks.AuditQueue(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.tasks.Stats(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	var role model.Role
	if req.Role != "" {
		parsed, err := model.ParseRole(req.Role)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		role = parsed
	}

	user, err := h.users.CreateUser(c.Request.Context(), actorFrom(c), service.UserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ToggleUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	user, err := h.users.ToggleActive(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		abortWithError(c, http.StatusBadRequest, "invalid_input", "invalid id")
		return 0, false
	}
	return uint(id), true
}

// bindOptional accepts an empty body for endpoints whose fields are all optional.
func bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return false
	}
	return true
}
