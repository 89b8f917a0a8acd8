package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"task-audit/internal/model"
	"task-audit/internal/repository"
)

var fixedNow = time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *repository.Store
	workflow *WorkflowService
	tasks    *TaskService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := repository.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clock := func() time.Time { return fixedNow }
	tickets, err := NewTicketGenerator(clock)
	require.NoError(t, err)

	store := repository.NewStore(db)
	return &fixture{
		store:    store,
		workflow: NewWorkflowService(store, NewAuditorPicker(rand.NewSource(1)), clock),
		tasks:    NewTaskService(store, tickets),
		users:    NewUserService(store.Users, NewPasswordHasher(bcrypt.MinCost)),
	}
}

func (f *fixture) user(t *testing.T, username string, role model.Role) *model.User {
	t.Helper()

	user := &model.User{
		Username:     username,
		Email:        username + "@crm.test",
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, f.store.Users.Create(context.Background(), user))
	return user
}

func (f *fixture) deactivate(t *testing.T, user *model.User) {
	t.Helper()

	require.NoError(t, f.store.Users.SetActive(context.Background(), user.ID, false))
	user.IsActive = false
}

func (f *fixture) task(t *testing.T, creator, assignee *model.User) *model.Task {
	t.Helper()

	task, err := f.tasks.CreateTask(context.Background(), creator, TaskInput{
		Title:      "Write landing page copy",
		AssigneeID: assignee.ID,
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) logs(t *testing.T, taskID uint) []model.TaskLog {
	t.Helper()

	entries, err := f.store.Logs.ListByTask(context.Background(), taskID)
	require.NoError(t, err)
	return entries
}

func (f *fixture) reload(t *testing.T, taskID uint) *model.Task {
	t.Helper()

	task, err := f.store.Tasks.FindByID(context.Background(), taskID)
	require.NoError(t, err)
	return task
}

const testSheetURL = "https://docs.google.com/spreadsheets/d/1AbC-dEf_42/edit#gid=0"

func sheet(notes string) Submission {
	return SheetSubmission(testSheetURL, notes)
}
