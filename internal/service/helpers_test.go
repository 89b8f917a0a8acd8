package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"task-audit/internal/model"
)

func TestPasswordHasher(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, hasher.Verify("correct horse", hash))
	assert.False(t, hasher.Verify("wrong horse", hash))
	assert.False(t, hasher.Verify("correct horse", "not-a-hash"))

	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(99).cost)
}

func TestTicketGenerator_Next(t *testing.T) {
	gen, err := NewTicketGenerator(func() time.Time { return fixedNow })
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("free id", func(t *testing.T) {
		id, err := gen.Next(ctx, func(context.Context, string) (bool, error) { return false, nil })
		require.NoError(t, err)
		assert.Regexp(t, `^TKT-20250131-[A-Z0-9]{4}$`, id)
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		id, err := gen.Next(ctx, func(context.Context, string) (bool, error) {
			calls++
			return calls < 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, strings.HasPrefix(id, "TKT-20250131-"))
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		_, err := gen.Next(ctx, func(context.Context, string) (bool, error) {
			calls++
			return true, nil
		})
		assert.Error(t, err)
		assert.Equal(t, ticketMaxAttempts, calls)
	})

	t.Run("lookup error", func(t *testing.T) {
		boom := errors.New("db down")
		_, err := gen.Next(ctx, func(context.Context, string) (bool, error) { return false, boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestAuditorPicker(t *testing.T) {
	candidates := []model.User{{ID: 1}, {ID: 2}, {ID: 3}}

	_, ok := NewAuditorPicker(rand.NewSource(1)).Pick(nil)
	assert.False(t, ok)

	a := NewAuditorPicker(rand.NewSource(7))
	b := NewAuditorPicker(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		first, ok := a.Pick(candidates)
		require.True(t, ok)
		second, _ := b.Pick(candidates)
		assert.Equal(t, first.ID, second.ID, "same seed must give the same sequence")
	}
}

func TestAvailableActions(t *testing.T) {
	auditorID := uint(3)
	assignee := &model.User{ID: 1, Role: model.RoleAssignee, IsActive: true}
	manager := &model.User{ID: 2, Role: model.RoleManager, IsActive: true}
	auditor := &model.User{ID: 3, Role: model.RoleAuditor, IsActive: true}
	stranger := &model.User{ID: 4, Role: model.RoleAuditor, IsActive: true}
	inactive := &model.User{ID: 1, Role: model.RoleAssignee}

	task := func(status model.TaskStatus) *model.Task {
		return &model.Task{AssignedToID: 1, CreatedByID: 2, AuditorID: &auditorID, Status: status}
	}

	tests := []struct {
		name   string
		actor  *model.User
		status model.TaskStatus
		want   []model.Action
	}{
		{"assignee on assigned", assignee, model.StatusAssigned, []model.Action{model.ActionStart}},
		{"assignee on in progress", assignee, model.StatusInProgress, []model.Action{model.ActionComplete}},
		{"assignee under audit", assignee, model.StatusUnderAudit, nil},
		{"inactive assignee", inactive, model.StatusAssigned, nil},
		{"auditor under audit", auditor, model.StatusUnderAudit, []model.Action{model.ActionPassAudit, model.ActionFailAudit}},
		{"stranger under audit", stranger, model.StatusUnderAudit, nil},
		{"manager on assigned", manager, model.StatusAssigned, []model.Action{model.ActionCancel}},
		{"manager under audit", manager, model.StatusUnderAudit, []model.Action{model.ActionPassAudit, model.ActionFailAudit, model.ActionCancel}},
		{"manager on passed", manager, model.StatusAuditPassed, nil},
		{"manager on cancelled", manager, model.StatusCancelled, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableActions(tt.actor, task(tt.status)))
		})
	}

	assert.True(t, canView(auditor, task(model.StatusUnderAudit)))
	assert.True(t, canView(manager, task(model.StatusAssigned)))
	assert.False(t, canView(stranger, task(model.StatusAssigned)))
}

func TestTransitionErrorMessage(t *testing.T) {
	err := error(&TransitionError{Op: model.ActionStart, From: model.StatusCancelled, Reason: "not allowed from cancelled"})
	assert.EqualError(t, err, "cannot start task in status cancelled: not allowed from cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, &FieldError{Field: "notes"}, "notes is required")
}
