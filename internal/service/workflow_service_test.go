package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-audit/internal/model"
)

func TestWorkflow_StartAndCompleteAssignsAuditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	auditor := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)

	started, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, started.Status)

	completed, err := f.workflow.Complete(ctx, assignee, task.ID, sheet("done"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderAudit, completed.Status)
	require.NotNil(t, completed.AuditorID)
	assert.Equal(t, auditor.ID, *completed.AuditorID)
	assert.Equal(t, 0, completed.RevisionCount)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, completed.CompletedAt.Equal(fixedNow))

	stored := f.reload(t, task.ID)
	assert.Equal(t, model.StatusUnderAudit, stored.Status)
	assert.Equal(t, auditor.ID, *stored.AuditorID)
	assert.Equal(t, model.SubmissionSheetLink, stored.Submission)
	assert.Equal(t, testSheetURL, stored.SheetURL)

	entries := f.logs(t, task.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionStart, entries[0].Action)
	assert.Equal(t, model.StatusAssigned, entries[0].PreviousStatus)
	assert.Equal(t, model.StatusInProgress, entries[0].NewStatus)
	assert.Equal(t, model.ActionComplete, entries[1].Action)
	assert.Equal(t, model.StatusInProgress, entries[1].PreviousStatus)
	assert.Equal(t, model.StatusUnderAudit, entries[1].NewStatus)
	assert.Equal(t, "done", entries[1].Notes)
	assert.Equal(t, assignee.ID, entries[1].UserID)
}

func TestWorkflow_CompleteRequiresSheetSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		sub     Submission
		wantErr error
	}{
		{name: "no submission", sub: Submission{Notes: "done"}, wantErr: ErrMissingRequiredField},
		{name: "empty sheet url", sub: SheetSubmission("  ", ""), wantErr: ErrMissingRequiredField},
		{name: "not a url", sub: SheetSubmission("my sheet", ""), wantErr: ErrInvalidInput},
		{name: "other google doc", sub: SheetSubmission("https://docs.google.com/document/d/1AbC/edit", ""), wantErr: ErrInvalidInput},
		{name: "plain http", sub: SheetSubmission("http://docs.google.com/spreadsheets/d/1AbC", ""), wantErr: ErrInvalidInput},
		{name: "other host", sub: SheetSubmission("https://example.com/spreadsheets/d/1AbC", ""), wantErr: ErrInvalidInput},
		{name: "unknown type", sub: Submission{Type: "document", SheetURL: testSheetURL}, wantErr: ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.workflow.Complete(ctx, assignee, task.ID, tt.sub)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored := f.reload(t, task.ID)
	assert.Equal(t, model.StatusInProgress, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Empty(t, stored.SheetURL)
	assert.Len(t, f.logs(t, task.ID), 1)

	completed, err := f.workflow.Complete(ctx, assignee, task.ID, SheetSubmission("  "+testSheetURL+" ", ""))
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderAudit, completed.Status)
	assert.Equal(t, testSheetURL, completed.SheetURL)
}

func TestWorkflow_FailAuditReturnsTaskToAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	auditor := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)

	newPlan := fixedNow.Add(72 * time.Hour)
	failed, err := f.workflow.FailAudit(ctx, auditor, task.ID, "fix X", &newPlan)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, failed.Status)
	assert.Equal(t, 1, failed.RevisionCount)
	assert.Equal(t, "fix X", failed.AuditNotes)
	require.NotNil(t, failed.PlanDate)
	assert.True(t, failed.PlanDate.Equal(newPlan))

	stored := f.reload(t, task.ID)
	assert.Equal(t, model.StatusInProgress, stored.Status)
	assert.Equal(t, 1, stored.RevisionCount)
	assert.Equal(t, "fix X", stored.AuditNotes)

	entries := f.logs(t, task.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, model.ActionFailAudit, entries[2].Action)
	assert.Equal(t, model.StatusUnderAudit, entries[2].PreviousStatus)
	assert.Equal(t, model.StatusInProgress, entries[2].NewStatus)
	assert.Equal(t, "fix X", entries[2].Notes)
}

func TestWorkflow_FailAuditRequiresNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	auditor := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)

	for _, notes := range []string{"", "   \n\t"} {
		_, err := f.workflow.FailAudit(ctx, auditor, task.ID, notes, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingRequiredField))

		var fieldErr *FieldError
		require.True(t, errors.As(err, &fieldErr))
		assert.Equal(t, "notes", fieldErr.Field)
	}

	stored := f.reload(t, task.ID)
	assert.Equal(t, model.StatusUnderAudit, stored.Status)
	assert.Equal(t, 0, stored.RevisionCount)
	assert.Len(t, f.logs(t, task.ID), 2)
}

func TestWorkflow_PassAuditFinishesTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	auditor := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)

	passed, err := f.workflow.PassAudit(ctx, auditor, task.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAuditPassed, passed.Status)
	assert.Equal(t, "looks good", passed.AuditNotes)
	require.NotNil(t, passed.AuditedAt)

	_, err = f.workflow.Cancel(ctx, auditor, task.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWorkflow_CancelledTaskRejectsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)

	cancelled, err := f.workflow.Cancel(ctx, manager, task.ID, "client withdrew")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	calls := map[string]func() error{
		"start": func() error {
			_, err := f.workflow.Start(ctx, assignee, task.ID)
			return err
		},
		"complete": func() error {
			_, err := f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
			return err
		},
		"pass": func() error {
			_, err := f.workflow.PassAudit(ctx, manager, task.ID, "")
			return err
		},
		"fail": func() error {
			_, err := f.workflow.FailAudit(ctx, manager, task.ID, "fix", nil)
			return err
		},
		"cancel": func() error {
			_, err := f.workflow.Cancel(ctx, manager, task.ID, "")
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			assert.ErrorIs(t, err, ErrInvalidTransition)

			var transitionErr *TransitionError
			require.True(t, errors.As(err, &transitionErr))
			assert.Equal(t, model.StatusCancelled, transitionErr.From)
		})
	}

	assert.Len(t, f.logs(t, task.ID), 1)
}

func TestWorkflow_CompleteWithoutAuditorRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAuditor)
	retired := f.user(t, "carol", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)
	f.deactivate(t, retired)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)

	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	assert.ErrorIs(t, err, ErrNoAuditorAvailable)

	stored := f.reload(t, task.ID)
	assert.Equal(t, model.StatusInProgress, stored.Status)
	assert.Nil(t, stored.AuditorID)
	assert.Nil(t, stored.CompletedAt)
	assert.Len(t, f.logs(t, task.ID), 1)
}

func TestWorkflow_AuditorIsNeverTheAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAuditor)
	second := f.user(t, "bob", model.RoleAuditor)
	third := f.user(t, "carol", model.RoleAdmin)

	seen := map[uint]bool{}
	for seed := int64(0); seed < 40; seed++ {
		workflow := NewWorkflowService(f.store, NewAuditorPicker(rand.NewSource(seed)), func() time.Time { return fixedNow })
		task := f.task(t, manager, assignee)

		_, err := workflow.Start(ctx, assignee, task.ID)
		require.NoError(t, err)
		completed, err := workflow.Complete(ctx, assignee, task.ID, sheet(""))
		require.NoError(t, err)

		require.NotNil(t, completed.AuditorID)
		assert.NotEqual(t, assignee.ID, *completed.AuditorID)
		assert.Contains(t, []uint{manager.ID, second.ID, third.ID}, *completed.AuditorID)
		seen[*completed.AuditorID] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2, "different seeds should pick different auditors")
}

func TestWorkflow_RevisionKeepsAuditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	f.user(t, "bob", model.RoleAuditor)
	f.user(t, "carol", model.RoleAuditor)
	task := f.task(t, manager, assignee)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	first, err := f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)
	auditorID := *first.AuditorID

	for i := 0; i < 5; i++ {
		_, err = f.workflow.FailAudit(ctx, manager, task.ID, "again", nil)
		require.NoError(t, err)
		again, err := f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
		require.NoError(t, err)
		assert.Equal(t, auditorID, *again.AuditorID)
		assert.Equal(t, i+1, again.RevisionCount)
	}
}

func TestWorkflow_RevisionReplacesIneligibleAuditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	bob := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)
	_, err = f.workflow.FailAudit(ctx, bob, task.ID, "redo", nil)
	require.NoError(t, err)

	carol := f.user(t, "carol", model.RoleAuditor)
	f.deactivate(t, bob)

	again, err := f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)
	assert.Equal(t, carol.ID, *again.AuditorID)
}

func TestWorkflow_LogFormsLegalPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	auditor := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)
	_, err = f.workflow.FailAudit(ctx, auditor, task.ID, "tighten intro", nil)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)
	_, err = f.workflow.PassAudit(ctx, auditor, task.ID, "")
	require.NoError(t, err)

	entries := f.logs(t, task.ID)
	require.Len(t, entries, 5)

	current := model.StatusAssigned
	for _, entry := range entries {
		assert.Equal(t, current, entry.PreviousStatus)
		assert.True(t, reachable(entry.PreviousStatus, entry.NewStatus), "%s -> %s", entry.PreviousStatus, entry.NewStatus)
		assert.NotEqual(t, model.StatusCompleted, entry.NewStatus)
		current = entry.NewStatus
	}
	assert.Equal(t, model.StatusAuditPassed, current)
	assert.Equal(t, current, f.reload(t, task.ID).Status)
}

// reachable allows one transient status between from and to.
func reachable(from, to model.TaskStatus) bool {
	if from.CanTransitionTo(to) {
		return true
	}
	for _, mid := range model.Statuses {
		if from.CanTransitionTo(mid) && mid.CanTransitionTo(to) {
			return true
		}
	}
	return false
}

func TestWorkflow_ConcurrentAuditDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.workflow.PassAudit(ctx, manager, task.ID, "ok")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.workflow.FailAudit(ctx, manager, task.ID, "not ok", nil)
	}()
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Equal(t, 1, successes)
	assert.Len(t, f.logs(t, task.ID), 3)
}

func TestWorkflow_ActorChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	other := f.user(t, "dave", model.RoleAssignee)
	auditor := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)

	t.Run("someone else cannot start", func(t *testing.T) {
		_, err := f.workflow.Start(ctx, other, task.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("auditor cannot cancel", func(t *testing.T) {
		_, err := f.workflow.Cancel(ctx, auditor, task.ID, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("deactivated assignee cannot start", func(t *testing.T) {
		inactive := *assignee
		inactive.IsActive = false
		_, err := f.workflow.Start(ctx, &inactive, task.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)

		var transitionErr *TransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.Equal(t, "acting user is deactivated", transitionErr.Reason)
	})

	t.Run("nil actor", func(t *testing.T) {
		_, err := f.workflow.Start(ctx, nil, task.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := f.workflow.Start(ctx, assignee, 9999)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	assert.Equal(t, model.StatusAssigned, f.reload(t, task.ID).Status)
	assert.Empty(t, f.logs(t, task.ID))
}

func TestWorkflow_UnassignedAuditorCannotJudge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "manager", model.RoleManager)
	assignee := f.user(t, "alice", model.RoleAssignee)
	auditor := f.user(t, "bob", model.RoleAuditor)
	task := f.task(t, manager, assignee)
	f.deactivate(t, manager)

	_, err := f.workflow.Start(ctx, assignee, task.ID)
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, assignee, task.ID, sheet(""))
	require.NoError(t, err)

	outsider := f.user(t, "erin", model.RoleAuditor)
	_, err = f.workflow.PassAudit(ctx, outsider, task.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.workflow.PassAudit(ctx, assignee, task.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.workflow.PassAudit(ctx, auditor, task.ID, "")
	assert.NoError(t, err)
}
