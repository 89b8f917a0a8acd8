package service

import "task-audit/internal/model"

// Each workflow operation has one capability check. They only look at the
// actor and its relationship to the task; status is checked separately.

func canStart(actor *model.User, task *model.Task) bool {
	return actor.IsActive && task.AssignedToID == actor.ID
}

func canComplete(actor *model.User, task *model.Task) bool {
	return actor.IsActive && task.AssignedToID == actor.ID
}

func canJudgeAudit(actor *model.User, task *model.Task) bool {
	if !actor.IsActive {
		return false
	}
	if task.AuditorID != nil && *task.AuditorID == actor.ID {
		return true
	}
	return actor.Role.CanManage()
}

func canCancel(actor *model.User, _ *model.Task) bool {
	return actor.IsActive && actor.Role.CanManage()
}

func canView(actor *model.User, task *model.Task) bool {
	if actor.Role.CanManage() {
		return true
	}
	if task.AuditorID != nil && *task.AuditorID == actor.ID {
		return true
	}
	return task.AssignedToID == actor.ID || task.CreatedByID == actor.ID
}

// AvailableActions lists the operations actor may invoke on task right now.
func AvailableActions(actor *model.User, task *model.Task) []model.Action {
	var actions []model.Action
	switch task.Status {
	case model.StatusAssigned:
		if canStart(actor, task) {
			actions = append(actions, model.ActionStart)
		}
	case model.StatusInProgress:
		if canComplete(actor, task) {
			actions = append(actions, model.ActionComplete)
		}
	case model.StatusUnderAudit:
		if canJudgeAudit(actor, task) {
			actions = append(actions, model.ActionPassAudit, model.ActionFailAudit)
		}
	}
	if !task.Status.Terminal() && canCancel(actor, task) {
		actions = append(actions, model.ActionCancel)
	}
	return actions
}
