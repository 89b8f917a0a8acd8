package service

import (
	"math/rand"
	"sync"

	"task-audit/internal/model"
)

// AuditorPicker chooses an auditor uniformly at random from a candidate list.
// The source is injected so tests can pin the choice with a fixed seed.
type AuditorPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewAuditorPicker(src rand.Source) *AuditorPicker {
	return &AuditorPicker{rng: rand.New(src)}
}

// Pick returns one of candidates, or false when the list is empty.
func (p *AuditorPicker) Pick(candidates []model.User) (model.User, bool) {
	if len(candidates) == 0 {
		return model.User{}, false
	}
	p.mu.Lock()
	i := p.rng.Intn(len(candidates))
	p.mu.Unlock()
	return candidates[i], true
}

// eligibleAuditor reports whether u may audit work done by assigneeID.
func eligibleAuditor(u *model.User, assigneeID uint) bool {
	return u != nil && u.IsActive && u.Role.CanAudit() && u.ID != assigneeID
}
