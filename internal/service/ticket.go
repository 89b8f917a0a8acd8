package service

import (
	"context"
	"fmt"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	ticketAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ticketCodeLength  = 4
	ticketMaxAttempts = 10
)

// TicketGenerator produces ids like TKT-20250131-7QX2.
type TicketGenerator struct {
	code func() string
	now  func() time.Time
}

func NewTicketGenerator(now func() time.Time) (*TicketGenerator, error) {
	code, err := nanoid.CustomASCII(ticketAlphabet, ticketCodeLength)
	if err != nil {
		return nil, fmt.Errorf("ticket generator: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &TicketGenerator{code: code, now: now}, nil
}

// Next returns a ticket id for which exists reports false.
func (g *TicketGenerator) Next(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	datePart := g.now().Format("20060102")
	for attempt := 0; attempt < ticketMaxAttempts; attempt++ {
		candidate := fmt.Sprintf("TKT-%s-%s", datePart, g.code())
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free ticket id after %d attempts", ticketMaxAttempts)
}
