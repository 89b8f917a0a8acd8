package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultDigestTimeout = 30 * time.Second

// DigestSchedule says when digests go out. A daily At time (HH:MM) wins over
// Interval. Location defaults to UTC and Timeout bounds one run.
type DigestSchedule struct {
	At       string
	Interval time.Duration
	Location *time.Location
	Timeout  time.Duration
}

// spec returns the cron expression for the schedule.
func (d DigestSchedule) spec() (string, error) {
	if strings.TrimSpace(d.At) != "" {
		return buildDailySpec(d.At)
	}
	return buildIntervalSpec(d.Interval)
}

// SchedulerService runs the digest job on cron. A run that is still going
// when the next tick arrives makes that tick skip.
type SchedulerService struct {
	cron     *cron.Cron
	schedule DigestSchedule
	entry    cron.EntryID
}

func NewSchedulerService(schedule DigestSchedule) *SchedulerService {
	if schedule.Location == nil {
		schedule.Location = time.UTC
	}
	if schedule.Timeout <= 0 {
		schedule.Timeout = defaultDigestTimeout
	}
	logger := cron.PrintfLogger(log.Default())
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(schedule.Location),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedule: schedule,
	}
}

// ScheduleDigests registers send as the digest job and returns the cron spec
// it runs on. Only one digest job can be registered.
func (s *SchedulerService) ScheduleDigests(send func(context.Context) error) (string, error) {
	if s.entry != 0 {
		return "", errors.New("digest job already scheduled")
	}
	spec, err := s.schedule.spec()
	if err != nil {
		return "", err
	}
	id, err := s.cron.AddFunc(spec, func() { s.runDigest(send) })
	if err != nil {
		return "", fmt.Errorf("schedule digests: %w", err)
	}
	s.entry = id
	return spec, nil
}

func (s *SchedulerService) runDigest(send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.schedule.Timeout)
	defer cancel()

	started := time.Now()
	if err := send(ctx); err != nil {
		log.Printf("[error] digest run failed after %s: %v", time.Since(started).Round(time.Millisecond), err)
		return
	}
	log.Printf("[info] digest run finished in %s", time.Since(started).Round(time.Millisecond))
}

// NextRunAfter reports when the digest job fires next after t.
func (s *SchedulerService) NextRunAfter(t time.Time) (time.Time, bool) {
	if s.entry == 0 {
		return time.Time{}, false
	}
	entry := s.cron.Entry(s.entry)
	if entry.Schedule == nil {
		return time.Time{}, false
	}
	return entry.Schedule.Next(t.In(s.schedule.Location)), true
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func buildIntervalSpec(interval time.Duration) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("@every %ds", seconds), nil
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
