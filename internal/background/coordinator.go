// Package background models the host's limited background execution time.
//
// While the application is in the foreground, grants never expire. Once it
// moves to the background, each active grant runs down a fixed budget and
// fires its expiration callback exactly once. A "continue later" request is
// a one-shot entry on a cron scheduler and is dropped when the application
// returns to the foreground.
package background

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"scribe/internal/logging"
)

// Grant is an opaque handle for one execution grant.
type Grant struct {
	id uint64
}

// Coordinator is the scheduler's view of background execution.
type Coordinator interface {
	BeginGrant(onExpire func()) *Grant
	EndGrant(g *Grant)
	ScheduleContinuation(delay time.Duration, fn func())
	CancelScheduledContinuation()
	EnterBackground()
	EnterForeground()
	InBackground() bool
}

type grantState struct {
	onExpire func()
	timer    *time.Timer
}

// TimedCoordinator enforces a fixed grant budget while backgrounded.
type TimedCoordinator struct {
	budget time.Duration
	logger *slog.Logger
	cron   *cron.Cron

	mu           sync.Mutex
	background   bool
	nextID       uint64
	grants       map[uint64]*grantState
	continuation cron.EntryID
}

// NewTimedCoordinator starts the continuation scheduler. Call Close to stop it.
func NewTimedCoordinator(budget time.Duration, logger *slog.Logger) *TimedCoordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &TimedCoordinator{
		budget: budget,
		logger: logging.NewComponentLogger(logger, "background"),
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		grants: make(map[uint64]*grantState),
	}
	c.cron.Start()
	return c
}

// Close stops pending timers and the cron scheduler.
func (c *TimedCoordinator) Close() {
	c.mu.Lock()
	for id, g := range c.grants {
		if g.timer != nil {
			g.timer.Stop()
		}
		delete(c.grants, id)
	}
	c.mu.Unlock()
	<-c.cron.Stop().Done()
}

func (c *TimedCoordinator) BeginGrant(onExpire func()) *Grant {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	state := &grantState{onExpire: onExpire}
	c.grants[id] = state
	if c.background {
		c.armLocked(id, state)
	}
	return &Grant{id: id}
}

func (c *TimedCoordinator) EndGrant(g *Grant) {
	if g == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.grants[g.id]; ok {
		if state.timer != nil {
			state.timer.Stop()
		}
		delete(c.grants, g.id)
	}
}

// ActiveGrants reports grants that have neither ended nor expired.
func (c *TimedCoordinator) ActiveGrants() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.grants)
}

func (c *TimedCoordinator) armLocked(id uint64, state *grantState) {
	if state.timer != nil {
		return
	}
	state.timer = time.AfterFunc(c.budget, func() { c.expire(id, "budget exhausted") })
}

func (c *TimedCoordinator) expire(id uint64, reason string) {
	c.mu.Lock()
	state, ok := c.grants[id]
	if ok {
		delete(c.grants, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.logger.Info("background grant expired", logging.String("reason", reason), logging.Int64("grant", int64(id)))
	if state.onExpire != nil {
		state.onExpire()
	}
}

// Suspend expires every active grant immediately, as when the host suspends
// the application outright.
func (c *TimedCoordinator) Suspend() {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.grants))
	for id, state := range c.grants {
		if state.timer != nil {
			state.timer.Stop()
		}
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.expire(id, "suspended")
	}
}

// ScheduleContinuation replaces any pending continuation with fn after delay.
func (c *TimedCoordinator) ScheduleContinuation(delay time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.continuation != 0 {
		c.cron.Remove(c.continuation)
	}
	var entry cron.EntryID
	entry = c.cron.Schedule(&onceSchedule{at: time.Now().Add(delay)}, cron.FuncJob(func() {
		c.mu.Lock()
		current := c.continuation == entry
		if current {
			c.continuation = 0
		}
		c.mu.Unlock()
		c.cron.Remove(entry)
		if current && fn != nil {
			fn()
		}
	}))
	c.continuation = entry
	c.logger.Debug("continuation scheduled", logging.Duration("delay", delay))
}

func (c *TimedCoordinator) CancelScheduledContinuation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.continuation == 0 {
		return
	}
	c.cron.Remove(c.continuation)
	c.continuation = 0
	c.logger.Debug("continuation canceled")
}

// ContinuationPending reports whether a continuation is scheduled.
func (c *TimedCoordinator) ContinuationPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.continuation != 0
}

// EnterBackground starts the budget on every active grant.
func (c *TimedCoordinator) EnterBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.background {
		return
	}
	c.background = true
	for id, state := range c.grants {
		c.armLocked(id, state)
	}
	c.logger.Info("entered background", logging.Int("active_grants", len(c.grants)))
}

// EnterForeground stops grant timers and drops the pending continuation.
func (c *TimedCoordinator) EnterForeground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.background {
		return
	}
	c.background = false
	for _, state := range c.grants {
		if state.timer != nil {
			state.timer.Stop()
			state.timer = nil
		}
	}
	if c.continuation != 0 {
		c.cron.Remove(c.continuation)
		c.continuation = 0
	}
	c.logger.Info("entered foreground")
}

func (c *TimedCoordinator) InBackground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background
}

// onceSchedule fires a single time, immediately if at is already past.
// Next is only called from the cron run goroutine.
type onceSchedule struct {
	at   time.Time
	used bool
}

func (o *onceSchedule) Next(now time.Time) time.Time {
	if o.used {
		return time.Time{}
	}
	o.used = true
	if o.at.Before(now) {
		return now
	}
	return o.at
}
