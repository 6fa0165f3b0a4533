// internal/session/session.go
package session

import (
	"context"
	"sync"
	"time"

	"checkindesk/internal/circulation"
	"checkindesk/internal/settings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ActionTypeCheckin tags end-session entries produced by the check-in desk.
const ActionTypeCheckin = "Check-in"

// EndSessionEntry is one patron whose action session is closed.
type EndSessionEntry struct {
	ActionType string `json:"actionType"`
	PatronID   string `json:"patronId"`
}

// Notifier tells the circulation backend that patron sessions ended.
type Notifier interface {
	EndPatronSessions(ctx context.Context, entries []EndSessionEntry) error
}

// Timer is the part of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Ended describes a session that was just closed.
type Ended struct {
	SessionID string
	Records   []circulation.Record
	Patrons   []string
	Reason    string
}

// Controller owns the scanned list, the session id and the inactivity timer.
// It is safe for concurrent use; the timer fires on its own goroutine.
type Controller struct {
	mu        sync.Mutex
	records   []circulation.Record
	sessionID string
	settings  *settings.CheckinSettings
	timer     Timer
	armGen    uint64

	notifier  Notifier
	afterFunc AfterFunc
	onEnd     func(Ended)
	logger    logrus.FieldLogger
}

// Option configures a Controller.
type Option func(*Controller)

// WithAfterFunc replaces the timer scheduler.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Controller) { c.afterFunc = f }
}

// WithOnEnd registers a callback run after every session end, outside the
// controller lock.
func WithOnEnd(f func(Ended)) Option {
	return func(c *Controller) { c.onEnd = f }
}

// NewController creates a controller with a fresh session id.
func NewController(notifier Notifier, logger logrus.FieldLogger, opts ...Option) *Controller {
	c := &Controller{
		sessionID: uuid.NewString(),
		notifier:  notifier,
		afterFunc: stdAfterFunc,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the id of the running session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Records returns a copy of the scanned list, newest first.
func (c *Controller) Records() []circulation.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]circulation.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Record returns the entry at index i of the scanned list.
func (c *Controller) Record(i int) (circulation.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.records) {
		return circulation.Record{}, false
	}
	return c.records[i], true
}

// OnCheckinSuccess prepends the record if sessionID is still the running
// session and re-arms the timer. It reports false when the session ended
// while the check-in was in flight.
func (c *Controller) OnCheckinSuccess(sessionID string, record circulation.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sessionID != c.sessionID {
		return false
	}
	c.records = append([]circulation.Record{record}, c.records...)
	c.rearmLocked()
	return true
}

// Touch resets the inactivity timer after operator interaction.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rearmLocked()
}

// Tick applies new settings and arms or disarms the timer accordingly.
func (c *Controller) Tick(s *settings.CheckinSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	c.rearmLocked()
}

// Armed reports whether an inactivity timer is pending.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// ShouldArm is the arm decision: a timeout is configured and there is
// something to time out.
func ShouldArm(s *settings.CheckinSettings, listNonEmpty bool) bool {
	return listNonEmpty && s.Timeout() > 0
}

func (c *Controller) rearmLocked() {
	c.disarmLocked()
	if !ShouldArm(c.settings, len(c.records) > 0) {
		return
	}
	c.armGen++
	gen := c.armGen
	c.timer = c.afterFunc(c.settings.Timeout(), func() {
		c.expire(gen)
	})
}

func (c *Controller) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expire runs on the timer goroutine. A timer that was stopped or replaced
// after it fired is ignored.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if c.timer == nil || c.armGen != gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if err := c.end(context.Background(), "inactivity"); err != nil {
		c.logger.WithError(err).Warn("end session on inactivity")
	}
}

// EndSession clears the list, regenerates the session id and notifies the
// backend about every distinct patron in the cleared list.
func (c *Controller) EndSession(ctx context.Context) error {
	return c.end(ctx, "manual")
}

// Navigate ends the session immediately when path leaves the check-in
// route.
func (c *Controller) Navigate(ctx context.Context, path, checkinPath string) error {
	if matchesRoute(path, checkinPath) {
		return nil
	}
	return c.end(ctx, "navigation")
}

func matchesRoute(path, route string) bool {
	if path == route {
		return true
	}
	return len(path) > len(route) && path[:len(route)] == route && path[len(route)] == '/'
}

func (c *Controller) end(ctx context.Context, reason string) error {
	c.mu.Lock()
	c.disarmLocked()
	ended := Ended{
		SessionID: c.sessionID,
		Records:   c.records,
		Patrons:   DistinctPatrons(c.records),
		Reason:    reason,
	}
	c.records = nil
	c.sessionID = uuid.NewString()
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"session_id": ended.SessionID,
		"records":    len(ended.Records),
		"patrons":    len(ended.Patrons),
		"reason":     reason,
	}).Info("check-in session ended")

	if c.onEnd != nil {
		c.onEnd(ended)
	}

	if len(ended.Patrons) == 0 || c.notifier == nil {
		return nil
	}
	entries := make([]EndSessionEntry, 0, len(ended.Patrons))
	for _, id := range ended.Patrons {
		entries = append(entries, EndSessionEntry{ActionType: ActionTypeCheckin, PatronID: id})
	}
	return c.notifier.EndPatronSessions(ctx, entries)
}

// DistinctPatrons returns each loan user id once, in list order.
func DistinctPatrons(records []circulation.Record) []string {
	seen := make(map[string]struct{}, len(records))
	var ids []string
	for i := range records {
		id := records[i].UserID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
