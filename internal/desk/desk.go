// internal/desk/desk.go
package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"checkindesk/internal/catalog"
	"checkindesk/internal/circulation"
	"checkindesk/internal/journal"
	"checkindesk/internal/logging"
	"checkindesk/internal/modal"
	"checkindesk/internal/session"
	"checkindesk/internal/settings"
	"checkindesk/internal/slips"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrBusy is returned when a barcode is still being processed.
	ErrBusy = errors.New("a check-in is already in progress")
	// ErrNoAction is returned when the requested action does not apply to
	// the dialog currently shown.
	ErrNoAction = errors.New("action not available")
	// ErrNoJournal is returned when the desk keeps no journal.
	ErrNoJournal = errors.New("no journal configured")
)

// Messages shown to the operator.
const (
	MessageFillIn             = "Please fill this in to continue"
	MessageResolutionRequired = "Choose how the claimed returned item was found"
)

// ValidationError is an inline form error; no remote call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Resolver looks items up by barcode.
type Resolver interface {
	Resolve(ctx context.Context, barcode string, s *settings.CheckinSettings) (*catalog.Outcome, error)
	Page(ctx context.Context, barcode string, s *settings.CheckinSettings, offset int) (*catalog.Outcome, error)
}

// Journal records completed check-ins and session ends.
type Journal interface {
	Append(ctx context.Context, sessionID, entryType string, data any) error
	Load(ctx context.Context, sessionIDs ...string) ([]journal.Entry, error)
}

// SettingsSource reads the raw check-in settings records.
type SettingsSource interface {
	CheckinSettings(ctx context.Context) ([]settings.RawRecord, error)
}

// Config is the fixed context of one desk.
type Config struct {
	ServicePointID string
	Operator       circulation.Operator
	ServicePoint   *slips.ServicePoint
	StaffSlips     []slips.StaffSlip
	CheckinPath    string
}

// Desk drives the check-in pipeline of one service point. One barcode is
// processed at a time. Remote calls run without holding the lock and their
// results are dropped when the session ended in the meantime.
type Desk struct {
	mu             sync.Mutex
	form           Form
	pending        *Pending
	pendingSession string
	inFlight       bool
	notes          *Notes
	settings       *settings.CheckinSettings

	cfg            Config
	resolver       Resolver
	executor       circulation.Service
	session        *session.Controller
	journal        Journal
	settingsSource SettingsSource
	logger         logrus.FieldLogger

	sessionsEnded metric.Int64Counter
}

// Option configures a Desk.
type Option func(*Desk)

// WithJournal records check-ins and session ends in j.
func WithJournal(j Journal) Option {
	return func(d *Desk) { d.journal = j }
}

// WithSettings sets the initial check-in settings.
func WithSettings(s *settings.CheckinSettings) Option {
	return func(d *Desk) { d.settings = s }
}

// WithSettingsSource lets the desk re-read its settings from src.
func WithSettingsSource(src SettingsSource) Option {
	return func(d *Desk) { d.settingsSource = src }
}

// New creates a desk. The session controller is created here so that its
// end-of-session callback resets the desk.
func New(cfg Config, resolver Resolver, executor circulation.Service, notifier session.Notifier, logger logrus.FieldLogger, opts ...Option) *Desk {
	return newDesk(cfg, resolver, executor, notifier, logger, nil, opts...)
}

func newDesk(cfg Config, resolver Resolver, executor circulation.Service, notifier session.Notifier, logger logrus.FieldLogger, sessionOpts []session.Option, opts ...Option) *Desk {
	if cfg.CheckinPath == "" {
		cfg.CheckinPath = "/checkin"
	}
	ended, _ := otel.Meter("checkindesk/desk").Int64Counter("session.ended",
		metric.WithDescription("Check-in sessions ended"))

	d := &Desk{
		cfg:           cfg,
		resolver:      resolver,
		executor:      executor,
		logger:        logger.WithField("service_point_id", cfg.ServicePointID),
		sessionsEnded: ended,
	}
	for _, opt := range opts {
		opt(d)
	}
	sessionOpts = append(sessionOpts, session.WithOnEnd(d.sessionEnded))
	d.session = session.NewController(notifier, d.logger, sessionOpts...)
	d.session.Tick(d.settings)
	return d
}

// Submit starts a check-in for the scanned barcode.
func (d *Desk) Submit(ctx context.Context, in SubmitInput) error {
	barcode := strings.TrimSpace(in.Barcode)

	d.mu.Lock()
	if d.pending != nil {
		d.mu.Unlock()
		return ErrBusy
	}
	d.form = Form{Barcode: in.Barcode, CheckinDate: in.CheckinDate, CheckinTime: in.CheckinTime}
	if barcode == "" {
		err := &ValidationError{Field: circulation.FieldItemBarcode, Message: MessageFillIn}
		d.form.Error = &FieldError{Field: err.Field, Message: err.Message}
		d.mu.Unlock()
		return err
	}

	sid := d.session.SessionID()
	p := &Pending{
		Barcode:     barcode,
		CheckinDate: in.CheckinDate,
		CheckinTime: in.CheckinTime,
		query:       barcode,
		shown:       modal.NewSet(),
	}
	d.pending = p
	d.pendingSession = sid
	d.inFlight = true
	s := d.settings
	d.mu.Unlock()

	d.session.Touch()
	d.logger.WithFields(logrus.Fields{
		"session_id": sid,
		"barcode":    barcode,
	}).Debug("barcode submitted")

	outcome, err := d.resolver.Resolve(ctx, barcode, s)

	d.mu.Lock()
	if !d.currentLocked(sid, p) {
		d.mu.Unlock()
		d.logger.WithField("session_id", sid).Debug("lookup finished after session end")
		return nil
	}
	d.inFlight = false
	d.applyOutcomeLocked(ctx, sid, p, outcome, err)
	return nil
}

// applyOutcomeLocked routes a lookup result. Called with d.mu held; returns
// with it released.
func (d *Desk) applyOutcomeLocked(ctx context.Context, sid string, p *Pending, outcome *catalog.Outcome, err error) {
	switch {
	case err != nil:
		d.logger.WithError(err).WithField("barcode", p.query).Warn("item lookup failed")
		p.fail(err.Error())
	case outcome.Kind == catalog.NotFound:
		p.fail(catalog.ErrNotFound.Error())
	case outcome.Kind == catalog.Unique:
		p.Item = outcome.Item
		p.Barcode = outcome.Item.Barcode
		d.proceedLocked(ctx, sid, p)
		return
	default:
		p.Modal = modal.SelectItem
		p.Selection = &Selection{
			Items:        outcome.Items,
			TotalRecords: outcome.TotalRecords,
			Offset:       outcome.Offset,
			NextOffset:   outcome.NextOffset,
		}
	}
	d.mu.Unlock()
}

// SelectItem picks one item of an ambiguous lookup.
func (d *Desk) SelectItem(ctx context.Context, index int) error {
	d.mu.Lock()
	p, err := d.activeLocked(modal.SelectItem)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(p.Selection.Items) {
		d.mu.Unlock()
		return &ValidationError{Field: "index", Message: fmt.Sprintf("no item at position %d", index)}
	}
	item := p.Selection.Items[index]
	p.Item = &item
	p.Barcode = item.Barcode
	p.Selection = nil
	d.proceedLocked(ctx, d.pendingSession, p)
	d.session.Touch()
	return nil
}

// NextPage loads the next page of an ambiguous lookup.
func (d *Desk) NextPage(ctx context.Context) error {
	d.mu.Lock()
	p, err := d.activeLocked(modal.SelectItem)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if p.Selection.NextOffset == 0 {
		d.mu.Unlock()
		return ErrNoAction
	}
	sid, offset, s := d.pendingSession, p.Selection.NextOffset, d.settings
	d.inFlight = true
	d.mu.Unlock()

	d.session.Touch()
	outcome, err := d.resolver.Page(ctx, p.query, s, offset)

	d.mu.Lock()
	if !d.currentLocked(sid, p) {
		d.mu.Unlock()
		return nil
	}
	d.inFlight = false
	d.applyOutcomeLocked(ctx, sid, p, outcome, err)
	return nil
}

// Confirm accepts the pre-check-in dialog in front of the operator. A
// claimed returned confirmation needs a resolution.
func (d *Desk) Confirm(ctx context.Context, resolution string) error {
	d.mu.Lock()
	if d.pending == nil || d.inFlight || !d.pending.Modal.PreCheckin() {
		d.mu.Unlock()
		return ErrNoAction
	}
	p := d.pending
	if p.Modal == modal.ClaimedReturned {
		if resolution != circulation.ResolutionFoundByLibrary && resolution != circulation.ResolutionReturnedByPatron {
			d.mu.Unlock()
			return &ValidationError{Field: "claimedReturnedResolution", Message: MessageResolutionRequired}
		}
		p.Resolution = resolution
	}
	p.shown.Add(p.Modal)
	d.proceedLocked(ctx, d.pendingSession, p)
	d.session.Touch()
	return nil
}

// Cancel aborts the attempt from a pre-check-in or selection dialog. The
// scanned list and session are left as they are.
func (d *Desk) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil || d.inFlight {
		return ErrNoAction
	}
	if k := d.pending.Modal; !k.PreCheckin() && k != modal.SelectItem {
		return ErrNoAction
	}
	d.clearLocked()
	return nil
}

// proceedLocked shows the next confirmation the candidate needs, or checks
// it in. Called with d.mu held; returns with it released.
func (d *Desk) proceedLocked(ctx context.Context, sid string, p *Pending) {
	if k := modal.NextRequired(p.Item, p.shown); k != modal.None {
		p.Modal = k
		d.mu.Unlock()
		return
	}

	p.Modal = modal.None
	d.inFlight = true
	attempt := circulation.Attempt{
		Barcode:                   p.Barcode,
		CheckinDate:               p.CheckinDate,
		CheckinTime:               p.CheckinTime,
		ServicePointID:            d.cfg.ServicePointID,
		ClaimedReturnedResolution: p.Resolution,
		Operator:                  d.cfg.Operator,
	}
	d.mu.Unlock()

	record, err := d.executor.Execute(ctx, attempt)

	d.mu.Lock()
	if !d.currentLocked(sid, p) {
		d.mu.Unlock()
		d.logger.WithField("session_id", sid).Debug("check-in finished after session end")
		return
	}
	d.inFlight = false

	if err != nil {
		d.checkinFailedLocked(p, err)
		d.mu.Unlock()
		return
	}

	if !d.session.OnCheckinSuccess(sid, *record) {
		d.mu.Unlock()
		return
	}

	logger := d.logger.WithFields(logrus.Fields{
		"session_id":     sid,
		"barcode":        p.Barcode,
		"classification": record.Classification,
	})
	if kind := modal.For(record); kind != modal.None {
		p.Modal = kind
		p.Record = record
		p.Slip = modal.SlipFor(kind)
		if p.Slip != "" {
			p.PrintSlip = slips.PrintByDefault(d.cfg.ServicePoint, d.cfg.StaffSlips, p.Slip)
		}
	} else {
		d.clearLocked()
	}
	d.mu.Unlock()

	logger.Info("item checked in")
	d.record(ctx, sid, journal.EntryCheckinRecorded, record)
}

// checkinFailedLocked turns a refused check-in into a field error that
// keeps the barcode, or an error dialog.
func (d *Desk) checkinFailedLocked(p *Pending, err error) {
	var rejected *circulation.RejectedError
	var invalid *circulation.ValidationError
	switch {
	case errors.As(err, &rejected):
		field := rejected.Field
		if field == "" {
			field = circulation.FieldItemBarcode
		}
		d.pending = nil
		d.form.Error = &FieldError{Field: field, Message: rejected.Message}
	case errors.As(err, &invalid):
		d.pending = nil
		d.form.Error = &FieldError{Field: invalid.Field, Message: invalid.Message}
	default:
		logging.LogError(d.logger, "desk", "checkin", logrus.Fields{"barcode": p.Barcode}, err)
		p.fail(err.Error())
	}
}

// Acknowledge closes the status dialog of a completed check-in. For transit
// and hold dialogs with print set, the staff slip is rendered and returned.
func (d *Desk) Acknowledge(print bool) (*PrintedSlip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil || !d.pending.Modal.PostCheckin() {
		return nil, ErrNoAction
	}
	p := d.pending
	d.clearLocked()
	d.session.Touch()

	if !print || p.Slip == "" {
		return nil, nil
	}
	printed, err := d.renderSlip(p.Slip, p.Record)
	if errors.Is(err, ErrNoAction) {
		return nil, nil
	}
	return printed, err
}

// PrintSlip renders the transit or hold slip of a record already in the
// list again.
func (d *Desk) PrintSlip(index int) (*PrintedSlip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.session.Record(index)
	if !ok {
		return nil, &ValidationError{Field: "index", Message: fmt.Sprintf("no record at position %d", index)}
	}
	name := modal.SlipFor(modal.For(&record))
	if name == "" {
		return nil, ErrNoAction
	}
	printed, err := d.renderSlip(name, &record)
	if err != nil {
		return nil, err
	}
	d.session.Touch()
	return printed, nil
}

// renderSlip fills the named staff slip from the record's slip context. It
// returns ErrNoAction when no template is configured for the slip.
func (d *Desk) renderSlip(name string, record *circulation.Record) (*PrintedSlip, error) {
	slip, ok := slips.Find(d.cfg.StaffSlips, name)
	if !ok {
		d.logger.WithField("slip", name).Warn("no staff slip template configured")
		return nil, ErrNoAction
	}
	content, err := slips.Render(slip.Template, record.StaffSlipContext)
	if err != nil {
		return nil, fmt.Errorf("render %s slip: %w", name, err)
	}
	return &PrintedSlip{Name: slip.Name, Content: content}, nil
}

// RedirectToCheckout closes the delivery dialog and returns what the
// checkout workflow needs.
func (d *Desk) RedirectToCheckout() (*modal.Handoff, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil || d.pending.Modal != modal.DeliveryStatus {
		return nil, ErrNoAction
	}
	handoff := modal.DeliveryHandoff(d.pending.Record)
	d.clearLocked()
	d.session.Touch()
	return &handoff, nil
}

// DismissError closes the error dialog and clears the barcode.
func (d *Desk) DismissError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil || d.pending.Modal != modal.Error {
		return ErrNoAction
	}
	d.clearLocked()
	return nil
}

// ViewNotes opens the check-in notes of a record already in the list.
func (d *Desk) ViewNotes(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		return ErrBusy
	}
	record, ok := d.session.Record(index)
	if !ok {
		return &ValidationError{Field: "index", Message: fmt.Sprintf("no record at position %d", index)}
	}
	notes := record.Item.CheckinNotes()
	if len(notes) == 0 {
		return ErrNoAction
	}
	d.notes = &Notes{Index: index, Title: record.Title(), Notes: notes}
	return nil
}

// CloseNotes dismisses the read-only notes dialog.
func (d *Desk) CloseNotes() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.notes == nil {
		return ErrNoAction
	}
	d.notes = nil
	return nil
}

// EndSession ends the running session on operator request.
func (d *Desk) EndSession(ctx context.Context) error {
	return d.session.EndSession(ctx)
}

// Navigate ends the session when the operator leaves the check-in route.
func (d *Desk) Navigate(ctx context.Context, path string) error {
	return d.session.Navigate(ctx, path, d.cfg.CheckinPath)
}

// ApplySettings replaces the check-in settings and re-evaluates the timer.
// Settings equal to the current ones leave the timer alone.
func (d *Desk) ApplySettings(s *settings.CheckinSettings) {
	d.mu.Lock()
	if sameSettings(d.settings, s) {
		d.mu.Unlock()
		return
	}
	d.settings = s
	d.mu.Unlock()
	d.session.Tick(s)
}

func sameSettings(a, b *settings.CheckinSettings) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RefreshSettings re-reads the settings records and applies what they
// resolve to. No record at all means no settings.
func (d *Desk) RefreshSettings(ctx context.Context) error {
	if d.settingsSource == nil {
		return ErrNoAction
	}
	records, err := d.settingsSource.CheckinSettings(ctx)
	if err != nil {
		return fmt.Errorf("read check-in settings: %w", err)
	}
	s, ok := settings.Resolve(records)
	if !ok {
		s = nil
	}
	d.ApplySettings(s)
	return nil
}

// WatchSettings refreshes the settings every interval until ctx is done.
func (d *Desk) WatchSettings(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RefreshSettings(ctx); err != nil {
				d.logger.WithError(err).Warn("check-in settings refresh failed")
			}
		}
	}
}

// JournalEntries returns the journal of the given sessions, or of the
// running session when none are named.
func (d *Desk) JournalEntries(ctx context.Context, sessionIDs ...string) ([]journal.Entry, error) {
	if d.journal == nil {
		return nil, ErrNoJournal
	}
	if len(sessionIDs) == 0 {
		sessionIDs = []string{d.session.SessionID()}
	}
	entries, err := d.journal.Load(ctx, sessionIDs...)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	return entries, nil
}

// Snapshot returns the current state for display.
func (d *Desk) Snapshot() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	records := d.session.Records()
	views := make([]RecordView, len(records))
	for i := range records {
		views[i] = newRecordView(records[i])
	}

	v := View{
		SessionID:  d.session.SessionID(),
		Records:    views,
		Form:       d.form,
		Busy:       d.inFlight,
		TimerArmed: d.session.Armed(),
	}
	if d.form.Error != nil {
		fe := *d.form.Error
		v.Form.Error = &fe
	}
	if d.pending != nil {
		p := *d.pending
		v.Pending = &p
		v.Modal = p.Modal
	}
	if d.notes != nil && v.Modal == modal.None {
		n := *d.notes
		v.Notes = &n
		v.Modal = modal.CheckinNotes
	}
	return v
}

func (d *Desk) sessionEnded(ended session.Ended) {
	d.mu.Lock()
	if d.pending != nil && d.pendingSession == ended.SessionID {
		d.pending = nil
		d.inFlight = false
	}
	if d.pending == nil {
		d.form = Form{}
	}
	d.notes = nil
	d.mu.Unlock()

	d.sessionsEnded.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", ended.Reason)))
	d.record(context.Background(), ended.SessionID, journal.EntrySessionEnded, sessionEndedEntry{
		Reason:  ended.Reason,
		Records: len(ended.Records),
		Patrons: ended.Patrons,
	})
}

func (d *Desk) record(ctx context.Context, sid, entryType string, data any) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Append(ctx, sid, entryType, data); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sid,
			"entry_type": entryType,
		}).Warn("journal append failed")
	}
}

func (d *Desk) activeLocked(kind modal.Kind) (*Pending, error) {
	if d.pending == nil || d.inFlight || d.pending.Modal != kind {
		return nil, ErrNoAction
	}
	return d.pending, nil
}

// currentLocked reports whether p is still the pending attempt of the
// running session.
func (d *Desk) currentLocked(sid string, p *Pending) bool {
	return d.pending == p && d.session.SessionID() == sid
}

// clearLocked ends the attempt and resets the barcode for the next scan.
func (d *Desk) clearLocked() {
	d.pending = nil
	d.inFlight = false
	d.form.Barcode = ""
	d.form.Error = nil
}
