// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkindesk/internal/catalog"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Operator identifies the staff member running the desk.
type Operator struct {
	ID   string
	Name string
}

// Attempt is one check-in as entered at the desk.
type Attempt struct {
	Barcode                   string
	CheckinDate               string // 2006-01-02, blank for now
	CheckinTime               string // 15:04, blank for now
	ServicePointID            string
	ClaimedReturnedResolution string
	Operator                  Operator
}

// service implements the Service interface.
type service struct {
	checkins CheckinAPI
	requests RequestFinder
	feefines FeeFineAPI
	logger   logrus.FieldLogger
	location *time.Location
	now      func() time.Time

	tracer    trace.Tracer
	completed metric.Int64Counter
	rejected  metric.Int64Counter
}

// Option configures the executor.
type Option func(*service)

// WithLocation sets the time zone check-in dates and times are entered in.
func WithLocation(loc *time.Location) Option {
	return func(s *service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new check-in executor.
func NewService(checkins CheckinAPI, requests RequestFinder, feefines FeeFineAPI, logger logrus.FieldLogger, opts ...Option) Service {
	meter := otel.Meter("checkindesk/circulation")
	completed, _ := meter.Int64Counter("checkin.completed", metric.WithDescription("Check-ins accepted by the server"))
	rejected, _ := meter.Int64Counter("checkin.rejected", metric.WithDescription("Check-ins refused by the server"))

	s := &service{
		checkins:  checkins,
		requests:  requests,
		feefines:  feefines,
		logger:    logger,
		location:  time.UTC,
		now:       time.Now,
		tracer:    otel.Tracer("checkindesk/circulation"),
		completed: completed,
		rejected:  rejected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute checks the item in, classifies the outcome and runs the
// best-effort follow-up steps. Only the check-in call itself can fail the
// attempt.
func (s *service) Execute(ctx context.Context, req Attempt) (*Record, error) {
	barcode := strings.TrimSpace(req.Barcode)
	ctx, span := s.tracer.Start(ctx, "circulation.checkin",
		trace.WithAttributes(
			attribute.String("item.barcode", barcode),
			attribute.String("service_point.id", req.ServicePointID),
		),
	)
	defer span.End()

	checkInDate, err := s.checkInDate(req.CheckinDate, req.CheckinTime)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	body := CheckinRequest{
		ServicePointID:            req.ServicePointID,
		CheckInDate:               checkInDate,
		ItemBarcode:               barcode,
		ClaimedReturnedResolution: req.ClaimedReturnedResolution,
	}

	// Step 1: Authoritative check-in
	resp, err := s.checkins.CheckIn(ctx, body)
	if err != nil {
		s.rejected.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "check-in failed")
		return nil, fmt.Errorf("check in %q: %w", barcode, err)
	}
	if resp.Item == nil && (resp.Loan == nil || resp.Loan.Item == nil) {
		err := fmt.Errorf("check in %q: response carried no item", barcode)
		span.RecordError(err)
		return nil, err
	}

	// Step 2: Classify
	respItem := resp.Item
	if resp.Loan != nil && resp.Loan.Item != nil {
		respItem = resp.Loan.Item
	}
	snapshot := resp.Item
	if snapshot == nil {
		snapshot = respItem
	}

	record := &Record{
		Item:             *snapshot,
		Loan:             resp.Loan,
		ReturnDate:       checkInDate,
		SystemReturnDate: s.now().UTC().Format(time.RFC3339),
		Classification:   Classify(respItem.Status.Name),
		StaffSlipContext: resp.StaffSlipContext,
		InHouseUse:       resp.InHouseUse,
	}
	if resp.Loan != nil {
		if resp.Loan.ReturnDate != "" {
			record.ReturnDate = resp.Loan.ReturnDate
		}
		if resp.Loan.SystemReturnDate != "" {
			record.SystemReturnDate = resp.Loan.SystemReturnDate
		}
	}
	span.SetAttributes(attribute.String("checkin.classification", string(record.Classification)))

	// Step 3: Next request in line, if any
	record.NextRequest = s.nextRequest(ctx, snapshot)

	// Step 4: Cancel lost item fees of a resolved claim
	if req.ClaimedReturnedResolution != "" && resp.Loan != nil {
		record.CancelledFees = s.cancelLostItemFees(ctx, resp.Loan, req)
	}

	s.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("classification", string(record.Classification))))
	return record, nil
}

// checkInDate combines the entered date and time, falling back to now when
// either is blank.
func (s *service) checkInDate(date, clock string) (string, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return s.now().UTC().Format(time.RFC3339), nil
	}

	layout := "2006-01-02T15:04"
	if strings.Count(clock, ":") == 2 {
		layout = "2006-01-02T15:04:05"
	}
	t, err := time.ParseInLocation(layout, date+"T"+clock, s.location)
	if err != nil {
		return "", &ValidationError{Field: "checkinDate", Message: fmt.Sprintf("invalid check-in date %q %q", date, clock)}
	}
	return t.UTC().Format(time.RFC3339), nil
}

func (s *service) nextRequest(ctx context.Context, item *catalog.Item) *Request {
	if s.requests == nil || item.ID == "" {
		return nil
	}

	requests, err := s.requests.OpenRequestsForItem(ctx, item.ID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"item_id": item.ID,
			"error":   err,
		}).Warn("request lookup failed after check-in")
		return nil
	}
	if len(requests) == 0 {
		return nil
	}

	next := requests[0]
	for _, r := range requests[1:] {
		if r.Position < next.Position {
			next = r
		}
	}
	attached := *item
	next.Item = &attached
	return &next
}
