package circulation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"checkindesk/internal/catalog"
	"checkindesk/internal/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckins struct {
	resp *CheckinResponse
	err  error
	got  []CheckinRequest
}

func (f *fakeCheckins) CheckIn(ctx context.Context, req CheckinRequest) (*CheckinResponse, error) {
	f.got = append(f.got, req)
	return f.resp, f.err
}

type fakeRequests struct {
	requests []Request
	err      error
}

func (f *fakeRequests) OpenRequestsForItem(ctx context.Context, itemID string) ([]Request, error) {
	return f.requests, f.err
}

type fakeFeeFines struct {
	accounts []Account
	err      error
	updated  []Account
	actions  []FeeFineAction
}

func (f *fakeFeeFines) AccountsForLoan(ctx context.Context, userID, itemID, loanID string) ([]Account, error) {
	return f.accounts, f.err
}

func (f *fakeFeeFines) UpdateAccount(ctx context.Context, a Account) error {
	f.updated = append(f.updated, a)
	return nil
}

func (f *fakeFeeFines) CreateAction(ctx context.Context, a FeeFineAction) error {
	f.actions = append(f.actions, a)
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func bestBook(status string) *catalog.Item {
	return &catalog.Item{
		ID:           "item-1",
		Barcode:      "9676761472500",
		Title:        "Best Book Ever",
		MaterialType: catalog.Named{Name: "book"},
		Status:       catalog.Status{Name: status},
	}
}

func newTestService(c *fakeCheckins, r RequestFinder, f FeeFineAPI) Service {
	return NewService(c, r, f, logging.Discard(), WithClock(func() time.Time { return fixedNow }))
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("ordinary return with loan", func(t *testing.T) {
		checkins := &fakeCheckins{resp: &CheckinResponse{
			Item: bestBook(catalog.StatusAvailable),
			Loan: &Loan{ID: "loan-1", UserID: "u1", Item: bestBook(catalog.StatusAvailable)},
		}}
		svc := newTestService(checkins, &fakeRequests{}, nil)

		record, err := svc.Execute(ctx, Attempt{Barcode: " 9676761472500 ", ServicePointID: "sp-1"})
		require.NoError(t, err)

		assert.Equal(t, "Best Book Ever (book)", record.Title())
		assert.Equal(t, ClassNone, record.Classification)
		assert.Equal(t, "u1", record.UserID())
		assert.Nil(t, record.NextRequest)

		require.Len(t, checkins.got, 1)
		assert.Equal(t, "9676761472500", checkins.got[0].ItemBarcode)
		assert.Equal(t, "sp-1", checkins.got[0].ServicePointID)
		assert.Equal(t, "2024-03-01T12:30:00Z", checkins.got[0].CheckInDate)
	})

	t.Run("entered date and time", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		checkins := &fakeCheckins{resp: &CheckinResponse{Item: bestBook(catalog.StatusAvailable)}}
		svc := NewService(checkins, nil, nil, logging.Discard(), WithLocation(loc))

		_, err := svc.Execute(ctx, Attempt{Barcode: "1", CheckinDate: "2024-02-10", CheckinTime: "09:15"})
		require.NoError(t, err)
		assert.Equal(t, "2024-02-10T07:15:00Z", checkins.got[0].CheckInDate)
	})

	t.Run("invalid date is a validation error", func(t *testing.T) {
		checkins := &fakeCheckins{}
		svc := newTestService(checkins, nil, nil)

		_, err := svc.Execute(ctx, Attempt{Barcode: "1", CheckinDate: "tomorrow", CheckinTime: "09:15"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "checkinDate", verr.Field)
		assert.Empty(t, checkins.got)
	})

	t.Run("classification", func(t *testing.T) {
		tests := map[string]Classification{
			catalog.StatusInTransit:        ClassTransit,
			catalog.StatusAwaitingPickup:   ClassHold,
			catalog.StatusAwaitingDelivery: ClassDelivery,
			catalog.StatusAvailable:        ClassNone,
		}
		for status, want := range tests {
			t.Run(status, func(t *testing.T) {
				svc := newTestService(&fakeCheckins{resp: &CheckinResponse{Item: bestBook(status)}}, nil, nil)
				record, err := svc.Execute(ctx, Attempt{Barcode: "1"})
				require.NoError(t, err)
				assert.Equal(t, want, record.Classification)

				flags := 0
				for _, set := range []bool{record.TransitItem(), record.HoldItem(), record.DeliveryItem()} {
					if set {
						flags++
					}
				}
				assert.LessOrEqual(t, flags, 1)
			})
		}
	})

	t.Run("loan item takes precedence for classification", func(t *testing.T) {
		resp := &CheckinResponse{
			Item: bestBook(catalog.StatusAvailable),
			Loan: &Loan{ID: "loan-1", Item: bestBook(catalog.StatusInTransit)},
		}
		record, err := newTestService(&fakeCheckins{resp: resp}, nil, nil).Execute(ctx, Attempt{Barcode: "1"})
		require.NoError(t, err)
		assert.True(t, record.TransitItem())
	})

	t.Run("next request has lowest position", func(t *testing.T) {
		requests := &fakeRequests{requests: []Request{
			{ID: "r3", Position: 3},
			{ID: "r1", Position: 1},
			{ID: "r2", Position: 2},
		}}
		svc := newTestService(&fakeCheckins{resp: &CheckinResponse{Item: bestBook(catalog.StatusAwaitingPickup)}}, requests, nil)

		record, err := svc.Execute(ctx, Attempt{Barcode: "1"})
		require.NoError(t, err)
		require.NotNil(t, record.NextRequest)
		assert.Equal(t, "r1", record.NextRequest.ID)
		require.NotNil(t, record.NextRequest.Item)
		assert.Equal(t, "item-1", record.NextRequest.Item.ID)
	})

	t.Run("request lookup failure does not fail the check-in", func(t *testing.T) {
		requests := &fakeRequests{err: errors.New("requests down")}
		svc := newTestService(&fakeCheckins{resp: &CheckinResponse{Item: bestBook(catalog.StatusAwaitingPickup)}}, requests, nil)

		record, err := svc.Execute(ctx, Attempt{Barcode: "1"})
		require.NoError(t, err)
		assert.True(t, record.HoldItem())
		assert.Nil(t, record.NextRequest)
	})

	t.Run("rejection is passed through", func(t *testing.T) {
		rej := &RejectedError{StatusCode: 422, Field: FieldItemBarcode, Message: "no loan"}
		svc := newTestService(&fakeCheckins{err: rej}, nil, nil)

		_, err := svc.Execute(ctx, Attempt{Barcode: "1"})
		var got *RejectedError
		require.ErrorAs(t, err, &got)
		assert.Equal(t, "no loan", got.Message)
	})

	t.Run("staff slip context and in-house use are kept", func(t *testing.T) {
		resp := &CheckinResponse{
			Item:             bestBook(catalog.StatusAvailable),
			StaffSlipContext: json.RawMessage(`{"item":{"title":"Best Book Ever"}}`),
			InHouseUse:       true,
		}
		record, err := newTestService(&fakeCheckins{resp: resp}, nil, nil).Execute(ctx, Attempt{Barcode: "1"})
		require.NoError(t, err)
		assert.True(t, record.InHouseUse)
		assert.JSONEq(t, `{"item":{"title":"Best Book Ever"}}`, string(record.StaffSlipContext))
	})
}

func TestCancelLostItemFees(t *testing.T) {
	ctx := context.Background()
	resp := &CheckinResponse{
		Item: bestBook(catalog.StatusAvailable),
		Loan: &Loan{ID: "loan-1", UserID: "u1", ItemID: "item-1"},
	}
	suspended := NamedStatus{Name: PaymentSuspendedClaim}
	open := NamedStatus{Name: AccountStatusOpen}

	feefines := &fakeFeeFines{accounts: []Account{
		{ID: "a1", UserID: "u1", FeeFineType: FeeFineLostItem, Remaining: decimal.RequireFromString("25.50"), Status: open, PaymentStatus: suspended},
		{ID: "a2", UserID: "u1", FeeFineType: FeeFineLostItemProcessing, Remaining: decimal.RequireFromString("5"), Status: open, PaymentStatus: suspended},
		{ID: "a3", UserID: "u1", FeeFineType: "Overdue fine", Remaining: decimal.RequireFromString("1"), Status: open, PaymentStatus: suspended},
		{ID: "a4", UserID: "u1", FeeFineType: FeeFineLostItem, Status: NamedStatus{Name: AccountStatusClosed}, PaymentStatus: suspended},
		{ID: "a5", UserID: "u1", FeeFineType: FeeFineLostItem, Status: open, PaymentStatus: NamedStatus{Name: "Outstanding"}},
	}}

	t.Run("without resolution nothing is cancelled", func(t *testing.T) {
		ff := &fakeFeeFines{accounts: feefines.accounts}
		record, err := newTestService(&fakeCheckins{resp: resp}, nil, ff).Execute(ctx, Attempt{Barcode: "1"})
		require.NoError(t, err)
		assert.Empty(t, record.CancelledFees)
		assert.Empty(t, ff.updated)
	})

	t.Run("suspended lost item charges are closed", func(t *testing.T) {
		req := Attempt{
			Barcode:                   "1",
			ServicePointID:            "sp-1",
			ClaimedReturnedResolution: ResolutionReturnedByPatron,
			Operator:                  Operator{ID: "op-1", Name: "Desk, Staff"},
		}
		record, err := newTestService(&fakeCheckins{resp: resp}, nil, feefines).Execute(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, []string{"a1", "a2"}, record.CancelledFees)
		require.Len(t, feefines.updated, 2)
		for _, a := range feefines.updated {
			assert.Equal(t, PaymentCancelledReturned, a.PaymentStatus.Name)
			assert.Equal(t, AccountStatusClosed, a.Status.Name)
			assert.True(t, a.Remaining.IsZero())
		}

		require.Len(t, feefines.actions, 2)
		first := feefines.actions[0]
		assert.Equal(t, "a1", first.AccountID)
		assert.True(t, decimal.RequireFromString("25.50").Equal(first.AmountAction))
		assert.True(t, first.Balance.IsZero())
		assert.Equal(t, "Desk, Staff", first.Source)
		assert.Equal(t, "sp-1", first.CreatedAt)
		assert.Equal(t, PaymentCancelledReturned, first.TypeAction)
	})

	t.Run("lookup failure keeps the check-in", func(t *testing.T) {
		ff := &fakeFeeFines{err: errors.New("accounts down")}
		req := Attempt{Barcode: "1", ClaimedReturnedResolution: ResolutionFoundByLibrary}
		record, err := newTestService(&fakeCheckins{resp: resp}, nil, ff).Execute(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, record.CancelledFees)
	})
}

func TestParseRejection(t *testing.T) {
	t.Run("json with parameters", func(t *testing.T) {
		body := []byte(`{"errors":[{"message":"No item with barcode 1 exists","parameters":[{"key":"itemBarcode","value":"1"}]}]}`)
		rej := ParseRejection(422, "application/json; charset=utf-8", body)
		assert.Equal(t, "itemBarcode", rej.Field)
		assert.Equal(t, "1", rej.Message)
	})

	t.Run("json without parameters", func(t *testing.T) {
		rej := ParseRejection(422, "application/json", []byte(`{"errors":[{"message":"nope"}]}`))
		assert.Equal(t, FieldItemBarcode, rej.Field)
		assert.Equal(t, MessageUnknownError, rej.Message)
	})

	t.Run("plain text", func(t *testing.T) {
		rej := ParseRejection(500, "text/plain", []byte("Internal server error\n"))
		assert.Equal(t, "Internal server error", rej.Message)
		assert.Equal(t, 500, rej.StatusCode)
	})
}
