// internal/circulation/domain.go
package circulation

import (
	"encoding/json"
	"time"

	"checkindesk/internal/catalog"

	"github.com/shopspring/decimal"
)

// Claimed-returned resolutions the operator can choose from.
const (
	ResolutionFoundByLibrary   = "Found by library"
	ResolutionReturnedByPatron = "Returned by patron"
)

// Request statuses an item can be waiting in after check-in.
const (
	RequestAwaitingPickup   = "Open - Awaiting pickup"
	RequestAwaitingDelivery = "Open - Awaiting delivery"
)

// Fee/fine values involved in cancelling lost item charges.
const (
	FeeFineLostItem           = "Lost item fee"
	FeeFineLostItemProcessing = "Lost item processing fee"
	AccountStatusOpen         = "Open"
	AccountStatusClosed       = "Closed"
	PaymentSuspendedClaim     = "Suspended claim returned"
	PaymentCancelledReturned  = "Cancelled item returned"
)

// Classification is the special status an item ends up in after check-in.
// At most one applies per check-in.
type Classification string

const (
	ClassNone     Classification = ""
	ClassTransit  Classification = "transit"
	ClassHold     Classification = "hold"
	ClassDelivery Classification = "delivery"
)

// Classify maps an item status to its classification.
func Classify(statusName string) Classification {
	switch statusName {
	case catalog.StatusInTransit:
		return ClassTransit
	case catalog.StatusAwaitingPickup:
		return ClassHold
	case catalog.StatusAwaitingDelivery:
		return ClassDelivery
	}
	return ClassNone
}

// Loan is an item lent to a patron.
type Loan struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId"`
	ItemID           string        `json:"itemId"`
	Action           string        `json:"action,omitempty"`
	DueDate          string        `json:"dueDate,omitempty"`
	ReturnDate       string        `json:"returnDate,omitempty"`
	SystemReturnDate string        `json:"systemReturnDate,omitempty"`
	Borrower         *Borrower     `json:"borrower,omitempty"`
	Item             *catalog.Item `json:"item,omitempty"`
}

// Borrower is the patron summary embedded in a loan.
type Borrower struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Barcode   string `json:"barcode,omitempty"`
}

// Request is a hold or page request placed on an item.
type Request struct {
	ID                    string        `json:"id"`
	ItemID                string        `json:"itemId"`
	RequesterID           string        `json:"requesterId,omitempty"`
	Status                string        `json:"status"`
	Position              int           `json:"position"`
	RequestType           string        `json:"requestType,omitempty"`
	FulfillmentPreference string        `json:"fulfillmentPreference,omitempty"`
	Requester             *Borrower     `json:"requester,omitempty"`
	Item                  *catalog.Item `json:"item,omitempty"`
}

// CheckinRequest is the body sent to the check-in endpoint.
type CheckinRequest struct {
	ServicePointID            string `json:"servicePointId"`
	CheckInDate               string `json:"checkInDate"`
	ItemBarcode               string `json:"itemBarcode"`
	ClaimedReturnedResolution string `json:"claimedReturnedResolution,omitempty"`
}

// CheckinResponse is what the check-in endpoint answers with.
type CheckinResponse struct {
	Loan             *Loan           `json:"loan,omitempty"`
	Item             *catalog.Item   `json:"item"`
	StaffSlipContext json.RawMessage `json:"staffSlipContext,omitempty"`
	InHouseUse       bool            `json:"inHouseUse,omitempty"`
}

// Account is a fee/fine charged to a patron.
type Account struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	ItemID        string          `json:"itemId,omitempty"`
	LoanID        string          `json:"loanId,omitempty"`
	FeeFineType   string          `json:"feeFineType"`
	Amount        decimal.Decimal `json:"amount"`
	Remaining     decimal.Decimal `json:"remaining"`
	Status        NamedStatus     `json:"status"`
	PaymentStatus NamedStatus     `json:"paymentStatus"`

	// raw holds the account as the server sent it. Accounts are replaced
	// whole on update, so fields not modelled here are written back as is.
	raw map[string]json.RawMessage
}

type accountFields Account

func (a *Account) UnmarshalJSON(b []byte) error {
	var fields accountFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = Account(fields)
	a.raw = raw
	return nil
}

// MarshalJSON writes the modelled fields over the account as it was read.
func (a Account) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(accountFields(a))
	if err != nil || len(a.raw) == 0 {
		return known, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(a.raw)+len(fields))
	for k, v := range a.raw {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// NamedStatus is a status object holding only a name.
type NamedStatus struct {
	Name string `json:"name"`
}

// FeeFineAction records an operation performed on an account.
type FeeFineAction struct {
	ID           string          `json:"id,omitempty"`
	AccountID    string          `json:"accountId"`
	UserID       string          `json:"userId"`
	TypeAction   string          `json:"typeAction"`
	AmountAction decimal.Decimal `json:"amountAction"`
	Balance      decimal.Decimal `json:"balance"`
	Source       string          `json:"source"`
	CreatedAt    string          `json:"createdAt"`
	DateAction   time.Time       `json:"dateAction"`
	Notify       bool            `json:"notify"`
}

// Record is one completed check-in as kept in the session list.
type Record struct {
	Item             catalog.Item    `json:"item"`
	Loan             *Loan           `json:"loan,omitempty"`
	ReturnDate       string          `json:"returnDate"`
	SystemReturnDate string          `json:"systemReturnDate"`
	NextRequest      *Request        `json:"nextRequest,omitempty"`
	Classification   Classification  `json:"classification,omitempty"`
	StaffSlipContext json.RawMessage `json:"staffSlipContext,omitempty"`
	InHouseUse       bool            `json:"inHouseUse,omitempty"`
	CancelledFees    []string        `json:"cancelledFees,omitempty"`
}

// Title is the display title of the checked-in item.
func (r *Record) Title() string { return r.Item.DisplayTitle() }

// UserID returns the patron of the loan, if any.
func (r *Record) UserID() string {
	if r.Loan == nil {
		return ""
	}
	return r.Loan.UserID
}

func (r *Record) TransitItem() bool  { return r.Classification == ClassTransit }
func (r *Record) HoldItem() bool     { return r.Classification == ClassHold }
func (r *Record) DeliveryItem() bool { return r.Classification == ClassDelivery }
