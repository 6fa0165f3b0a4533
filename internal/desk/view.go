// internal/desk/view.go
package desk

import (
	"checkindesk/internal/catalog"
	"checkindesk/internal/circulation"
	"checkindesk/internal/modal"
)

// SubmitInput is what the operator enters for one scan. Blank date or time
// means now.
type SubmitInput struct {
	Barcode     string `json:"itemBarcode"`
	CheckinDate string `json:"checkinDate,omitempty"`
	CheckinTime string `json:"checkinTime,omitempty"`
}

// FieldError is an error shown next to a form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Form is the scan form as the operator sees it.
type Form struct {
	Barcode     string      `json:"itemBarcode"`
	CheckinDate string      `json:"checkinDate,omitempty"`
	CheckinTime string      `json:"checkinTime,omitempty"`
	Error       *FieldError `json:"error,omitempty"`
}

// Selection is the page of candidates of an ambiguous lookup.
type Selection struct {
	Items        []catalog.Item `json:"items"`
	TotalRecords int            `json:"totalRecords"`
	Offset       int            `json:"offset"`
	NextOffset   int            `json:"nextOffset,omitempty"`
}

// Pending is the barcode currently being processed.
type Pending struct {
	Barcode     string              `json:"barcode"`
	CheckinDate string              `json:"checkinDate,omitempty"`
	CheckinTime string              `json:"checkinTime,omitempty"`
	Item        *catalog.Item       `json:"candidateItem,omitempty"`
	Modal       modal.Kind          `json:"activeModal"`
	Resolution  string              `json:"claimedReturnedResolution,omitempty"`
	Selection   *Selection          `json:"selection,omitempty"`
	Record      *circulation.Record `json:"record,omitempty"`
	Slip        string              `json:"slip,omitempty"`
	PrintSlip   bool                `json:"printSlip"`
	Error       string              `json:"error,omitempty"`

	query string
	shown modal.Set
}

func (p *Pending) fail(message string) {
	p.Modal = modal.Error
	p.Error = message
	p.Selection = nil
}

// Notes is the read-only check-in notes dialog of a listed record.
type Notes struct {
	Index int                       `json:"index"`
	Title string                    `json:"title"`
	Notes []catalog.CirculationNote `json:"notes"`
}

// Record actions offered in the list.
const (
	ActionCheckinNotes   = "checkinNotes"
	ActionItemDetails    = "itemDetails"
	ActionLoanDetails    = "loanDetails"
	ActionPatronDetails  = "patronDetails"
	ActionRequestDetails = "requestDetails"
	ActionPrintSlip      = "printSlip"
)

// RecordView is a listed check-in with its display title and the actions
// the operator can take on it.
type RecordView struct {
	circulation.Record
	Title   string   `json:"title"`
	Actions []string `json:"actions"`
}

func newRecordView(r circulation.Record) RecordView {
	return RecordView{Record: r, Title: r.Title(), Actions: recordActions(&r)}
}

// recordActions lists the actions of a record. Items borrowed through DCB
// belong to another library, so only their notes can be opened.
func recordActions(r *circulation.Record) []string {
	var actions []string
	if len(r.Item.CheckinNotes()) > 0 {
		actions = append(actions, ActionCheckinNotes)
	}
	if r.Item.IsDCB() {
		return actions
	}
	actions = append(actions, ActionItemDetails)
	if r.Loan != nil {
		actions = append(actions, ActionLoanDetails, ActionPatronDetails)
	}
	if r.NextRequest != nil {
		actions = append(actions, ActionRequestDetails)
	}
	if r.TransitItem() || r.HoldItem() {
		actions = append(actions, ActionPrintSlip)
	}
	return actions
}

// View is the full desk state.
type View struct {
	SessionID  string       `json:"sessionId"`
	Records    []RecordView `json:"scannedItems"`
	Form       Form         `json:"form"`
	Modal      modal.Kind   `json:"activeModal"`
	Pending    *Pending     `json:"pending,omitempty"`
	Notes      *Notes       `json:"notes,omitempty"`
	Busy       bool         `json:"busy"`
	TimerArmed bool         `json:"timerArmed"`
}

// PrintedSlip is a rendered staff slip.
type PrintedSlip struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type sessionEndedEntry struct {
	Reason  string   `json:"reason"`
	Records int      `json:"records"`
	Patrons []string `json:"patrons,omitempty"`
}
