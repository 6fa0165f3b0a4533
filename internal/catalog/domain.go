// internal/catalog/domain.go
package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Item status names the desk reacts to.
const (
	StatusAvailable        = "Available"
	StatusClaimedReturned  = "Claimed returned"
	StatusInTransit        = "In transit"
	StatusAwaitingPickup   = "Awaiting pickup"
	StatusAwaitingDelivery = "Awaiting delivery"
	StatusMissing          = "Missing"
	StatusDeclaredLost     = "Declared lost"
	StatusWithdrawn        = "Withdrawn"
	StatusLostAndPaid      = "Lost and paid"
	StatusRestricted       = "Restricted"
	StatusAgedToLost       = "Aged to lost"
	StatusInProcessNonReq  = "In process (non-requestable)"
	StatusLongMissing      = "Long missing"
	StatusUnavailable      = "Unavailable"
	StatusUnknown          = "Unknown"
)

// NoteTypeCheckIn is the circulation note type shown before check-in.
const NoteTypeCheckIn = "Check in"

// Virtual records that stand in for items borrowed through a consortium.
const (
	DCBInstanceID = "9d1b77e4-f02e-4b7f-b296-3f2042ddac54"
	DCBHoldingsID = "10cd3a5a-d36f-4c7a-bc4f-e1ae3cf820c9"
)

// Item is a snapshot of a catalog item as returned by the inventory service.
type Item struct {
	ID                    string            `json:"id"`
	Barcode               string            `json:"barcode"`
	Title                 string            `json:"title"`
	CallNumber            string            `json:"callNumber,omitempty"`
	InstanceID            string            `json:"instanceId,omitempty"`
	HoldingsRecordID      string            `json:"holdingsRecordId,omitempty"`
	MaterialType          Named             `json:"materialType"`
	Status                Status            `json:"status"`
	EffectiveLocation     Named             `json:"effectiveLocation"`
	InTransitDestination  *Named            `json:"inTransitDestinationServicePoint,omitempty"`
	NumberOfPieces        Count             `json:"numberOfPieces,omitzero"`
	DescriptionOfPieces   string            `json:"descriptionOfPieces,omitempty"`
	NumberOfMissingPieces Count             `json:"numberOfMissingPieces,omitzero"`
	MissingPieces         string            `json:"missingPieces,omitempty"`
	CirculationNotes      []CirculationNote `json:"circulationNotes,omitempty"`
}

// Named is any reference carrying an id and a display name.
type Named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Status is the item status with the date it last changed.
type Status struct {
	Name string `json:"name"`
	Date string `json:"date,omitempty"`
}

// CirculationNote is a staff note attached to an item.
type CirculationNote struct {
	ID        string `json:"id,omitempty"`
	NoteType  string `json:"noteType"`
	Note      string `json:"note"`
	StaffOnly bool   `json:"staffOnly"`
	Date      string `json:"date,omitempty"`
}

// Count is a piece count. Inventory stores these as free text, but older
// records carry JSON numbers. The two are kept apart: any non-empty text
// counts as set, while a number counts only when it is not zero.
type Count struct {
	text    string
	numeric bool
}

// TextCount is a count entered as text.
func TextCount(s string) Count { return Count{text: s} }

// NumberCount is a count stored as a JSON number.
func NumberCount(n int) Count { return Count{text: strconv.Itoa(n), numeric: true} }

func (c *Count) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Count{text: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = Count{text: n.String(), numeric: true}
	return nil
}

func (c Count) MarshalJSON() ([]byte, error) {
	if c.numeric {
		return []byte(c.text), nil
	}
	return json.Marshal(c.text)
}

// IsZero reports an absent count.
func (c Count) IsZero() bool { return c == Count{} }

func (c Count) String() string { return c.text }

// Int returns the numeric value, or zero if the count is not a number.
func (c Count) Int() int {
	n, err := strconv.Atoi(strings.TrimSpace(c.text))
	if err != nil {
		return 0
	}
	return n
}

// Truthy reports whether the count is set: non-empty text, or a non-zero
// number.
func (c Count) Truthy() bool {
	if !c.numeric {
		return c.text != ""
	}
	f, err := strconv.ParseFloat(c.text, 64)
	return err == nil && f != 0
}

// DisplayTitle is the title followed by the material type in parentheses.
func (i *Item) DisplayTitle() string {
	if i.MaterialType.Name == "" {
		return i.Title
	}
	return i.Title + " (" + i.MaterialType.Name + ")"
}

// CheckinNotes returns the circulation notes meant to be shown at check-in.
func (i *Item) CheckinNotes() []CirculationNote {
	var notes []CirculationNote
	for _, n := range i.CirculationNotes {
		if n.NoteType == NoteTypeCheckIn {
			notes = append(notes, n)
		}
	}
	return notes
}

// IsDCB reports whether the item is a virtual consortial-borrowing record.
func (i *Item) IsDCB() bool {
	return i.InstanceID == DCBInstanceID || i.HoldingsRecordID == DCBHoldingsID
}

// ItemCollection is a page of inventory search results.
type ItemCollection struct {
	Items        []Item `json:"items"`
	TotalRecords int    `json:"totalRecords"`
}
