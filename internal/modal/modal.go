// internal/modal/modal.go
package modal

// Kind tags the dialog currently in front of the operator.
type Kind string

const (
	None            Kind = ""
	ClaimedReturned Kind = "claimedReturned"
	Multipiece      Kind = "multipiece"
	Missing         Kind = "missing"
	CheckinNotes    Kind = "checkinNotes"
	SelectItem      Kind = "selectItem"
	TransitStatus   Kind = "transitStatus"
	HoldStatus      Kind = "holdStatus"
	DeliveryStatus  Kind = "deliveryStatus"
	Error           Kind = "error"
)

// PreCheckin reports whether k is one of the confirmations shown before
// the check-in call.
func (k Kind) PreCheckin() bool {
	switch k {
	case ClaimedReturned, Multipiece, Missing, CheckinNotes:
		return true
	}
	return false
}

// PostCheckin reports whether k is a status dialog shown after check-in.
func (k Kind) PostCheckin() bool {
	switch k {
	case TransitStatus, HoldStatus, DeliveryStatus:
		return true
	}
	return false
}

// Set is a set of dialog kinds.
type Set map[Kind]struct{}

// NewSet returns a set holding kinds.
func NewSet(kinds ...Kind) Set {
	s := make(Set, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s Set) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

func (s Set) Add(k Kind) { s[k] = struct{}{} }
