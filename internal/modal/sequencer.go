// internal/modal/sequencer.go
package modal

import (
	"checkindesk/internal/catalog"
)

// confirmOnCheckin are the statuses that need the operator to confirm
// before the item is checked in.
var confirmOnCheckin = map[string]struct{}{
	catalog.StatusMissing:         {},
	catalog.StatusDeclaredLost:    {},
	catalog.StatusWithdrawn:       {},
	catalog.StatusLostAndPaid:     {},
	catalog.StatusRestricted:      {},
	catalog.StatusAgedToLost:      {},
	catalog.StatusInProcessNonReq: {},
	catalog.StatusLongMissing:     {},
	catalog.StatusUnavailable:     {},
	catalog.StatusUnknown:         {},
}

type step struct {
	kind    Kind
	trigger func(*catalog.Item) bool
}

// steps is evaluated top to bottom; a claimed-returned item is always
// confirmed first.
var steps = []step{
	{ClaimedReturned, isClaimedReturned},
	{Multipiece, isMultipiece},
	{Missing, needsStatusConfirmation},
	{CheckinNotes, hasCheckinNotes},
}

func isClaimedReturned(item *catalog.Item) bool {
	return item.Status.Name == catalog.StatusClaimedReturned
}

func isMultipiece(item *catalog.Item) bool {
	return item.NumberOfPieces.Int() > 1 ||
		item.DescriptionOfPieces != "" ||
		item.NumberOfMissingPieces.Truthy() ||
		item.MissingPieces != ""
}

func needsStatusConfirmation(item *catalog.Item) bool {
	_, ok := confirmOnCheckin[item.Status.Name]
	return ok
}

func hasCheckinNotes(item *catalog.Item) bool {
	return len(item.CheckinNotes()) > 0
}

// NextRequired returns the first confirmation the item still needs, or
// None when check-in may proceed.
func NextRequired(item *catalog.Item, alreadyShown Set) Kind {
	if item == nil {
		return None
	}
	for _, s := range steps {
		if alreadyShown.Has(s.kind) {
			continue
		}
		if s.trigger(item) {
			return s.kind
		}
	}
	return None
}

// Required lists every confirmation the item needs, in the order they will
// be shown.
func Required(item *catalog.Item) []Kind {
	shown := NewSet()
	var kinds []Kind
	for {
		k := NextRequired(item, shown)
		if k == None {
			return kinds
		}
		kinds = append(kinds, k)
		shown.Add(k)
	}
}
