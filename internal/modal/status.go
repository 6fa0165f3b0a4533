// internal/modal/status.go
package modal

import (
	"checkindesk/internal/circulation"
)

// Staff slip names printed from the status dialogs.
const (
	SlipTransit = "Transit"
	SlipHold    = "Hold"
)

// For returns the status dialog a completed check-in needs, or None for an
// ordinary return.
func For(r *circulation.Record) Kind {
	if r == nil {
		return None
	}
	switch r.Classification {
	case circulation.ClassTransit:
		return TransitStatus
	case circulation.ClassHold:
		return HoldStatus
	case circulation.ClassDelivery:
		return DeliveryStatus
	}
	return None
}

// SlipFor returns the staff slip a status dialog can print, or "" if it
// has no print option.
func SlipFor(k Kind) string {
	switch k {
	case TransitStatus:
		return SlipTransit
	case HoldStatus:
		return SlipHold
	}
	return ""
}

// Handoff is what the delivery dialog passes to the checkout workflow.
type Handoff struct {
	ItemBarcode   string `json:"itemBarcode"`
	PatronBarcode string `json:"patronBarcode"`
}

// DeliveryHandoff builds the checkout handoff for a delivery record. The
// patron is the requester of the request the item now fills.
func DeliveryHandoff(r *circulation.Record) Handoff {
	h := Handoff{ItemBarcode: r.Item.Barcode}
	if r.NextRequest != nil && r.NextRequest.Requester != nil {
		h.PatronBarcode = r.NextRequest.Requester.Barcode
	}
	return h
}
