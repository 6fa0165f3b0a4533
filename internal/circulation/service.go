// internal/circulation/service.go
package circulation

import (
	"context"
)

// CheckinAPI performs the authoritative check-in.
type CheckinAPI interface {
	CheckIn(ctx context.Context, req CheckinRequest) (*CheckinResponse, error)
}

// RequestFinder lists the open requests an item is waiting to fill.
type RequestFinder interface {
	OpenRequestsForItem(ctx context.Context, itemID string) ([]Request, error)
}

// FeeFineAPI reads and closes fee/fine accounts.
type FeeFineAPI interface {
	AccountsForLoan(ctx context.Context, userID, itemID, loanID string) ([]Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	CreateAction(ctx context.Context, action FeeFineAction) error
}

// Service defines the interface for the check-in executor.
type Service interface {
	Execute(ctx context.Context, req Attempt) (*Record, error)
}
