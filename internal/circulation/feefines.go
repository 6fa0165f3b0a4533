// internal/circulation/feefines.go
package circulation

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// cancellable reports whether an account is a lost item charge suspended
// by a claimed-returned report.
func cancellable(a Account) bool {
	if a.FeeFineType != FeeFineLostItem && a.FeeFineType != FeeFineLostItemProcessing {
		return false
	}
	return a.Status.Name == AccountStatusOpen && a.PaymentStatus.Name == PaymentSuspendedClaim
}

// cancelLostItemFees closes the lost item charges of a loan whose claim was
// resolved at check-in. Failures are logged and skipped; the check-in stands.
func (s *service) cancelLostItemFees(ctx context.Context, loan *Loan, req Attempt) []string {
	if s.feefines == nil {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "circulation.cancel_lost_item_fees",
		trace.WithAttributes(attribute.String("loan.id", loan.ID)),
	)
	defer span.End()

	logger := s.logger.WithFields(logrus.Fields{
		"loan_id": loan.ID,
		"user_id": loan.UserID,
	})

	accounts, err := s.feefines.AccountsForLoan(ctx, loan.UserID, loan.ItemID, loan.ID)
	if err != nil {
		span.RecordError(err)
		logger.WithError(err).Warn("fee/fine lookup failed after check-in")
		return nil
	}

	var cancelled []string
	for _, account := range accounts {
		if !cancellable(account) {
			continue
		}

		amount := account.Remaining
		account.PaymentStatus = NamedStatus{Name: PaymentCancelledReturned}
		account.Remaining = decimal.Zero
		account.Status = NamedStatus{Name: AccountStatusClosed}

		if err := s.feefines.UpdateAccount(ctx, account); err != nil {
			span.RecordError(err)
			logger.WithError(err).WithField("account_id", account.ID).Warn("failed to close lost item charge")
			continue
		}

		action := FeeFineAction{
			AccountID:    account.ID,
			UserID:       account.UserID,
			TypeAction:   PaymentCancelledReturned,
			AmountAction: amount,
			Balance:      decimal.Zero,
			Source:       req.Operator.Name,
			CreatedAt:    req.ServicePointID,
			DateAction:   s.now().UTC(),
		}
		if err := s.feefines.CreateAction(ctx, action); err != nil {
			span.RecordError(err)
			logger.WithError(err).WithField("account_id", account.ID).Warn("failed to record fee/fine cancellation")
		}
		cancelled = append(cancelled, account.ID)
	}

	span.SetAttributes(attribute.Int("accounts.cancelled", len(cancelled)))
	return cancelled
}
