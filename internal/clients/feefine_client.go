// internal/clients/feefine_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"checkindesk/internal/circulation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// The fee/fine module expects amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type FeeFineClient struct {
	*Client
}

func NewFeeFineClient(c *Client) *FeeFineClient {
	return &FeeFineClient{Client: c}
}

// AccountsForLoan lists the fee/fine accounts of a patron for one item and
// loan.
func (c *FeeFineClient) AccountsForLoan(ctx context.Context, userID, itemID, loanID string) ([]circulation.Account, error) {
	query := "userId==" + cqlQuote(userID) + " and itemId==" + cqlQuote(itemID)
	if loanID != "" {
		query += " and loanId==" + cqlQuote(loanID)
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", "1000")

	var body struct {
		Accounts []circulation.Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", q, nil, &body); err != nil {
		return nil, err
	}
	return body.Accounts, nil
}

// UpdateAccount replaces an account.
func (c *FeeFineClient) UpdateAccount(ctx context.Context, account circulation.Account) error {
	return c.do(ctx, http.MethodPut, "/accounts/"+url.PathEscape(account.ID), nil, account, nil)
}

// CreateAction records a fee/fine action. An id is generated when missing.
func (c *FeeFineClient) CreateAction(ctx context.Context, action circulation.FeeFineAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	return c.do(ctx, http.MethodPost, "/feefineactions", nil, action, nil)
}
