// internal/clients/circulation_client.go
package clients

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"checkindesk/internal/circulation"
	"checkindesk/internal/session"
)

type CirculationClient struct {
	*Client
}

func NewCirculationClient(c *Client) *CirculationClient {
	return &CirculationClient{Client: c}
}

// CheckIn posts a check-in by barcode. Refusals come back as
// *circulation.RejectedError.
func (c *CirculationClient) CheckIn(ctx context.Context, req circulation.CheckinRequest) (*circulation.CheckinResponse, error) {
	var resp circulation.CheckinResponse
	err := c.do(ctx, http.MethodPost, "/circulation/check-in-by-barcode", nil, req, &resp)

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return nil, circulation.ParseRejection(statusErr.StatusCode, statusErr.ContentType, statusErr.Body)
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenRequestsForItem returns the requests waiting for the item at a pickup
// or delivery step.
func (c *CirculationClient) OpenRequestsForItem(ctx context.Context, itemID string) ([]circulation.Request, error) {
	q := url.Values{}
	q.Set("query", "itemId=="+cqlQuote(itemID)+
		" and status==("+cqlQuote(circulation.RequestAwaitingPickup)+" or "+cqlQuote(circulation.RequestAwaitingDelivery)+")"+
		" sortby position/sort.ascending")
	q.Set("limit", strconv.Itoa(1000))

	var body struct {
		Requests []circulation.Request `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/circulation/requests", q, nil, &body); err != nil {
		return nil, err
	}
	return body.Requests, nil
}

// EndPatronSessions closes the patron action sessions opened by check-ins.
func (c *CirculationClient) EndPatronSessions(ctx context.Context, entries []session.EndSessionEntry) error {
	body := struct {
		EndSessions []session.EndSessionEntry `json:"endSessions"`
	}{EndSessions: entries}
	return c.do(ctx, http.MethodPost, "/circulation/end-patron-action-session", nil, body, nil)
}
