// internal/clients/config_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"checkindesk/internal/settings"
	"checkindesk/internal/slips"
)

// ConfigClient reads service point, staff slip and settings configuration.
type ConfigClient struct {
	*Client
}

func NewConfigClient(c *Client) *ConfigClient {
	return &ConfigClient{Client: c}
}

func (c *ConfigClient) ServicePoint(ctx context.Context, id string) (*slips.ServicePoint, error) {
	var sp slips.ServicePoint
	if err := c.do(ctx, http.MethodGet, "/service-points/"+url.PathEscape(id), nil, nil, &sp); err != nil {
		return nil, err
	}
	return &sp, nil
}

func (c *ConfigClient) StaffSlips(ctx context.Context) ([]slips.StaffSlip, error) {
	q := url.Values{}
	q.Set("query", "cql.allRecords=1")
	q.Set("limit", "100")

	var body struct {
		StaffSlips []slips.StaffSlip `json:"staffSlips"`
	}
	if err := c.do(ctx, http.MethodGet, "/staff-slips-storage/staff-slips", q, nil, &body); err != nil {
		return nil, err
	}
	return body.StaffSlips, nil
}

// CheckinSettings returns the raw check-out/check-in settings records.
func (c *ConfigClient) CheckinSettings(ctx context.Context) ([]settings.RawRecord, error) {
	q := url.Values{}
	q.Set("query", `module=="CHECKOUT" and configName=="other_settings"`)

	var body struct {
		Configs []settings.RawRecord `json:"configs"`
	}
	if err := c.do(ctx, http.MethodGet, "/configurations/entries", q, nil, &body); err != nil {
		return nil, err
	}
	return body.Configs, nil
}
