// internal/clients/catalog_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"checkindesk/internal/catalog"
)

type CatalogClient struct {
	*Client
}

func NewCatalogClient(c *Client) *CatalogClient {
	return &CatalogClient{Client: c}
}

// SearchItems runs an inventory item query.
func (c *CatalogClient) SearchItems(ctx context.Context, query string, limit, offset int) (*catalog.ItemCollection, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var coll catalog.ItemCollection
	if err := c.do(ctx, http.MethodGet, "/inventory/items", q, nil, &coll); err != nil {
		return nil, err
	}
	return &coll, nil
}
