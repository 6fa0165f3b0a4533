// internal/clients/users_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// User is the part of a user record the desk reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Barcode  string `json:"barcode,omitempty"`
	Personal struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"personal"`
}

// DisplayName renders "Last, First", falling back to the username.
func (u *User) DisplayName() string {
	first, last := strings.TrimSpace(u.Personal.FirstName), strings.TrimSpace(u.Personal.LastName)
	switch {
	case last != "" && first != "":
		return last + ", " + first
	case last != "":
		return last
	case first != "":
		return first
	}
	return u.Username
}

type UsersClient struct {
	*Client
}

func NewUsersClient(c *Client) *UsersClient {
	return &UsersClient{Client: c}
}

func (c *UsersClient) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
