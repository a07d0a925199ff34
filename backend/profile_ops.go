package backend

import (
	"context"
	"net/http"
	"net/url"
)

func eq(id string) url.Values {
	return url.Values{"id": {"eq." + id}, "select": {"*"}}
}

// GetProfile reads one profile row. A missing row is an *APIError whose
// IsNoRows is true.
func (c *Client) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := c.do(ctx, request{
		client:  c.authed,
		method:  http.MethodGet,
		path:    restPath + profilesTbl,
		query:   eq(id),
		headers: map[string]string{"Accept": mediaObjectJSON},
		out:     &p,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile patches the row with the given id and returns it.
func (c *Client) UpdateProfile(ctx context.Context, id string, updates ProfileUpdates) (*Profile, error) {
	var p Profile
	err := c.do(ctx, request{
		client: c.authed,
		method: http.MethodPatch,
		path:   restPath + profilesTbl,
		query:  eq(id),
		headers: map[string]string{
			"Accept":     mediaObjectJSON,
			headerPrefer: "return=representation",
		},
		body: updates,
		out:  &p,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertProfile creates a new row; it fails if the id already exists.
func (c *Client) InsertProfile(ctx context.Context, profile Profile) (*Profile, error) {
	var p Profile
	err := c.do(ctx, request{
		client: c.authed,
		method: http.MethodPost,
		path:   restPath + profilesTbl,
		query:  url.Values{"select": {"*"}},
		headers: map[string]string{
			"Accept":     mediaObjectJSON,
			headerPrefer: "return=representation",
		},
		body: profile,
		out:  &p,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile inserts or merges the row keyed by id.
func (c *Client) UpsertProfile(ctx context.Context, profile Profile) (*Profile, error) {
	var p Profile
	err := c.do(ctx, request{
		client: c.authed,
		method: http.MethodPost,
		path:   restPath + profilesTbl,
		query:  url.Values{"on_conflict": {"id"}, "select": {"*"}},
		headers: map[string]string{
			"Accept":     mediaObjectJSON,
			headerPrefer: "resolution=merge-duplicates,return=representation",
		},
		body: profile,
		out:  &p,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ping issues the cheapest possible data API read.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{
		client: c.authed,
		method: http.MethodGet,
		path:   restPath + profilesTbl,
		query:  url.Values{"select": {"id"}, "limit": {"1"}},
	})
}
