package esi

import (
	"context"
	"fmt"
	"time"

	"github.com/guarzo/killfeed-indexer/pkg/httpx"
)

const namesPath = "/latest/universe/names/"

// Name is one resolved entity name from the bulk lookup endpoint.
type Name struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Client resolves volatile entity ids (characters, corporations, alliances)
// to display names via the bulk names endpoint.
type Client struct {
	http *httpx.Client
}

// Opts configures the ESI client.
type Opts struct {
	Endpoints []string
	RPS       int
	Burst     int
	Timeout   time.Duration
	UserAgent string
}

// New creates a new ESI client.
func New(o Opts) *Client {
	return &Client{
		http: httpx.New(httpx.Opts{
			Endpoints: o.Endpoints,
			RPS:       o.RPS,
			Burst:     o.Burst,
			Timeout:   o.Timeout,
			UserAgent: o.UserAgent,
		}),
	}
}

// NewWithHTTP creates an ESI client over an existing transport. Used by tests.
func NewWithHTTP(c *httpx.Client) *Client {
	return &Client{http: c}
}

// Names performs one bulk lookup for the given ids. The caller is responsible
// for chunking to the per-kind batch limits; this is a single upstream call.
func (c *Client) Names(ctx context.Context, ids []int64) (map[int64]Name, error) {
	if len(ids) == 0 {
		return map[int64]Name{}, nil
	}

	var resolved []Name
	if err := c.http.PostJSON(ctx, namesPath, ids, &resolved); err != nil {
		return nil, fmt.Errorf("bulk names lookup: %w", err)
	}

	out := make(map[int64]Name, len(resolved))
	for _, n := range resolved {
		out[n.ID] = n
	}
	return out, nil
}

// NameStrings is Names flattened to id -> display name.
func (c *Client) NameStrings(ctx context.Context, ids []int64) (map[int64]string, error) {
	full, err := c.Names(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(full))
	for id, n := range full {
		out[id] = n.Name
	}
	return out, nil
}
