package varsync

import (
	"fmt"
	"time"
)

// Client pulls named variable collections from a Source on a step
// cadence and hands them to an apply callback.
type Client struct {
	source Source
	names  []string
	apply  func(map[string][]Variable) error

	// updatePeriod gates UpdateIfStale: a fetch happens only once
	// step - lastUpdateStep reaches it.
	updatePeriod int64

	lastUpdateStep int64
	fetched        bool

	// retryWait paces UpdateAndWait while the source is unreachable.
	retryWait time.Duration
}

// NewClient returns a client pulling the given collections from
// source. The apply callback receives each successful fetch.
func NewClient(source Source, names []string, updatePeriod int64,
	apply func(map[string][]Variable) error) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("newclient: no variable source")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("newclient: no variable collections named")
	}
	if updatePeriod < 1 {
		return nil, fmt.Errorf("newclient: update period must be positive "+
			"\n\thave(%v)", updatePeriod)
	}
	if apply == nil {
		return nil, fmt.Errorf("newclient: no apply callback")
	}
	return &Client{
		source:       source,
		names:        names,
		apply:        apply,
		updatePeriod: updatePeriod,
		retryWait:    time.Second,
	}, nil
}

// UpdateAndWait blocks until the first fetch succeeds, retrying on
// transient source errors. Actors call this once on startup so they
// never act on randomly initialized parameters.
func (c *Client) UpdateAndWait() error {
	for {
		if err := c.fetch(); err == nil {
			return nil
		}
		time.Sleep(c.retryWait)
	}
}

// UpdateIfStale fetches fresh variables if at least updatePeriod steps
// have passed since the last fetch. The first call always fetches.
func (c *Client) UpdateIfStale(step int64) error {
	if c.fetched && step-c.lastUpdateStep < c.updatePeriod {
		return nil
	}
	if err := c.fetch(); err != nil {
		return fmt.Errorf("updateifstale: %v", err)
	}
	c.lastUpdateStep = step
	return nil
}

func (c *Client) fetch() error {
	variables, err := c.source.GetVariables(c.names)
	if err != nil {
		return fmt.Errorf("fetch: %v", err)
	}
	if err := c.apply(variables); err != nil {
		return fmt.Errorf("fetch: could not apply variables: %v", err)
	}
	c.fetched = true
	return nil
}
