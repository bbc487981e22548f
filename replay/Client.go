package replay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gaitlab/dmpo/timestep"
)

// Sampler is the learner's view of replay: a blocking batched read.
type Sampler interface {
	Sample(batch int) ([]timestep.Transition, error)
}

// Client talks to a remote replay server. It implements the same
// Insert/Sample contract as Table, so actors and learners do not care
// whether replay is in-process or remote.
type Client struct {
	base string
	http *http.Client

	// retryWait paces sample retries while the server reports the rate
	// limiter has not admitted a read yet.
	retryWait time.Duration
}

// NewClient returns a client for the replay server at baseURL
// (e.g. "http://replay:9001").
func NewClient(baseURL string) *Client {
	return &Client{
		base:      baseURL,
		http:      &http.Client{},
		retryWait: 100 * time.Millisecond,
	}
}

// Insert sends one transition to the server.
func (c *Client) Insert(t timestep.Transition) error {
	req := InsertRequest{Transitions: []wireTransition{toWire(t)}}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("insert: could not encode transition: %v", err)
	}

	resp, err := c.http.Post(c.base+"/insert", "application/json",
		bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("insert: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusGone:
		return &TableError{Op: "insert", Err: errClosed}
	default:
		return fmt.Errorf("insert: server returned %v", resp.StatusCode)
	}
}

// Sample blocks until the server serves a batch, retrying while the rate
// limiter holds reads back. A torn-down server surfaces as an error for
// which IsClosed is true.
func (c *Client) Sample(batch int) ([]timestep.Transition, error) {
	url := fmt.Sprintf("%v/sample?batch_size=%v", c.base, batch)
	for {
		resp, err := c.http.Get(url)
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var sr SampleResponse
			err := json.NewDecoder(resp.Body).Decode(&sr)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("sample: could not decode batch: %v",
					err)
			}
			out := make([]timestep.Transition, len(sr.Transitions))
			for i, wt := range sr.Transitions {
				out[i] = fromWire(wt)
			}
			return out, nil
		case http.StatusServiceUnavailable:
			resp.Body.Close()
			time.Sleep(c.retryWait)
		case http.StatusGone:
			resp.Body.Close()
			return nil, &TableError{Op: "sample", Err: errClosed}
		default:
			code := resp.StatusCode
			resp.Body.Close()
			return nil, fmt.Errorf("sample: server returned %v", code)
		}
	}
}
