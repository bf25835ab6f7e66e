package toolkit

import (
	"context"
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"io"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// request is a single call sent to the bridge
type request struct {
	ID   int            `json:"id"`
	Op   string         `json:"op"`
	Args map[string]any `json:"args,omitempty"`
}

// response is the bridge's reply to a request
type response struct {
	ID    int    `json:"id"`
	Ret   int    `json:"ret"`
	Error string `json:"error,omitempty"`
}

// conn is a JSON lines connection to the bridge process, requests are
// written to w and responses read from r one at a time
type conn struct {
	enc    *jsoniter.Encoder
	dec    *jsoniter.Decoder
	w      io.Closer
	nextID int
	// broken is set once a response was abandoned, the stream can no
	// longer be trusted to pair responses with requests
	broken error
}

func newConn(r io.Reader, w io.WriteCloser) *conn {
	return &conn{
		enc: json.NewEncoder(w),
		dec: json.NewDecoder(r),
		w:   w,
	}
}

// call sends a request and waits for its response or for ctx to be done
func (c *conn) call(ctx context.Context, op string, args map[string]any) (response, error) {

	if c.broken != nil {
		return response{}, c.broken
	}

	c.nextID++
	req := request{ID: c.nextID, Op: op, Args: args}

	if err := c.enc.Encode(req); err != nil {
		return response{}, fmt.Errorf("error sending %s to toolkit: %w", op, err)
	}

	type result struct {
		resp response
		err  error
	}

	done := make(chan result, 1)

	go func() {
		var resp response
		err := c.dec.Decode(&resp)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		c.broken = fmt.Errorf("toolkit connection abandoned during %s: %w", op, ctx.Err())
		return response{}, c.broken

	case res := <-done:
		if res.err != nil {
			c.broken = fmt.Errorf("error reading toolkit %s response: %w", op, res.err)
			return response{}, c.broken
		}

		if res.resp.ID != req.ID {
			return response{}, fmt.Errorf("toolkit %s response id %d does not match request %d",
				op, res.resp.ID, req.ID)
		}

		return res.resp, nil
	}
}

// close signals end of input to the bridge
func (c *conn) close() error {
	return c.w.Close()
}
