package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out. A nil out or an empty body is not
// an error.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("[client Decode] failed to decode response body: %w", err)
	}
	return nil
}
