package transport

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/agentstation/policytool/pkg/errors"
)

// Response is a fully read HTTP response.
type Response struct {
	Service    string
	Method     string
	Endpoint   string
	StatusCode int
	Body       []byte
}

// Expect returns an APIError unless the status is one of codes.
func (r *Response) Expect(codes ...int) error {
	if slices.Contains(codes, r.StatusCode) {
		return nil
	}
	return &errors.APIError{
		Service:    r.Service,
		StatusCode: r.StatusCode,
		Message:    strings.TrimSpace(string(r.Body)),
		Endpoint:   r.Method + " " + r.Endpoint,
	}
}

// Decode unmarshals the JSON body into target.
func (r *Response) Decode(target any) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return errors.WrapParse("json", r.Endpoint, err)
	}
	return nil
}

// DecodeResponse checks the status against codes and decodes the body
// into target when target is not nil.
func DecodeResponse(resp *Response, target any, codes ...int) error {
	if len(codes) == 0 {
		codes = []int{200}
	}
	if err := resp.Expect(codes...); err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return resp.Decode(target)
}
