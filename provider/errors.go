package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error is an authority failure with its machine-readable code.
type Error struct {
	Status  int    // HTTP status, 0 when the failure never reached the authority
	Code    string // e.g. "otp_expired", "invalid_grant", "flow_state_not_found"
	Message string
	Op      string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("authority error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ParseError decodes an authority error body. The authority has used several shapes
// over time: {"error_code","msg"}, {"code","msg"}, {"error","error_description"}
// and {"message"}; all of them normalise into one Error.
func ParseError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = strings.TrimSpace(string(body))
		return e
	}

	e.Code = firstString(raw, "error_code", "error")
	if e.Code == "" {
		// "code" is a string on newer authorities and the HTTP status on older ones.
		if c, ok := raw["code"].(string); ok {
			e.Code = c
		}
	}
	e.Message = firstString(raw, "msg", "error_description", "message")
	if e.Status == 0 {
		if n, ok := raw["code"].(float64); ok {
			e.Status = int(n)
		} else if s, ok := raw["status"].(string); ok {
			e.Status, _ = strconv.Atoi(s)
		}
	}
	return e
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
