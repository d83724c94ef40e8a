package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ResponseType selects how a response body is represented.
type ResponseType uint16

const (
	ResponseJSON   ResponseType = 1
	ResponseText   ResponseType = 2
	ResponseBinary ResponseType = 3
)

// Resolve returns the effective representation; the zero value means Json.
func (t ResponseType) Resolve() ResponseType {
	if t == 0 {
		return ResponseJSON
	}
	return t
}

// Valid reports whether t is unset or one of the known codes.
func (t ResponseType) Valid() bool {
	return t <= ResponseBinary
}

func (t ResponseType) String() string {
	switch t.Resolve() {
	case ResponseJSON:
		return "json"
	case ResponseText:
		return "text"
	case ResponseBinary:
		return "binary"
	default:
		return "ResponseType(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseResponseType accepts the names used on the command line.
func ParseResponseType(s string) (ResponseType, error) {
	switch s {
	case "", "json", "1":
		return ResponseJSON, nil
	case "text", "2":
		return ResponseText, nil
	case "binary", "bytes", "3":
		return ResponseBinary, nil
	default:
		return 0, fmt.Errorf("unknown response type %q", s)
	}
}

// UnmarshalJSON rejects codes outside 1..3 instead of coercing them.
func (t *ResponseType) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = 0
		return nil
	}
	var n uint16
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("responseType: %w", err)
	}
	v := ResponseType(n)
	if v == 0 || !v.Valid() {
		return fmt.Errorf("responseType: unknown code %d", n)
	}
	*t = v
	return nil
}

// Request describes one outbound call as sent by the front end.
type Request struct {
	Method       string
	URL          string
	Query        map[string]string
	Headers      map[string]string
	Body         Body
	ResponseType ResponseType
}

type requestWire struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Query        map[string]string `json:"query,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         *bodyWire         `json:"body,omitempty"`
	ResponseType ResponseType      `json:"responseType,omitempty"`
}

// MarshalJSON encodes the request in its wire shape.
func (r Request) MarshalJSON() ([]byte, error) {
	w := requestWire{
		Method:       r.Method,
		URL:          r.URL,
		Query:        r.Query,
		Headers:      r.Headers,
		ResponseType: r.ResponseType,
	}
	if r.Body != nil {
		bw, err := encodeBody(r.Body)
		if err != nil {
			return nil, err
		}
		w.Body = bw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape, resolving the tagged body.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w requestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Request{
		Method:       w.Method,
		URL:          w.URL,
		Query:        w.Query,
		Headers:      w.Headers,
		ResponseType: w.ResponseType,
	}
	if w.Body != nil {
		b, err := w.Body.decode()
		if err != nil {
			return err
		}
		r.Body = b
	}
	return nil
}

// Response is the marshaled result of one call.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// ByteArray encodes as a JSON array of byte values rather than base64.
type ByteArray []byte

// MarshalJSON implements json.Marshaler.
func (b ByteArray) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, 2+len(b)*4)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	// []uint8 decodes from base64, so go through a wider type.
	var wide []uint16
	if err := json.Unmarshal(data, &wide); err != nil {
		return err
	}
	vals := make([]uint8, len(wide))
	for i, v := range wide {
		if v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		vals[i] = uint8(v)
	}
	*b = vals
	return nil
}

// ClientConfig contains the configuration of one named client.
type ClientConfig struct {
	// TLS is nil for system trust and no client identity.
	TLS *TLSConfig

	Transport       Transport
	MaxIdleConns    int
	IdleConnTimeout time.Duration

	// Timeout bounds a whole round trip including the body read. Zero disables it.
	Timeout time.Duration

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	// MaxResponseBytes caps the body read; zero means unlimited.
	MaxResponseBytes int64
}
