package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/mtlsbridge/pkg/protocol"
)

// Translate builds the outbound request. It performs no I/O, so every
// validation failure is reported before anything is sent.
func Translate(ctx context.Context, req *protocol.Request) (*http.Request, error) {
	if req == nil {
		return nil, newError(KindHTTP, ErrNilRequest)
	}

	method, err := normalizeMethod(req.Method)
	if err != nil {
		return nil, err
	}

	u, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, err
	}

	if err := validateHeaders(req.Headers); err != nil {
		return nil, err
	}

	payload, isJSON, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, newError(KindHTTP, err)
	}

	for name, value := range req.Headers {
		if strings.EqualFold(name, "Host") {
			httpReq.Host = value
			continue
		}
		httpReq.Header.Set(name, value)
	}

	if isJSON && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

func normalizeMethod(m string) (string, error) {
	upper := strings.ToUpper(m)
	if upper == "" {
		return "", newError(KindMethod, fmt.Errorf("%w: empty", ErrInvalidMethod))
	}
	for _, r := range upper {
		if !httpguts.IsTokenRune(r) {
			return "", newError(KindMethod, fmt.Errorf("%w: %q", ErrInvalidMethod, m))
		}
	}
	return upper, nil
}

func buildURL(raw string, query map[string]string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, newError(KindHTTP, fmt.Errorf("%w: %w", ErrInvalidURL, err))
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, newError(KindHTTP, fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw))
	}

	if len(query) > 0 {
		extra := make(url.Values, len(query))
		for k, v := range query {
			extra.Set(k, v)
		}
		if u.RawQuery == "" {
			u.RawQuery = extra.Encode()
		} else {
			u.RawQuery += "&" + extra.Encode()
		}
	}
	return u, nil
}

func validateHeaders(headers map[string]string) error {
	for name, value := range headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return newError(KindHTTP, fmt.Errorf("%w name %q", ErrInvalidHeader, name))
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return newError(KindHTTP, fmt.Errorf("%w value for %q", ErrInvalidHeader, name))
		}
	}
	return nil
}

// encodeBody returns the bytes to send, and whether they are JSON.
func encodeBody(b protocol.Body) ([]byte, bool, error) {
	switch v := b.(type) {
	case nil:
		return nil, false, nil
	case protocol.FormBody:
		// Form payloads are accepted but not transmitted.
		return nil, false, nil
	case protocol.JSONBody:
		data, err := json.Marshal(v.Value)
		if err != nil {
			return nil, false, newError(KindJSON, err)
		}
		return data, true, nil
	case protocol.TextBody:
		return []byte(v.Text), false, nil
	default:
		return nil, false, newError(KindHTTP, fmt.Errorf("unsupported body %T", b))
	}
}
