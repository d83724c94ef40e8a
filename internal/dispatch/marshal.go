package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/mtlsbridge/pkg/protocol"
)

// Marshal converts resp into a response descriptor. It reads and consumes
// the body; the caller still closes it. limit caps the body size when
// positive.
func Marshal(resp *http.Response, rt protocol.ResponseType, limit int64) (*protocol.Response, error) {
	headers, err := marshalHeaders(resp.Header)
	if err != nil {
		return nil, err
	}

	data, err := readBody(resp.Body, limit)
	if err != nil {
		return nil, newError(KindNetwork, err)
	}

	out := &protocol.Response{
		Status:  resp.StatusCode,
		Headers: headers,
	}

	switch rt.Resolve() {
	case protocol.ResponseText:
		out.Body = decodeText(data, resp.Header.Get("Content-Type"))
	case protocol.ResponseBinary:
		out.Body = protocol.ByteArray(data)
	case protocol.ResponseJSON:
		v, err := decodeJSON(data)
		if err != nil {
			return nil, newError(KindJSON, err)
		}
		out.Body = v
	default:
		return nil, newError(KindJSON, fmt.Errorf("unknown response type %d", rt))
	}

	return out, nil
}

func marshalHeaders(h http.Header) (map[string]string, error) {
	out := make(map[string]string, len(h))
	for name, values := range h {
		for _, v := range values {
			if !utf8.ValidString(v) {
				return nil, newError(KindUTF8, fmt.Errorf("%w in header %q", ErrInvalidUTF8, name))
			}
		}
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out, nil
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", ErrResponseTooLarge, limit)
	}
	return data, nil
}

// decodeText honours a declared charset and replaces undecodable bytes.
func decodeText(data []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label := params["charset"]; label != "" {
			if enc, _ := charset.Lookup(label); enc != nil {
				if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
					data = decoded
				}
			}
		}
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode response body: trailing data after JSON value")
	}
	return v, nil
}
