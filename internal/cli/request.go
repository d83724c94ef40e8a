package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/mtlsbridge/internal/tui"
	"github.com/mtlsbridge/pkg/protocol"
)

var errManyBodies = errors.New("only one of --data, --json and --form may be given")

// requestFlags are the send command's request options.
type requestFlags struct {
	method       string
	headers      []string
	query        []string
	data         string
	json         string
	form         []string
	responseType string
}

func (f requestFlags) build(url string) (*protocol.Request, error) {
	req := &protocol.Request{URL: url}

	var err error
	if req.Headers, err = parsePairs(f.headers, ":"); err != nil {
		return nil, err
	}
	if req.Query, err = parsePairs(f.query, "="); err != nil {
		return nil, err
	}

	bodies := 0
	for _, given := range []bool{f.data != "", f.json != "", len(f.form) > 0} {
		if given {
			bodies++
		}
	}
	if bodies > 1 {
		return nil, errManyBodies
	}

	switch {
	case f.data != "":
		req.Body = protocol.TextBody{Text: f.data}
	case f.json != "":
		if !json.Valid([]byte(f.json)) {
			return nil, fmt.Errorf("--json is not valid JSON")
		}
		req.Body = protocol.JSONBody{Value: json.RawMessage(f.json)}
	case len(f.form) > 0:
		fields, err := parsePairs(f.form, "=")
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		req.Body = protocol.FormBody{Payload: payload}
	}

	req.Method = f.method
	if req.Method == "" {
		req.Method = http.MethodGet
		if req.Body != nil {
			req.Method = http.MethodPost
		}
	}

	if f.responseType != "" {
		if req.ResponseType, err = protocol.ParseResponseType(f.responseType); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// parsePairs splits "name<sep>value" items. Later duplicates win.
func parsePairs(items []string, sep string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, sep)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid value %q, expected name%svalue", item, sep)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// printResponse writes resp either as one compact JSON line or, for
// terminals, as a styled status line, headers and an indented body.
func printResponse(w io.Writer, resp *protocol.Response, pretty bool) error {
	if !pretty {
		out, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	fmt.Fprintln(w, tui.RenderStatus(resp.Status, http.StatusText(resp.Status)))

	names := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %s\n", tui.LabelStyle.Render(name), resp.Headers[name])
	}
	fmt.Fprintln(w)

	_, err := fmt.Fprintln(w, tui.FormatBody(resp.Body, 0))
	return err
}
