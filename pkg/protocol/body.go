package protocol

import (
	"encoding/json"
	"fmt"
)

// BodyKind tags a request body on the wire.
type BodyKind string

const (
	KindForm BodyKind = "Form"
	KindJSON BodyKind = "Json"
	KindText BodyKind = "Text"
)

// Body is a request payload. It is implemented only by FormBody, JSONBody
// and TextBody.
type Body interface {
	Kind() BodyKind
	isBody()
}

// FormBody is accepted on the wire but sends no bytes.
type FormBody struct {
	Payload json.RawMessage
}

// JSONBody is serialized to JSON when the request is translated.
type JSONBody struct {
	Value any
}

// TextBody is sent as literal bytes.
type TextBody struct {
	Text string
}

func (FormBody) Kind() BodyKind { return KindForm }
func (JSONBody) Kind() BodyKind { return KindJSON }
func (TextBody) Kind() BodyKind { return KindText }

func (FormBody) isBody() {}
func (JSONBody) isBody() {}
func (TextBody) isBody() {}

type bodyWire struct {
	Type    BodyKind        `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (w *bodyWire) decode() (Body, error) {
	switch w.Type {
	case KindForm:
		return FormBody{Payload: w.Payload}, nil
	case KindJSON:
		var v any
		if len(w.Payload) > 0 {
			v = w.Payload
		}
		return JSONBody{Value: v}, nil
	case KindText:
		var s string
		if len(w.Payload) > 0 {
			if err := json.Unmarshal(w.Payload, &s); err != nil {
				return nil, fmt.Errorf("text body payload: %w", err)
			}
		}
		return TextBody{Text: s}, nil
	default:
		return nil, fmt.Errorf("unknown body type %q", w.Type)
	}
}

func encodeBody(b Body) (*bodyWire, error) {
	w := &bodyWire{Type: b.Kind()}
	switch v := b.(type) {
	case FormBody:
		w.Payload = v.Payload
	case JSONBody:
		if v.Value != nil {
			data, err := json.Marshal(v.Value)
			if err != nil {
				return nil, fmt.Errorf("json body payload: %w", err)
			}
			w.Payload = data
		}
	case TextBody:
		data, err := json.Marshal(v.Text)
		if err != nil {
			return nil, err
		}
		w.Payload = data
	default:
		return nil, fmt.Errorf("unsupported body %T", b)
	}
	return w, nil
}

// GuessBody returns a JSON body when s is a JSON object or array, a text
// body otherwise, and nil for an empty string.
func GuessBody(s string) Body {
	if s == "" {
		return nil
	}
	if (s[0] == '{' || s[0] == '[') && json.Valid([]byte(s)) {
		return JSONBody{Value: json.RawMessage(s)}
	}
	return TextBody{Text: s}
}
