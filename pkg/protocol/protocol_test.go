package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestUnmarshal(t *testing.T) {
	raw := `{
		"method": "post",
		"url": "https://api.example.com/items",
		"query": {"page": "2"},
		"headers": {"X-Trace": "abc"},
		"body": {"type": "Json", "payload": {"name": "widget", "count": 3}},
		"responseType": 2
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, "post", req.Method)
	assert.Equal(t, "https://api.example.com/items", req.URL)
	assert.Equal(t, map[string]string{"page": "2"}, req.Query)
	assert.Equal(t, map[string]string{"X-Trace": "abc"}, req.Headers)
	assert.Equal(t, ResponseText, req.ResponseType)

	body, ok := req.Body.(JSONBody)
	require.True(t, ok, "body is %T", req.Body)
	assert.JSONEq(t, `{"name":"widget","count":3}`, string(body.Value.(json.RawMessage)))
}

func TestRequestUnmarshalBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Body
	}{
		{"text", `{"type":"Text","payload":"hello"}`, TextBody{Text: "hello"}},
		{"form", `{"type":"Form","payload":{"a":"1"}}`, FormBody{Payload: json.RawMessage(`{"a":"1"}`)}},
		{"json without payload", `{"type":"Json"}`, JSONBody{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			raw := `{"method":"GET","url":"https://x.test","body":` + tt.body + `}`
			require.NoError(t, json.Unmarshal([]byte(raw), &req))
			assert.Equal(t, tt.want, req.Body)
		})
	}
}

func TestRequestUnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown body type", `{"method":"GET","url":"u","body":{"type":"Xml"}}`},
		{"text payload not a string", `{"method":"GET","url":"u","body":{"type":"Text","payload":42}}`},
		{"response type zero", `{"method":"GET","url":"u","responseType":0}`},
		{"response type out of range", `{"method":"GET","url":"u","responseType":4}`},
		{"response type negative", `{"method":"GET","url":"u","responseType":-1}`},
		{"query value not a string", `{"method":"GET","url":"u","query":{"n":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			assert.Error(t, json.Unmarshal([]byte(tt.raw), &req))
		})
	}
}

func TestRequestDefaultsToJSONResponse(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"method":"GET","url":"u"}`), &req))
	assert.Nil(t, req.Body)
	assert.Equal(t, ResponseType(0), req.ResponseType)
	assert.Equal(t, ResponseJSON, req.ResponseType.Resolve())
}

func TestRequestMarshalRoundTrip(t *testing.T) {
	in := Request{
		Method:       "PUT",
		URL:          "https://x.test/a",
		Headers:      map[string]string{"A": "b"},
		Body:         TextBody{Text: "plain"},
		ResponseType: ResponseBinary,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"method":"PUT","url":"https://x.test/a","headers":{"A":"b"},
		"body":{"type":"Text","payload":"plain"},"responseType":3
	}`, string(data))

	var out Request
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestByteArrayMarshal(t *testing.T) {
	data, err := json.Marshal(ByteArray{0, 1, 127, 255})
	require.NoError(t, err)
	assert.Equal(t, `[0,1,127,255]`, string(data))

	data, err = json.Marshal(ByteArray{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	var b ByteArray
	require.NoError(t, json.Unmarshal([]byte(`[9,8,7]`), &b))
	assert.Equal(t, ByteArray{9, 8, 7}, b)
	assert.Error(t, json.Unmarshal([]byte(`[256]`), &b))
}

func TestResponseOK(t *testing.T) {
	for status, ok := range map[int]bool{199: false, 200: true, 204: true, 299: true, 300: false, 404: false} {
		assert.Equal(t, ok, (&Response{Status: status}).OK(), "status %d", status)
	}
}

func TestParseResponseType(t *testing.T) {
	rt, err := ParseResponseType("binary")
	require.NoError(t, err)
	assert.Equal(t, ResponseBinary, rt)

	_, err = ParseResponseType("xml")
	assert.Error(t, err)
}

func TestGuessBody(t *testing.T) {
	assert.Nil(t, GuessBody(""))
	assert.Equal(t, TextBody{Text: "hi"}, GuessBody("hi"))
	assert.Equal(t, TextBody{Text: "{broken"}, GuessBody("{broken"))
	assert.Equal(t, JSONBody{Value: json.RawMessage(`{"a":1}`)}, GuessBody(`{"a":1}`))
}
