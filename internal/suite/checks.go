package suite

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"greenlight/internal/api"
)

// The check helpers cover the response assertions cases need: status
// code, response time ceiling, header presence and values, body keys and
// key values (recursive), and typed schema decode. Each records failures
// on t and keeps going.

// CheckStatus verifies the response status code.
func (t *T) CheckStatus(resp *api.Response, want int) {
	if resp.StatusCode != want {
		t.Failf("expected status code %d, got %d", want, resp.StatusCode)
	}
}

// CheckResponseTime verifies the response arrived within max.
func (t *T) CheckResponseTime(resp *api.Response, max time.Duration) {
	if resp.Elapsed > max {
		t.Failf("response time %s exceeds max %s", resp.Elapsed, max)
	}
}

// CheckHeadersPresent verifies each named header exists.
func (t *T) CheckHeadersPresent(resp *api.Response, names ...string) {
	for _, name := range names {
		if resp.Headers.Get(name) == "" {
			t.Failf("header %q not found", name)
		}
	}
}

// CheckHeaderValues verifies header values. The expected value is matched
// as a prefix so "application/json" accepts a charset suffix.
func (t *T) CheckHeaderValues(resp *api.Response, want map[string]string) {
	for name, value := range want {
		got := resp.Headers.Get(name)
		if !strings.HasPrefix(got, value) {
			t.Failf("header %q: expected %q, got %q", name, value, got)
		}
	}
}

// CheckBodyKeysPresent verifies each key occurs somewhere in the body.
// JSON bodies are searched recursively; XML bodies by element name.
func (t *T) CheckBodyKeysPresent(resp *api.Response, keys ...string) {
	values, err := bodyKeyValues(resp)
	if err != nil {
		t.Failf("body is not valid JSON or XML: %v", err)
		return
	}
	for _, key := range keys {
		if len(values[key]) == 0 {
			t.Failf("body key %q not found", key)
		}
	}
}

// CheckBodyKeyValues verifies at least one occurrence of each key has the
// expected value: any record matching is enough.
func (t *T) CheckBodyKeyValues(resp *api.Response, want map[string]any) {
	values, err := bodyKeyValues(resp)
	if err != nil {
		t.Failf("body is not valid JSON or XML: %v", err)
		return
	}
	for key, expected := range want {
		found := values[key]
		if len(found) == 0 {
			t.Failf("body key %q not found in any record", key)
			continue
		}
		match := false
		for _, v := range found {
			if valueEqual(v, expected) {
				match = true
				break
			}
		}
		if !match {
			t.Failf("body key %q: no value equals %v (found %v)", key, expected, found)
		}
	}
}

// CheckSchema decodes the body into model with unknown fields rejected,
// failing the case on a decode error.
func (t *T) CheckSchema(resp *api.Response, model any) {
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(model); err != nil {
		t.Failf("schema validation failed: %v", err)
	}
}

// CheckXMLSchema decodes the body into model, failing the case on a
// decode error. The model's xml tags define the expected shape.
func (t *T) CheckXMLSchema(resp *api.Response, model any) {
	if err := xml.Unmarshal(resp.Body, model); err != nil {
		t.Failf("xml schema validation failed: %v", err)
	}
}

// bodyKeyValues flattens the body into per-key occurrence lists. Content
// type picks the parser.
func bodyKeyValues(resp *api.Response) (map[string][]any, error) {
	if strings.Contains(resp.Headers.Get("Content-Type"), "application/xml") {
		return xmlKeyValues(resp.Body)
	}
	var body any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, err
	}
	values := map[string][]any{}
	collectJSON(body, values)
	return values, nil
}

func collectJSON(node any, values map[string][]any) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			values[key] = append(values[key], child)
			collectJSON(child, values)
		}
	case []any:
		for _, child := range v {
			collectJSON(child, values)
		}
	}
}

func xmlKeyValues(body []byte) (map[string][]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	values := map[string][]any{}
	var stack []string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return values, nil
		}
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			stack = append(stack, el.Name.Local)
			text.Reset()
		case xml.CharData:
			text.Write(el)
		case xml.EndElement:
			name := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			values[name] = append(values[name], strings.TrimSpace(text.String()))
			text.Reset()
		}
	}
}

// valueEqual compares a body value with an expected literal across the
// numeric and string representations JSON and XML produce.
func valueEqual(got, want any) bool {
	if gf, ok := got.(float64); ok {
		switch w := want.(type) {
		case int:
			return gf == float64(w)
		case float64:
			return gf == w
		}
	}
	if gs, ok := got.(string); ok {
		switch w := want.(type) {
		case string:
			return gs == w
		case int:
			return gs == jsonNumber(w)
		}
	}
	return got == want
}

func jsonNumber(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}
