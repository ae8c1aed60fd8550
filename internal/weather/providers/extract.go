package providers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Jeffail/gabs"

	"github.com/i474232898/stopweather/internal/failure"
)

// parseBody parses a provider response into a gabs container.
// Anything that is not a JSON object is a Decode failure.
func parseBody(provider string, body []byte) (*gabs.Container, error) {
	doc, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, failure.New(failure.Decode, provider, err)
	}
	if _, ok := doc.Data().(map[string]interface{}); !ok {
		return nil, failure.Newf(failure.Decode, provider, "response is not a JSON object")
	}
	return doc, nil
}

// requireNumber returns the number at path or a Decode failure when it is absent.
func requireNumber(provider string, c *gabs.Container, path string) (float64, error) {
	v := number(c, path)
	if v == nil {
		return 0, failure.Newf(failure.Decode, provider, "missing field %q", path)
	}
	return *v, nil
}

// requireObject returns the object found at c or a Decode failure naming path.
func requireObject(provider string, c *gabs.Container, path string) (*gabs.Container, error) {
	if _, ok := c.Data().(map[string]interface{}); !ok {
		return nil, failure.Newf(failure.Decode, provider, "missing field %q", path)
	}
	return c, nil
}

// number returns the numeric value at path, or nil when absent or not a number.
// An empty path reads c itself.
func number(c *gabs.Container, path string) *float64 {
	node := c
	if path != "" {
		node = c.Path(path)
	}
	return toFloat(node.Data())
}

func toFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func text(c *gabs.Container, path string) string {
	node := c
	if path != "" {
		node = c.Path(path)
	}
	s, _ := node.Data().(string)
	return s
}

// unixTime reads a unix-seconds field as a UTC time.
func unixTime(c *gabs.Container, path string) *time.Time {
	v := number(c, path)
	if v == nil || *v <= 0 {
		return nil
	}
	t := time.Unix(int64(*v), 0).UTC()
	return &t
}

// rfc3339Time reads an RFC 3339 timestamp field as a UTC time.
func rfc3339Time(c *gabs.Container, path string) *time.Time {
	s := text(c, path)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func integer(c *gabs.Container, path string) *int64 {
	v := number(c, path)
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}

func scaled(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * factor
	return &out
}

// subDocument returns the raw bytes found by walking steps into body, keeping the
// provider's key order. Numeric steps index arrays. Missing steps yield fallback.
func subDocument(body []byte, fallback []byte, steps ...string) json.RawMessage {
	cur := json.RawMessage(body)
	for _, step := range steps {
		if idx, err := strconv.Atoi(step); err == nil {
			var arr []json.RawMessage
			if json.Unmarshal(cur, &arr) != nil || idx < 0 || idx >= len(arr) {
				return fallback
			}
			cur = arr[idx]
			continue
		}
		var obj map[string]json.RawMessage
		if json.Unmarshal(cur, &obj) != nil {
			return fallback
		}
		next, ok := obj[step]
		if !ok || string(next) == "null" {
			return fallback
		}
		cur = next
	}
	return cur
}

// apiError reports a provider-level error carried inside a 2xx body as a Network failure.
// Both WeatherStack and AerisWeather use {"success": false, "error": {...}}.
func apiError(provider string, doc *gabs.Container, messagePaths ...string) error {
	ok, present := doc.Path("success").Data().(bool)
	if !present || ok {
		return nil
	}
	msg := "request rejected"
	for _, p := range messagePaths {
		if s := text(doc, p); s != "" {
			msg = s
			break
		}
	}
	code := number(doc, "error.code")
	if code != nil {
		return failure.Newf(failure.Network, provider, "api error %v: %s", *code, msg)
	}
	if s := text(doc, "error.code"); s != "" {
		return failure.Newf(failure.Network, provider, "api error %s: %s", s, msg)
	}
	return failure.New(failure.Network, provider, fmt.Errorf("api error: %s", msg))
}
