package mockserver

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-consumer/pkg/pact"
)

// Capture is the snapshot of one request received by the mock server. Captures are never
// modified once recorded.
type Capture struct {
	Sequence   int
	ReceivedAt time.Time
	Request    *pact.Request
	Error      string
}

func (c Capture) String() string {
	return c.Request.String()
}

// Document renders the capture as plain JSON values for jsonpath queries. Bracketed query
// names such as filter[status] become nested objects.
func (c Capture) Document() map[string]interface{} {
	headers := make(map[string]interface{}, len(c.Request.Headers))
	for name, values := range c.Request.Headers {
		headers[name] = strings.Join(values, ", ")
	}
	doc := map[string]interface{}{
		"sequence": c.Sequence,
		"method":   c.Request.Method,
		"path":     c.Request.Path,
		"query":    queryDocument(c.Request.Query),
		"headers":  headers,
	}
	if c.Request.Body.IsPresent() {
		doc["body"] = bodyDocument(c.Request.Body)
	}
	if c.Error != "" {
		doc["error"] = c.Error
	}
	return doc
}

func bodyDocument(b pact.Body) interface{} {
	if pact.IsJSON(b.ContentType) {
		var parsed interface{}
		if err := json.Unmarshal(b.Content, &parsed); err == nil {
			return parsed
		}
	}
	return string(b.Content)
}

func queryDocument(query url.Values) map[string]interface{} {
	values := make(map[string]interface{})
	for q, v := range query {
		if len(v) > 0 {
			escapeValue(values, q, v[0])
		}
	}
	return values
}

func escapeValue(values map[string]interface{}, query, val string) {
	open := strings.Index(query, "[")
	if open > -1 {
		key := query[:open]
		rest := query[open+1:]
		closing := strings.Index(rest, "]")
		if closing < 0 {
			values[query] = val
			return
		}

		subKey := rest[:closing]
		next := rest[closing+1:]

		valueMap, ok := values[key].(map[string]interface{})
		if !ok {
			valueMap = make(map[string]interface{})
			values[key] = valueMap
		}
		escapeValue(valueMap, subKey+next, val)
		return
	}
	values[query] = val
}
