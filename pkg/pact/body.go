package pact

import (
	"bytes"
	"mime"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
)

const (
	MediaTypeJSON  = "application/json"
	MediaTypeXML   = "application/xml"
	MediaTypeText  = "text/plain"
	MediaTypeOctet = "application/octet-stream"
)

type BodyState int

const (
	BodyMissing BodyState = iota
	BodyNull
	BodyEmpty
	BodyPresent
)

// Body is an optional payload. A missing body is not checked, a null body must be absent
// and an empty body has zero bytes.
type Body struct {
	State       BodyState
	Content     []byte
	ContentType string
}

func MissingBody() Body {
	return Body{State: BodyMissing}
}

func NullBody() Body {
	return Body{State: BodyNull}
}

// BodyFrom wraps raw bytes; no bytes gives an empty body.
func BodyFrom(content []byte, contentType string) Body {
	if len(content) == 0 {
		return Body{State: BodyEmpty, ContentType: contentType}
	}
	return Body{State: BodyPresent, Content: content, ContentType: contentType}
}

// JSONBody renders a tree value as a JSON body.
func JSONBody(v body.Value) Body {
	data, _ := v.MarshalJSON()
	return BodyFrom(data, MediaTypeJSON)
}

func (b Body) IsMissing() bool { return b.State == BodyMissing }
func (b Body) IsNull() bool    { return b.State == BodyNull }
func (b Body) IsEmpty() bool   { return b.State == BodyEmpty }
func (b Body) IsPresent() bool { return b.State == BodyPresent }

func (b Body) String() string {
	switch b.State {
	case BodyMissing:
		return "<missing>"
	case BodyNull:
		return "<null>"
	}
	return string(b.Content)
}

func (b Body) Equal(o Body) bool {
	return b.State == o.State && bytes.Equal(b.Content, o.Content) && b.ContentType == o.ContentType
}

// DetectContentType guesses a media type from the content when none is declared.
func DetectContentType(content []byte) string {
	trimmed := bytes.TrimSpace(content)
	switch {
	case len(trimmed) == 0:
		return ""
	case trimmed[0] == '{' || trimmed[0] == '[':
		if _, err := body.Parse(trimmed); err == nil {
			return MediaTypeJSON
		}
	case bytes.HasPrefix(trimmed, []byte("<?xml")) || trimmed[0] == '<':
		return MediaTypeXML
	}
	return MediaTypeText
}

// BaseType returns the lower-cased media type without parameters.
func BaseType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType
}

func IsJSON(contentType string) bool {
	base := BaseType(contentType)
	return base == MediaTypeJSON || strings.HasSuffix(base, "+json") ||
		(strings.HasPrefix(base, "application/") && strings.HasSuffix(base, "json"))
}

func IsXML(contentType string) bool {
	base := BaseType(contentType)
	return base == MediaTypeXML || base == "text/xml" || strings.HasSuffix(base, "+xml")
}

// HeaderValue returns the first value of a header, looked up case-insensitively.
func HeaderValue(headers map[string][]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}

func contentTypeOf(headers map[string][]string, b Body) string {
	if ct, ok := HeaderValue(headers, "Content-Type"); ok {
		return ct
	}
	if b.ContentType != "" {
		return b.ContentType
	}
	if b.IsPresent() {
		return DetectContentType(b.Content)
	}
	return ""
}
