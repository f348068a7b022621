package pact

import (
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// RequestFromHTTP snapshots an incoming request. content is the already read body.
func RequestFromHTTP(r *http.Request, content []byte) *Request {
	req := NewRequest()
	req.Method = strings.ToUpper(r.Method)
	if r.URL.Path != "" {
		req.Path = r.URL.Path
	}
	for k, v := range r.URL.Query() {
		req.Query[k] = append([]string(nil), v...)
	}
	for k, v := range r.Header {
		req.Headers[k] = append([]string(nil), v...)
	}
	if len(content) > 0 {
		req.Body = BodyFrom(append([]byte(nil), content...), bodyType(r.Header.Get("Content-Type"), content))
	}
	return req
}

// ResponseFromHTTP reads and closes the response body.
func ResponseFromHTTP(r *http.Response) (*Response, error) {
	defer r.Body.Close()
	content, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response body")
	}
	res := NewResponse()
	res.Status = r.StatusCode
	for k, v := range r.Header {
		res.Headers[k] = append([]string(nil), v...)
	}
	if len(content) > 0 {
		res.Body = BodyFrom(content, bodyType(r.Header.Get("Content-Type"), content))
	}
	return res, nil
}

func bodyType(header string, content []byte) string {
	if ct := BaseType(header); ct != "" {
		return ct
	}
	return DetectContentType(content)
}
