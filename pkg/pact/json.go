package pact

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Version is recorded in the metadata of every written pact.
const Version = "0.1.0"

var specVersionPaths = []string{
	"metadata.pactSpecification.version",
	"metadata.pact-specification.version",
	"metadata.pactSpecificationVersion",
}

type partyJSON struct {
	Name string `json:"name"`
}

type providerStateJSON struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type requestJSON struct {
	Method        string                     `json:"method"`
	Path          string                     `json:"path"`
	Query         json.RawMessage            `json:"query"`
	Headers       map[string]json.RawMessage `json:"headers"`
	Body          json.RawMessage            `json:"body"`
	MatchingRules map[string]interface{}     `json:"matchingRules"`
}

type responseJSON struct {
	Status        int                        `json:"status"`
	Headers       map[string]json.RawMessage `json:"headers"`
	Body          json.RawMessage            `json:"body"`
	MatchingRules map[string]interface{}     `json:"matchingRules"`
}

type interactionJSON struct {
	Description    string                     `json:"description"`
	ProviderState  string                     `json:"providerState"`
	ProviderStates []providerStateJSON        `json:"providerStates"`
	Request        *requestJSON               `json:"request"`
	Response       *responseJSON              `json:"response"`
	Contents       json.RawMessage            `json:"contents"`
	Content        json.RawMessage            `json:"content"`
	Metadata       map[string]json.RawMessage `json:"metadata"`
	MetaData       map[string]json.RawMessage `json:"metaData"`
	MatchingRules  map[string]interface{}     `json:"matchingRules"`
}

type documentJSON struct {
	Consumer     partyJSON         `json:"consumer"`
	Provider     partyJSON         `json:"provider"`
	Interactions []interactionJSON `json:"interactions"`
	Messages     []interactionJSON `json:"messages"`
}

// Parse reads a V2 or V3 pact document. Schema violations and broken interactions are
// reported as ErrInvalidDocument.
func Parse(data []byte) (*Pact, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	version := matchingrules.V2
	for _, path := range specVersionPaths {
		if v := gjson.GetBytes(data, path); v.Exists() {
			parsed, err := matchingrules.ParseSpecVersion(v.String())
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidDocument, "%s", err)
			}
			version = parsed
			break
		}
	}

	var doc documentJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrInvalidDocument, "unable to decode pact: %s", err)
	}

	p := &Pact{Consumer: doc.Consumer.Name, Provider: doc.Provider.Name, SpecVersion: version}
	for _, raw := range append(doc.Interactions, doc.Messages...) {
		i, err := raw.decode()
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDocument, "interaction %q: %s", raw.Description, err)
		}
		p.Interactions = append(p.Interactions, i)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads a pact file.
func Load(path string) (*Pact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read pact file %s", path)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load pact file %s", path)
	}
	return p, nil
}

func (raw interactionJSON) decode() (*Interaction, error) {
	i := &Interaction{Description: raw.Description}
	for _, s := range raw.ProviderStates {
		i.ProviderStates = append(i.ProviderStates, ProviderState{Name: s.Name, Params: s.Params})
	}
	if len(i.ProviderStates) == 0 && raw.ProviderState != "" {
		i.ProviderStates = []ProviderState{{Name: raw.ProviderState}}
	}

	if raw.Request != nil || raw.Response != nil {
		if raw.Request == nil || raw.Response == nil {
			return nil, errors.New("request and response must both be present")
		}
		req, err := raw.Request.decode()
		if err != nil {
			return nil, errors.Wrap(err, "request")
		}
		res, err := raw.Response.decode()
		if err != nil {
			return nil, errors.Wrap(err, "response")
		}
		i.Request, i.Response = req, res
		return i, nil
	}

	m := NewMessage()
	metadata := raw.Metadata
	if metadata == nil {
		metadata = raw.MetaData
	}
	for k, v := range metadata {
		value, err := body.Parse(v)
		if err != nil {
			return nil, errors.Wrapf(err, "metadata %q", k)
		}
		m.Metadata[k] = value
	}
	contents := raw.Contents
	if contents == nil {
		contents = raw.Content
	}
	var err error
	if m.Contents, err = decodeBody(contents, m.ContentType()); err != nil {
		return nil, errors.Wrap(err, "contents")
	}
	if m.MatchingRules, err = matchingrules.FromJSON(raw.MatchingRules); err != nil {
		return nil, err
	}
	i.Message = m
	return i, nil
}

func (raw *requestJSON) decode() (*Request, error) {
	r := NewRequest()
	if raw.Method != "" {
		r.Method = strings.ToUpper(raw.Method)
	}
	if raw.Path != "" {
		r.Path = raw.Path
	}
	var err error
	if r.Query, err = decodeQuery(raw.Query); err != nil {
		return nil, err
	}
	if r.Headers, err = decodeHeaders(raw.Headers); err != nil {
		return nil, err
	}
	if r.Body, err = decodeBody(raw.Body, headerContentType(r.Headers)); err != nil {
		return nil, err
	}
	if r.MatchingRules, err = matchingrules.FromJSON(raw.MatchingRules); err != nil {
		return nil, err
	}
	return r, nil
}

func (raw *responseJSON) decode() (*Response, error) {
	r := NewResponse()
	if raw.Status != 0 {
		r.Status = raw.Status
	}
	var err error
	if r.Headers, err = decodeHeaders(raw.Headers); err != nil {
		return nil, err
	}
	if r.Body, err = decodeBody(raw.Body, headerContentType(r.Headers)); err != nil {
		return nil, err
	}
	if r.MatchingRules, err = matchingrules.FromJSON(raw.MatchingRules); err != nil {
		return nil, err
	}
	return r, nil
}

func headerContentType(headers map[string][]string) string {
	ct, _ := HeaderValue(headers, "Content-Type")
	return ct
}

func decodeHeaders(raw map[string]json.RawMessage) (map[string][]string, error) {
	headers := map[string][]string{}
	for name, value := range raw {
		values, err := stringOrList(value)
		if err != nil {
			return nil, errors.Wrapf(err, "header %q", name)
		}
		headers[name] = values
	}
	return headers, nil
}

func decodeQuery(raw json.RawMessage) (map[string][]string, error) {
	query := map[string][]string{}
	if len(raw) == 0 || string(raw) == "null" {
		return query, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		values, err := url.ParseQuery(s)
		if err != nil {
			return nil, errors.Wrap(err, "query string")
		}
		return values, nil
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.Wrap(err, "query")
	}
	for name, value := range params {
		values, err := stringOrList(value)
		if err != nil {
			return nil, errors.Wrapf(err, "query parameter %q", name)
		}
		query[name] = values
	}
	return query, nil
}

func stringOrList(raw json.RawMessage) ([]string, error) {
	value, err := body.Parse(raw)
	if err != nil {
		return nil, err
	}
	if value.Kind() == body.KindArray {
		out := make([]string, 0, value.Len())
		for _, item := range value.Items() {
			out = append(out, item.String())
		}
		return out, nil
	}
	return []string{strings.TrimSpace(value.String())}, nil
}

// decodeBody keeps JSON bodies as compact JSON bytes and other bodies as their text.
func decodeBody(raw json.RawMessage, declared string) (Body, error) {
	if raw == nil {
		return MissingBody(), nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return MissingBody(), nil
	}
	if string(trimmed) == "null" {
		return NullBody(), nil
	}

	if trimmed[0] != '"' {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return Body{}, err
		}
		ct := BaseType(declared)
		if ct == "" {
			ct = MediaTypeJSON
		}
		return BodyFrom(buf.Bytes(), ct), nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return Body{}, err
	}
	content := []byte(s)
	switch {
	case IsJSON(declared) && s != "":
		// A JSON string stays a JSON string, even when its text is itself valid JSON.
		content = trimmed
	case BaseType(declared) == MediaTypeOctet:
		if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
			content = decoded
		}
	}
	ct := BaseType(declared)
	if ct == "" {
		ct = DetectContentType(content)
	}
	return BodyFrom(content, ct), nil
}

func encodeBody(b Body, contentType string) interface{} {
	switch b.State {
	case BodyNull:
		return nil
	case BodyEmpty:
		return ""
	}
	switch {
	case IsJSON(contentType) && gjson.ValidBytes(b.Content):
		return json.RawMessage(b.Content)
	case BaseType(contentType) == MediaTypeOctet:
		return base64.StdEncoding.EncodeToString(b.Content)
	}
	return string(b.Content)
}

func encodeHeaders(headers map[string][]string) map[string]interface{} {
	out := make(map[string]interface{}, len(headers))
	for name, values := range headers {
		if len(values) == 1 {
			out[name] = values[0]
			continue
		}
		out[name] = values
	}
	return out
}

func encodeQuery(query map[string][]string, v matchingrules.SpecVersion) interface{} {
	if v < matchingrules.V3 {
		return url.Values(query).Encode()
	}
	return query
}

func (r *Request) toJSON(v matchingrules.SpecVersion) map[string]interface{} {
	out := map[string]interface{}{
		"method": strings.ToUpper(r.Method),
		"path":   r.Path,
	}
	if len(r.Query) > 0 {
		out["query"] = encodeQuery(r.Query, v)
	}
	if len(r.Headers) > 0 {
		out["headers"] = encodeHeaders(r.Headers)
	}
	if !r.Body.IsMissing() {
		out["body"] = encodeBody(r.Body, r.ContentType())
	}
	if rules := r.MatchingRules.ToJSON(v); rules != nil {
		out["matchingRules"] = rules
	}
	return out
}

func (r *Response) toJSON(v matchingrules.SpecVersion) map[string]interface{} {
	out := map[string]interface{}{"status": r.Status}
	if len(r.Headers) > 0 {
		out["headers"] = encodeHeaders(r.Headers)
	}
	if !r.Body.IsMissing() {
		out["body"] = encodeBody(r.Body, r.ContentType())
	}
	if rules := r.MatchingRules.ToJSON(v); rules != nil {
		out["matchingRules"] = rules
	}
	return out
}

func (m *Message) toJSON(v matchingrules.SpecVersion) map[string]interface{} {
	metadata := make(map[string]interface{}, len(m.Metadata))
	for k, value := range m.Metadata {
		metadata[k] = value
	}
	out := map[string]interface{}{"metadata": metadata}
	if !m.Contents.IsMissing() {
		out["contents"] = encodeBody(m.Contents, m.ContentType())
	}
	if rules := m.MatchingRules.ToJSON(v); rules != nil {
		out["matchingRules"] = rules
	}
	return out
}

func (i *Interaction) toJSON(v matchingrules.SpecVersion) map[string]interface{} {
	out := map[string]interface{}{"description": i.Description}
	if len(i.ProviderStates) > 0 {
		if v < matchingrules.V3 {
			out["providerState"] = i.ProviderStates[0].Name
		} else {
			states := make([]providerStateJSON, 0, len(i.ProviderStates))
			for _, s := range i.ProviderStates {
				states = append(states, providerStateJSON{Name: s.Name, Params: s.Params})
			}
			out["providerStates"] = states
		}
	}
	if i.Message != nil {
		for k, value := range i.Message.toJSON(v) {
			out[k] = value
		}
		return out
	}
	out["request"] = i.Request.toJSON(v)
	out["response"] = i.Response.toJSON(v)
	return out
}

// ToJSON renders the document for its specification version, indented, with the version
// recorded in the metadata.
func (p *Pact) ToJSON() ([]byte, error) {
	version := p.SpecVersion
	if version == 0 {
		version = matchingrules.V3
	}
	interactions := make([]interface{}, 0, len(p.Interactions))
	for _, i := range p.Interactions {
		interactions = append(interactions, i.toJSON(version))
	}
	data, err := json.Marshal(map[string]interface{}{
		"consumer":     partyJSON{Name: p.Consumer},
		"provider":     partyJSON{Name: p.Provider},
		"interactions": interactions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode pact")
	}

	if data, err = sjson.SetBytes(data, "metadata.pactSpecification.version", version.String()); err != nil {
		return nil, errors.Wrap(err, "unable to set pact specification version")
	}
	if data, err = sjson.SetBytes(data, "metadata.pact-consumer.version", Version); err != nil {
		return nil, errors.Wrap(err, "unable to set pact-consumer version")
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, errors.Wrap(err, "unable to format pact")
	}
	return out.Bytes(), nil
}

func (p *Pact) MarshalJSON() ([]byte, error) {
	data, err := p.ToJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Compact(&out, data); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Equal compares two interactions by their V3 JSON form, which ignores map ordering.
func (i *Interaction) Equal(o *Interaction) bool {
	a, errA := json.Marshal(i.toJSON(matchingrules.V3))
	b, errB := json.Marshal(o.toJSON(matchingrules.V3))
	if errA != nil || errB != nil {
		return false
	}
	var x, y interface{}
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}

// Describe lists the interactions, one per line, for logs.
func (p *Pact) Describe() string {
	lines := make([]string, 0, len(p.Interactions))
	for _, i := range p.Interactions {
		if i.IsMessage() {
			lines = append(lines, fmt.Sprintf("message %q", i.Description))
			continue
		}
		lines = append(lines, fmt.Sprintf("%q: %s -> %d", i.Description, i.Request, i.Response.Status))
	}
	return strings.Join(lines, "\n")
}
