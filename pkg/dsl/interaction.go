package dsl

import (
	"sort"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pkg/errors"
)

// Request describes the request the consumer will send. Path, query and header matchers
// may carry rules; Body accepts a *Builder, a Matcher for a root value, a body.Value, a
// string, raw bytes or any JSON-marshallable value.
type Request struct {
	Method  string
	Path    Matcher
	Query   map[string]Matcher
	Headers map[string]Matcher
	Body    interface{}
}

// Response describes the response the provider will return.
type Response struct {
	Status  int
	Headers map[string]Matcher
	Body    interface{}
}

type pendingInteraction interface {
	finish() (*pact.Interaction, error)
}

// PactBuilder collects the interactions between one consumer and one provider.
type PactBuilder struct {
	pact    *pact.Pact
	pending []pendingInteraction
}

func NewPact(consumer, provider string) *PactBuilder {
	return &PactBuilder{pact: pact.New(consumer, provider)}
}

// SpecVersion sets the pact specification version the pact will be written with.
func (pb *PactBuilder) SpecVersion(v matchingrules.SpecVersion) *PactBuilder {
	pb.pact.SpecVersion = v
	return pb
}

func (pb *PactBuilder) AddInteraction() *InteractionBuilder {
	ib := &InteractionBuilder{interaction: &pact.Interaction{}}
	pb.pending = append(pb.pending, ib)
	return ib
}

func (pb *PactBuilder) AddMessage() *MessageBuilder {
	mb := &MessageBuilder{interaction: &pact.Interaction{Message: pact.NewMessage()}}
	pb.pending = append(pb.pending, mb)
	return mb
}

// Build returns the pact with its interactions in declaration order.
func (pb *PactBuilder) Build() (*pact.Pact, error) {
	p := *pb.pact
	p.Interactions = nil
	for _, item := range pb.pending {
		i, err := item.finish()
		if err != nil {
			return nil, err
		}
		p.Interactions = append(p.Interactions, i)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

type InteractionBuilder struct {
	interaction *pact.Interaction
	err         error
}

// Given adds a provider state, optionally with parameters.
func (ib *InteractionBuilder) Given(state string, params ...map[string]interface{}) *InteractionBuilder {
	ib.interaction.ProviderStates = append(ib.interaction.ProviderStates, providerState(state, params))
	return ib
}

func (ib *InteractionBuilder) UponReceiving(description string) *InteractionBuilder {
	ib.interaction.Description = description
	return ib
}

func (ib *InteractionBuilder) WithRequest(r Request) *InteractionBuilder {
	req, err := r.build()
	if err != nil && ib.err == nil {
		ib.err = errors.Wrapf(err, "request of %q", ib.interaction.Description)
	}
	ib.interaction.Request = req
	return ib
}

func (ib *InteractionBuilder) WillRespondWith(r Response) *InteractionBuilder {
	res, err := r.build()
	if err != nil && ib.err == nil {
		ib.err = errors.Wrapf(err, "response of %q", ib.interaction.Description)
	}
	ib.interaction.Response = res
	return ib
}

func (ib *InteractionBuilder) finish() (*pact.Interaction, error) {
	if ib.err != nil {
		return nil, ib.err
	}
	if ib.interaction.Request == nil {
		ib.interaction.Request = pact.NewRequest()
	}
	if ib.interaction.Response == nil {
		ib.interaction.Response = pact.NewResponse()
	}
	return ib.interaction, nil
}

type MessageBuilder struct {
	interaction *pact.Interaction
	err         error
}

func (mb *MessageBuilder) Given(state string, params ...map[string]interface{}) *MessageBuilder {
	mb.interaction.ProviderStates = append(mb.interaction.ProviderStates, providerState(state, params))
	return mb
}

func (mb *MessageBuilder) ExpectsToReceive(description string) *MessageBuilder {
	mb.interaction.Description = description
	return mb
}

// WithMetadata sets metadata entries; matchers with rules are registered in the metadata
// category.
func (mb *MessageBuilder) WithMetadata(metadata map[string]Matcher) *MessageBuilder {
	m := mb.interaction.Message
	for _, key := range sortedKeys(metadata) {
		matcher := metadata[key]
		if err := matcher.addTo(m.MatchingRules.Category(matchingrules.CategoryMetadata), key); err != nil {
			mb.fail(err)
			continue
		}
		m.Metadata[key] = matcher.example
	}
	return mb
}

// WithContent sets the message contents, accepting the same values as Request.Body.
func (mb *MessageBuilder) WithContent(content interface{}) *MessageBuilder {
	m := mb.interaction.Message
	ct := m.ContentType()
	b, rules, err := toBody(content, ct)
	if err != nil {
		mb.fail(err)
		return mb
	}
	m.Contents = b
	if err := m.MatchingRules.AddCategory(rules); err != nil {
		mb.fail(err)
		return mb
	}
	if ct == "" && b.ContentType != "" {
		m.Metadata["contentType"] = body.String(b.ContentType)
	}
	return mb
}

func (mb *MessageBuilder) fail(err error) {
	if mb.err == nil {
		mb.err = errors.Wrapf(err, "message %q", mb.interaction.Description)
	}
}

func (mb *MessageBuilder) finish() (*pact.Interaction, error) {
	return mb.interaction, mb.err
}

func providerState(name string, params []map[string]interface{}) pact.ProviderState {
	state := pact.ProviderState{Name: name}
	for _, p := range params {
		if state.Params == nil {
			state.Params = map[string]interface{}{}
		}
		for k, v := range p {
			state.Params[k] = v
		}
	}
	return state
}

func (r Request) build() (*pact.Request, error) {
	req := pact.NewRequest()
	if r.Method != "" {
		req.Method = r.Method
	}
	if r.Path.example.Kind() == body.KindString {
		req.Path = r.Path.example.Text()
	}
	if err := r.Path.addTo(req.MatchingRules.Category(matchingrules.CategoryPath), ""); err != nil {
		return nil, err
	}

	query := req.MatchingRules.Category(matchingrules.CategoryQuery)
	for _, name := range sortedKeys(r.Query) {
		m := r.Query[name]
		if err := m.addTo(query, name); err != nil {
			return nil, err
		}
		req.Query[name] = textValues(m.example)
	}

	if err := applyHeaders(r.Headers, req.Headers, req.MatchingRules); err != nil {
		return nil, err
	}
	if err := applyBody(r.Body, req.Headers, &req.Body, req.MatchingRules); err != nil {
		return nil, err
	}
	return req, nil
}

func (r Response) build() (*pact.Response, error) {
	res := pact.NewResponse()
	if r.Status != 0 {
		res.Status = r.Status
	}
	if err := applyHeaders(r.Headers, res.Headers, res.MatchingRules); err != nil {
		return nil, err
	}
	if err := applyBody(r.Body, res.Headers, &res.Body, res.MatchingRules); err != nil {
		return nil, err
	}
	return res, nil
}

func applyHeaders(matchers map[string]Matcher, headers map[string][]string, rules *matchingrules.RuleSet) error {
	category := rules.Category(matchingrules.CategoryHeader)
	for _, name := range sortedKeys(matchers) {
		m := matchers[name]
		if err := m.addTo(category, name); err != nil {
			return err
		}
		headers[name] = textValues(m.example)
	}
	return nil
}

// applyBody converts the body and declares a JSON content type when none was given.
func applyBody(value interface{}, headers map[string][]string, target *pact.Body, rules *matchingrules.RuleSet) error {
	declared, hasContentType := pact.HeaderValue(headers, "Content-Type")
	b, bodyRules, err := toBody(value, declared)
	if err != nil {
		return err
	}
	*target = b
	if !hasContentType && b.IsPresent() && b.ContentType == pact.MediaTypeJSON {
		headers["Content-Type"] = []string{pact.MediaTypeJSON}
	}
	return rules.AddCategory(bodyRules)
}

func toBody(value interface{}, contentType string) (pact.Body, *matchingrules.Category, error) {
	switch v := value.(type) {
	case nil:
		return pact.MissingBody(), nil, nil
	case *Builder:
		tree, rules, err := v.Build()
		if err != nil {
			return pact.Body{}, nil, err
		}
		return jsonBody(tree, contentType), rules, nil
	case Matcher:
		rules := matchingrules.NewCategory(matchingrules.CategoryBody)
		if err := v.addTo(rules, "$"); err != nil {
			return pact.Body{}, nil, err
		}
		if v.example.Kind() == body.KindString && contentType != "" && !pact.IsJSON(contentType) {
			return pact.BodyFrom([]byte(v.example.Text()), pact.BaseType(contentType)), rules, nil
		}
		return jsonBody(v.example, contentType), rules, nil
	case body.Value:
		return jsonBody(v, contentType), nil, nil
	case string:
		return rawBody([]byte(v), contentType), nil, nil
	case []byte:
		return rawBody(v, contentType), nil, nil
	}
	tree, err := body.FromInterface(value)
	if err != nil {
		return pact.Body{}, nil, err
	}
	return jsonBody(tree, contentType), nil, nil
}

func jsonBody(tree body.Value, contentType string) pact.Body {
	b := pact.JSONBody(tree)
	if contentType != "" {
		b.ContentType = pact.BaseType(contentType)
	}
	return b
}

func rawBody(content []byte, contentType string) pact.Body {
	ct := pact.BaseType(contentType)
	if ct == "" {
		ct = pact.DetectContentType(content)
	}
	return pact.BodyFrom(content, ct)
}

func textValues(v body.Value) []string {
	if v.Kind() != body.KindArray {
		return []string{v.String()}
	}
	out := make([]string, 0, v.Len())
	for _, item := range v.Items() {
		out = append(out, item.String())
	}
	return out
}

func sortedKeys(m map[string]Matcher) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
