// Package pact is the contract document: a consumer, a provider and the ordered interactions
// the consumer expects, either HTTP request/response pairs or asynchronous messages.
package pact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/pkg/errors"
)

// ErrInvalidDocument is returned for documents that cannot be used as a contract.
var ErrInvalidDocument = errors.New("invalid pact document")

const (
	DefaultMethod = "GET"
	DefaultPath   = "/"
)

type ProviderState struct {
	Name   string
	Params map[string]interface{}
}

type Request struct {
	Method        string
	Path          string
	Query         map[string][]string
	Headers       map[string][]string
	Body          Body
	MatchingRules *matchingrules.RuleSet
}

func NewRequest() *Request {
	return &Request{
		Method:        DefaultMethod,
		Path:          DefaultPath,
		Query:         map[string][]string{},
		Headers:       map[string][]string{},
		MatchingRules: matchingrules.NewRuleSet(),
	}
}

func (r *Request) ContentType() string {
	return contentTypeOf(r.Headers, r.Body)
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s", strings.ToUpper(r.Method), r.Path)
}

type Response struct {
	Status        int
	Headers       map[string][]string
	Body          Body
	MatchingRules *matchingrules.RuleSet
}

func NewResponse() *Response {
	return &Response{
		Status:        200,
		Headers:       map[string][]string{},
		MatchingRules: matchingrules.NewRuleSet(),
	}
}

func (r *Response) ContentType() string {
	return contentTypeOf(r.Headers, r.Body)
}

// Message is an asynchronous message: its contents plus metadata such as the content type
// or the destination.
type Message struct {
	Contents      Body
	Metadata      map[string]body.Value
	MatchingRules *matchingrules.RuleSet
}

func NewMessage() *Message {
	return &Message{
		Metadata:      map[string]body.Value{},
		MatchingRules: matchingrules.NewRuleSet(),
	}
}

func (m *Message) ContentType() string {
	for k, v := range m.Metadata {
		lower := strings.ToLower(k)
		if lower == "contenttype" || lower == "content-type" {
			return v.Text()
		}
	}
	if m.Contents.ContentType != "" {
		return m.Contents.ContentType
	}
	if m.Contents.IsPresent() {
		return DetectContentType(m.Contents.Content)
	}
	return ""
}

// Interaction is one expected exchange. Either Request and Response are set, or Message.
type Interaction struct {
	Description    string
	ProviderStates []ProviderState
	Request        *Request
	Response       *Response
	Message        *Message
}

func (i *Interaction) IsMessage() bool {
	return i.Message != nil
}

// UniqueKey identifies an interaction when pact files are merged.
func (i *Interaction) UniqueKey() string {
	names := make([]string, 0, len(i.ProviderStates))
	for _, s := range i.ProviderStates {
		names = append(names, s.Name)
	}
	states := strings.Join(names, ", ")
	if states == "" {
		states = "None"
	}
	return states + "_" + i.Description
}

func (i *Interaction) validate() error {
	if strings.TrimSpace(i.Description) == "" {
		return errors.Wrap(ErrInvalidDocument, "interaction has no description")
	}
	http := i.Request != nil || i.Response != nil
	switch {
	case http && i.Message != nil:
		return errors.Wrapf(ErrInvalidDocument, "interaction %q has both a request/response and a message", i.Description)
	case !http && i.Message == nil:
		return errors.Wrapf(ErrInvalidDocument, "interaction %q has neither a request/response nor a message", i.Description)
	case http && (i.Request == nil || i.Response == nil):
		return errors.Wrapf(ErrInvalidDocument, "interaction %q needs both a request and a response", i.Description)
	}
	return nil
}

func (i *Interaction) ruleSets() map[string]*matchingrules.RuleSet {
	if i.Message != nil {
		return map[string]*matchingrules.RuleSet{"message": i.Message.MatchingRules}
	}
	return map[string]*matchingrules.RuleSet{"request": i.Request.MatchingRules, "response": i.Response.MatchingRules}
}

func (i *Interaction) ValidateForVersion(v matchingrules.SpecVersion) error {
	sets := i.ruleSets()
	parts := make([]string, 0, len(sets))
	for part := range sets {
		parts = append(parts, part)
	}
	sort.Strings(parts)
	for _, part := range parts {
		if err := sets[part].ValidateForVersion(v); err != nil {
			return errors.Wrapf(err, "interaction %q %s", i.Description, part)
		}
	}
	return nil
}

// Pact is a contract between one consumer and one provider.
type Pact struct {
	Consumer     string
	Provider     string
	Interactions []*Interaction
	SpecVersion  matchingrules.SpecVersion
}

func New(consumer, provider string) *Pact {
	return &Pact{Consumer: consumer, Provider: provider, SpecVersion: matchingrules.V3}
}

// Validate checks that both parties are named, that every interaction is either HTTP or a
// message and that no interaction is declared twice.
func (p *Pact) Validate() error {
	if strings.TrimSpace(p.Consumer) == "" {
		return errors.Wrap(ErrInvalidDocument, "consumer name is empty")
	}
	if strings.TrimSpace(p.Provider) == "" {
		return errors.Wrap(ErrInvalidDocument, "provider name is empty")
	}
	seen := map[string]bool{}
	for _, i := range p.Interactions {
		if err := i.validate(); err != nil {
			return err
		}
		if seen[i.UniqueKey()] {
			return errors.Wrapf(ErrInvalidDocument, "interaction %q is declared twice", i.Description)
		}
		seen[i.UniqueKey()] = true
	}
	return nil
}

// ValidateForVersion rejects matching rules the version cannot express.
func (p *Pact) ValidateForVersion(v matchingrules.SpecVersion) error {
	for _, i := range p.Interactions {
		if err := i.ValidateForVersion(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pact) HTTPInteractions() []*Interaction {
	var out []*Interaction
	for _, i := range p.Interactions {
		if !i.IsMessage() {
			out = append(out, i)
		}
	}
	return out
}

func (p *Pact) Messages() []*Interaction {
	var out []*Interaction
	for _, i := range p.Interactions {
		if i.IsMessage() {
			out = append(out, i)
		}
	}
	return out
}

// FileName is the conventional file name of the pact.
func (p *Pact) FileName() string {
	return p.Consumer + "-" + p.Provider + ".json"
}

// Merge adds the interactions of other that p does not already hold. An interaction with
// the same description and provider states but a different definition is a conflict.
func (p *Pact) Merge(other *Pact) error {
	if p.Consumer != other.Consumer || p.Provider != other.Provider {
		return errors.Errorf("cannot merge pact %s-%s into %s-%s", other.Consumer, other.Provider, p.Consumer, p.Provider)
	}
	existing := map[string]*Interaction{}
	for _, i := range p.Interactions {
		existing[i.UniqueKey()] = i
	}
	for _, i := range other.Interactions {
		if current, ok := existing[i.UniqueKey()]; ok {
			if !current.Equal(i) {
				return errors.Errorf("interaction %q conflicts with the one already in the pact", i.Description)
			}
			continue
		}
		p.Interactions = append(p.Interactions, i)
		existing[i.UniqueKey()] = i
	}
	return nil
}
