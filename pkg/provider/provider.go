// Package provider compares real provider traffic with one stored interaction. It returns
// the same mismatches the consumer side reports, and leaves running the provider, setting
// up provider states and sending requests to the caller.
package provider

import (
	"bytes"
	"io"
	"net/http"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrWrongInteraction is returned when an HTTP exchange is verified against a message
// interaction, or the other way round.
var ErrWrongInteraction = errors.New("interaction has another kind")

// VerifyExchange compares a request sent to the provider and the response it returned
// with the interaction. Either may be nil to skip its side. The request body is restored
// after reading and the response body is consumed and closed.
func VerifyExchange(i *pact.Interaction, req *http.Request, res *http.Response, config matching.Config) (matching.Mismatches, error) {
	if i.IsMessage() {
		return nil, errors.Wrapf(ErrWrongInteraction, "%q is a message", i.Description)
	}
	var mismatches matching.Mismatches
	if req != nil {
		actual, err := readRequest(req)
		if err != nil {
			return nil, err
		}
		mismatches = append(mismatches, matching.CompareRequest(i.Request, actual, config)...)
	}
	if res != nil {
		actual, err := pact.ResponseFromHTTP(res)
		if err != nil {
			return nil, err
		}
		mismatches = append(mismatches, matching.CompareResponse(i.Response, actual, config)...)
	}
	log.WithFields(log.Fields{
		"interaction": i.Description,
		"mismatches":  len(mismatches),
	}).Debug("verified provider exchange")
	return mismatches.ForInteraction(i.Description), nil
}

// VerifyResponse compares a response already captured as a pact response.
func VerifyResponse(i *pact.Interaction, actual *pact.Response, config matching.Config) (matching.Mismatches, error) {
	if i.IsMessage() {
		return nil, errors.Wrapf(ErrWrongInteraction, "%q is a message", i.Description)
	}
	return matching.CompareResponse(i.Response, actual, config).ForInteraction(i.Description), nil
}

// VerifyMessage compares a message produced by the provider with a message interaction.
// A content type in the metadata, under contentType or content-type, overrides the
// detected one.
func VerifyMessage(i *pact.Interaction, contents []byte, metadata map[string]interface{}, config matching.Config) (matching.Mismatches, error) {
	if !i.IsMessage() {
		return nil, errors.Wrapf(ErrWrongInteraction, "%q is an HTTP interaction", i.Description)
	}
	actual := pact.NewMessage()
	for k, v := range metadata {
		value, err := body.FromInterface(v)
		if err != nil {
			return nil, errors.Wrapf(err, "metadata %q", k)
		}
		actual.Metadata[k] = value
	}
	actual.Contents = pact.BodyFrom(contents, "")
	actual.Contents.ContentType = actual.ContentType()
	return matching.CompareMessage(i.Message, actual, config).ForInteraction(i.Description), nil
}

// readRequest snapshots req. An outgoing request that was already sent is read again
// through GetBody.
func readRequest(req *http.Request) (*pact.Request, error) {
	source := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "unable to get request body")
		}
		source = fresh
	}
	var content []byte
	if source != nil && source != http.NoBody {
		var err error
		content, err = io.ReadAll(source)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read request body")
		}
		source.Close()
		req.Body = io.NopCloser(bytes.NewReader(content))
	}
	return pact.RequestFromHTTP(req, content), nil
}
