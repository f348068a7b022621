package consumer

import (
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Message is one expected message as the consumer would receive it.
type Message struct {
	Description    string
	ProviderStates []pact.ProviderState
	Contents       []byte
	ContentType    string
	Metadata       map[string]interface{}
}

// MessageHandler is the consumer code that processes one message.
type MessageHandler func(m Message) error

// RunMessageConsumerTest hands every message interaction of p to handle, in declaration
// order, and writes the pact when all of them were handled. The first handler error ends
// the run.
func RunMessageConsumerTest(p *pact.Pact, config Config, handle MessageHandler) VerificationResult {
	version := config.version(p.SpecVersion)
	if err := validate(p, version); err != nil {
		return VerificationResult{Err: err}
	}
	messages := p.Messages()
	if len(messages) == 0 {
		return VerificationResult{Err: errors.Errorf("pact %s-%s has no message interactions", p.Consumer, p.Provider)}
	}

	for _, i := range messages {
		log.Debugf("handing message %q to the consumer", i.Description)
		if err := handleMessage(handle, toMessage(i)); err != nil {
			return finish(p, version, config, VerificationResult{Err: errors.Wrapf(err, "message %q", i.Description)})
		}
	}
	return finish(p, version, config, VerificationResult{})
}

func handleMessage(handle MessageHandler, m Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("message handler panicked: %v", r)
		}
	}()
	return handle(m)
}

func toMessage(i *pact.Interaction) Message {
	metadata := make(map[string]interface{}, len(i.Message.Metadata))
	for k, v := range i.Message.Metadata {
		metadata[k] = v.Interface()
	}
	return Message{
		Description:    i.Description,
		ProviderStates: i.ProviderStates,
		Contents:       append([]byte(nil), i.Message.Contents.Content...),
		ContentType:    i.Message.ContentType(),
		Metadata:       metadata,
	}
}
