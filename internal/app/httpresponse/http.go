package httpresponse

import (
	"fmt"

	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	log "github.com/sirupsen/logrus"
)

// APIError is the JSON body returned for unexpected requests and admin API failures.
type APIError struct {
	ErrorMessage string              `json:"error_message"`
	Mismatches   matching.Mismatches `json:"mismatches,omitempty"`
}

func Error(error string) *APIError {
	log.Error(error)
	e := &APIError{
		ErrorMessage: error,
	}
	return e
}

func Errorf(error string, a ...interface{}) *APIError {
	return Error(fmt.Sprintf(error, a...))
}

// UnexpectedRequest describes a request no interaction accepted, with the mismatches of the
// closest interaction when there was one.
func UnexpectedRequest(method, path string, mismatches matching.Mismatches) *APIError {
	message := fmt.Sprintf("unexpected request %s %s", method, path)
	log.WithField("mismatches", len(mismatches)).Warn(message)
	return &APIError{ErrorMessage: message, Mismatches: mismatches}
}
