package pact

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const documentSchemaURL = "pact.schema.json"

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["consumer", "provider"],
  "properties": {
    "consumer": {"$ref": "#/definitions/party"},
    "provider": {"$ref": "#/definitions/party"},
    "interactions": {"type": "array", "items": {"$ref": "#/definitions/interaction"}},
    "messages": {"type": "array", "items": {"$ref": "#/definitions/interaction"}},
    "metadata": {"type": "object"}
  },
  "definitions": {
    "party": {
      "type": "object",
      "required": ["name"],
      "properties": {"name": {"type": "string"}}
    },
    "rules": {"type": "object"},
    "headers": {
      "type": "object",
      "additionalProperties": {
        "anyOf": [{"type": "string"}, {"type": "array", "items": {"type": "string"}}]
      }
    },
    "interaction": {
      "type": "object",
      "required": ["description"],
      "properties": {
        "description": {"type": "string"},
        "providerState": {"type": "string"},
        "providerStates": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {"name": {"type": "string"}, "params": {"type": "object"}}
          }
        },
        "request": {
          "type": "object",
          "properties": {
            "method": {"type": "string"},
            "path": {"type": "string"},
            "query": {"type": ["string", "object"]},
            "headers": {"$ref": "#/definitions/headers"},
            "matchingRules": {"$ref": "#/definitions/rules"}
          }
        },
        "response": {
          "type": "object",
          "properties": {
            "status": {"type": "integer", "minimum": 100, "maximum": 599},
            "headers": {"$ref": "#/definitions/headers"},
            "matchingRules": {"$ref": "#/definitions/rules"}
          }
        },
        "metadata": {"type": "object"},
        "metaData": {"type": "object"},
        "matchingRules": {"$ref": "#/definitions/rules"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(documentSchemaURL, strings.NewReader(documentSchema)); err != nil {
			schemaErr = errors.Wrap(err, "unable to load pact document schema")
			return
		}
		compiledSchema, schemaErr = compiler.Compile(documentSchemaURL)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks the shape of a raw document before it is decoded.
func validateSchema(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return errors.Wrapf(ErrInvalidDocument, "not valid JSON: %s", err)
	}
	if err := schema.Validate(doc); err != nil {
		return errors.Wrapf(ErrInvalidDocument, "%s", err)
	}
	return nil
}
