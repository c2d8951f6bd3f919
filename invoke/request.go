package invoke

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Request types.
const (
	TypeLatest = "latest"
	TypeTo     = "to"
	TypeList   = "list"
)

// Request is an invocation request.
type Request struct {
	Type string       `json:"type"`
	Data *RequestData `json:"data,omitempty"`
	// Database overrides the configured database name.
	Database string `json:"database,omitempty"`
}

// RequestData holds the operation arguments.
type RequestData struct {
	Name string `json:"name"`
}

// TargetName returns the target migration name of a "to" request, or an empty
// string if none was given.
func (r Request) TargetName() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.Name
}

//go:embed schema.json
var requestSchemaJSON []byte

var requestSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(requestSchemaJSON))
})

// ParseRequest validates the payload against the request schema and decodes
// it. An empty payload is an empty request.
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(payload)) == 0 {
		return req, nil
	}

	schema, err := requestSchema()
	if err != nil {
		return req, fmt.Errorf("failed loading request schema: %w", err)
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return req, &InvalidRequestError{Err: err}
	}
	if !res.Valid() {
		details := make([]string, 0, len(res.Errors()))
		for _, desc := range res.Errors() {
			details = append(details, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return req, &InvalidRequestError{Details: details}
	}

	if err = json.Unmarshal(payload, &req); err != nil {
		return req, &InvalidRequestError{Err: err}
	}

	return req, nil
}
