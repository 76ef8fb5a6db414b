// Package payloadschema validates externally supplied candidate block
// payloads before they enter the pipeline.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

//go:embed candidate_block.schema.json
var candidateBlockSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateCandidateBlock checks one JSON candidate block against the
// embedded schema and decodes it. A candidate in the block may omit id
// or url, but not both; such items fail validation here rather than
// being silently dropped later.
func ValidateCandidateBlock(payload json.RawMessage) (*candidate.Block, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var block candidate.Block
	if err := json.Unmarshal(normalized, &block); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	for i, item := range block.Items {
		if !item.Identifiable() {
			return nil, fmt.Errorf("items[%d]: id and url are both empty", i)
		}
	}

	return &block, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("candidate_block.schema.json", strings.NewReader(candidateBlockSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("candidate_block.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})
	return compiledSchema, compiledSchemaErr
}

// decodeStrictJSON rejects trailing garbage after the JSON document.
func decodeStrictJSON(payload json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if err := checkTrailing(dec); err != nil {
		return nil, err
	}
	return value, nil
}

func checkTrailing(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected trailing content")
	}
	return nil
}
