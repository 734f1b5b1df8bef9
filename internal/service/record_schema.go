package service

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"furrydomains/backend/internal/domain"
)

//go:embed schemas/*.json
var recordSchemaFS embed.FS

// ErrInvalidRecord 记录内容不符合类型要求
var ErrInvalidRecord = errors.New("invalid record")

// RecordSchema 按记录类型校验记录内容的 JSON Schema 集合
type RecordSchema struct {
	schemas map[domain.RecordType]*jsonschema.Schema
}

// NewRecordSchema 编译内置的全部记录类型 schema
func NewRecordSchema() (*RecordSchema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true

	schemas := make(map[domain.RecordType]*jsonschema.Schema, len(domain.RecordTypes))
	for _, t := range domain.RecordTypes {
		name := string(t) + ".json"
		raw, err := recordSchemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		compiled, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		schemas[t] = compiled
	}
	return &RecordSchema{schemas: schemas}, nil
}

// Validate 先做 schema 校验，再解析为具体记录值做语义校验
func (s *RecordSchema) Validate(t domain.RecordType, payload domain.RecordPayload) (domain.RecordValue, error) {
	sch, ok := s.schemas[t]
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, domain.ErrUnknownRecordType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(collectCauses(ve), "; "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	value, err := domain.DecodeRecordValue(t, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return value, nil
}

func collectCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		return []string{ve.InstanceLocation + " " + ve.Message}
	}
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectCauses(cause)...)
	}
	return msgs
}
