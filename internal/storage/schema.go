/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed schema/template.schema.json
var templateSchemaJSON []byte

var (
	schemaOnce sync.Once
	schemaVal  *gojsonschema.Schema
	schemaErr  error
)

// ErrInvalidTemplate is returned when template bytes are not valid JSON or
// violate the template schema.
var ErrInvalidTemplate = errors.New("invalid template")

func templateSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaVal, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(templateSchemaJSON))
	})
	return schemaVal, schemaErr
}

// TemplateSchema returns the embedded JSON schema document.
func TemplateSchema() []byte { return append([]byte(nil), templateSchemaJSON...) }

// ValidateTemplate checks data against the template schema. Violations are
// reported in one error wrapping ErrInvalidTemplate.
func ValidateTemplate(data []byte) error {
	s, err := templateSchema()
	if err != nil {
		return fmt.Errorf("load template schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(msgs, "; "))
}
