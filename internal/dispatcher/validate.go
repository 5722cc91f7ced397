/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dispatcher

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/altairalabs/componenthost/internal/component"
)

// validateAgainstSchema validates argsJSON against a component-declared
// JSON Schema before the call reaches the sandbox, the way
// schema.SchemaValidator validates pack.json against its published schema.
// A nil or empty schema is treated as permissive.
func validateAgainstSchema(schema map[string]any, argsJSON []byte) error {
	if len(schema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(argsJSON))
	if err != nil {
		return component.Wrap(component.KindSchemaError, "validating tool arguments", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return component.New(component.KindArgumentMismatch, "tool arguments do not match input schema: "+strings.Join(problems, "; "))
	}
	return nil
}
