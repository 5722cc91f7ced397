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
	"encoding/json"
	"regexp"
	"strconv"
)

const (
	maxLoggedStringLen = 200
	maxLoggedTotalLen  = 4096
)

var sensitiveKeyPattern = regexp.MustCompile(`(?i)password|secret|token|key`)

// sanitizeArgsForLog produces a redacted, size-capped copy of argsJSON fit
// for structured logging: keys matching password/secret/token/key are
// redacted outright, long string values are truncated, and the whole
// encoded result is capped.
func sanitizeArgsForLog(argsJSON []byte) string {
	var decoded any
	if err := json.Unmarshal(argsJSON, &decoded); err != nil {
		return "<unparseable arguments>"
	}
	sanitized := sanitizeValue("", decoded)
	data, err := json.Marshal(sanitized)
	if err != nil {
		return "<unloggable arguments>"
	}
	if len(data) > maxLoggedTotalLen {
		return string(data[:maxLoggedTotalLen]) + "...(truncated)"
	}
	return string(data)
}

func sanitizeValue(key string, v any) any {
	if sensitiveKeyPattern.MatchString(key) {
		return "<redacted>"
	}
	switch val := v.(type) {
	case string:
		if len(val) > maxLoggedStringLen {
			return val[:maxLoggedStringLen] + "...(truncated)"
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = sanitizeValue(k, v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = sanitizeValue("", elem)
		}
		return out
	default:
		return val
	}
}

// canonicalizeOutputSchema converts schema into the MCP-required object
// shape: a non-object schema is wrapped as {type:"object",
// properties:{result:<inner>}, required:["result"]}; a legacy tuple-array
// schema (items as a list of schemas) becomes a positional object schema
// with synthetic keys val0, val1, ....
func canonicalizeOutputSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	if schema["type"] == "object" {
		return schema
	}
	if items, ok := schema["items"].([]any); ok {
		props := make(map[string]any, len(items))
		var required []string
		for i, item := range items {
			key := positionalKey(i)
			props[key] = item
			required = append(required, key)
		}
		return map[string]any{"type": "object", "properties": props, "required": required}
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"result": schema},
		"required":   []string{"result"},
	}
}

func positionalKey(i int) string {
	return "val" + strconv.Itoa(i)
}

// alignToSchema aligns a component's raw structured result against its
// canonicalized output schema: a scalar (or array, for legacy positional
// results, when the schema is not itself array-shaped) gets wrapped to
// match the object shape canonicalizeOutputSchema produces.
func alignToSchema(raw any, schema map[string]any) any {
	canon := canonicalizeOutputSchema(schema)
	if canon == nil {
		return raw
	}
	if _, isObject := raw.(map[string]any); isObject {
		return raw
	}
	if arr, ok := raw.([]any); ok {
		if props, ok := canon["properties"].(map[string]any); ok {
			if _, wantsPositional := props["val0"]; wantsPositional {
				out := make(map[string]any, len(arr))
				for i, v := range arr {
					out[positionalKey(i)] = v
				}
				return out
			}
		}
	}
	return map[string]any{"result": raw}
}
