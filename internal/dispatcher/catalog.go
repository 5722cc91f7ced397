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
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
)

//go:embed catalog.json
var embeddedCatalog []byte

type catalogEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
}

func mustLoadCatalog() []catalogEntry {
	var entries []catalogEntry
	if err := json.Unmarshal(embeddedCatalog, &entries); err != nil {
		panic("dispatcher: embedded catalog.json is malformed: " + err.Error())
	}
	return entries
}

type searchComponentsArgs struct {
	Query string `json:"query"`
}

type searchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
	Score       int    `json:"score"`
}

// handleSearchComponents ranks the embedded catalog against the query's
// whitespace-separated terms: exact name match scores 100, name prefix 50,
// name substring 20, description substring 10, description prefix 15, uri
// substring 5, summed across terms. Only non-zero scores are returned,
// sorted descending.
func (d *Dispatcher) handleSearchComponents(argsJSON []byte) *ToolResult {
	var args searchComponentsArgs
	if len(argsJSON) > 0 {
		_ = json.Unmarshal(argsJSON, &args)
	}

	terms := strings.Fields(strings.ToLower(args.Query))
	if len(terms) == 0 {
		return textResult(map[string]any{"results": []searchResult{}})
	}

	var results []searchResult
	for _, entry := range d.catalog {
		score := scoreEntry(entry, terms)
		if score > 0 {
			results = append(results, searchResult{
				Name: entry.Name, Description: entry.Description, URI: entry.URI, Score: score,
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return textResult(map[string]any{"results": results})
}

func scoreEntry(entry catalogEntry, terms []string) int {
	name := strings.ToLower(entry.Name)
	desc := strings.ToLower(entry.Description)
	uri := strings.ToLower(entry.URI)

	total := 0
	for _, term := range terms {
		switch {
		case name == term:
			total += 100
		case strings.HasPrefix(name, term):
			total += 50
		case strings.Contains(name, term):
			total += 20
		}
		switch {
		case strings.HasPrefix(desc, term):
			total += 15
		case strings.Contains(desc, term):
			total += 10
		}
		if strings.Contains(uri, term) {
			total += 5
		}
	}
	return total
}
