package n8n

import "regexp"

var sourcePattern = regexp.MustCompile(`(?s)<source\s+id="([^"]+)"\s+name="([^"]+)">(.*?)</source>`)

// Source is one <source id="..." name="...">...</source> block of a system
// prompt.
type Source struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	FileID  any    `json:"file_id"`
}

// ExtractSources returns the source blocks of systemPrompt in order.
// FileID is left nil.
func ExtractSources(systemPrompt string) []Source {
	matches := sourcePattern.FindAllStringSubmatch(systemPrompt, -1)
	out := make([]Source, 0, len(matches))
	for _, m := range matches {
		out = append(out, Source{ID: m[1], Name: m[2], Content: m[3]})
	}
	return out
}

// attachFiles sets FileID on each source: the k-th source with a given name
// takes the id of the k-th file of that name.
func attachFiles(sources []Source, filesByName map[string][]map[string]any) {
	seen := make(map[string]int)
	for i := range sources {
		name := sources[i].Name
		idx := seen[name]
		if files := filesByName[name]; idx < len(files) {
			sources[i].FileID = files[idx]["id"]
		}
		seen[name] = idx + 1
	}
}

// groupFiles groups files by their first non-empty name, filename or
// file_name field.
func groupFiles(files []map[string]any) map[string][]map[string]any {
	out := make(map[string][]map[string]any)
	for _, f := range files {
		var name string
		for _, key := range []string{"name", "filename", "file_name"} {
			if s, ok := f[key].(string); ok && s != "" {
				name = s
				break
			}
		}
		out[name] = append(out[name], f)
	}
	return out
}
