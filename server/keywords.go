package server

import (
	"regexp"
	"strings"

	"github.com/hupe1980/mcpbridge/protocol"
)

var camelCaseRe = regexp.MustCompile(`[a-z]+|[A-Z][a-z]*`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {}, "from": {}, "to": {},
}

// generateKeywords derives routing keywords for a server from its name and
// discovered tools: the server name, each tool name plus its underscore and
// camelCase fragments, and the longer words of each tool description.
// Duplicates are removed preserving first-seen order.
func generateKeywords(serverName string, tools []protocol.ToolDescriptor) []string {
	var keywords []string

	keywords = append(keywords, strings.ToLower(serverName))

	for _, tool := range tools {
		toolName := strings.ToLower(tool.Name)
		keywords = append(keywords, toolName)

		parts := strings.Split(tool.Name, "_")
		for _, part := range parts {
			if part == "" {
				continue
			}
			keywords = append(keywords, strings.ToLower(part))
			for _, camel := range camelCaseRe.FindAllString(part, -1) {
				keywords = append(keywords, strings.ToLower(camel))
			}
		}

		for _, word := range strings.Fields(strings.ToLower(tool.Description)) {
			word = strings.Trim(word, ".,:;!?()")
			if len(word) <= 3 {
				continue
			}
			if _, stop := stopWords[word]; stop {
				continue
			}
			keywords = append(keywords, word)
		}
	}

	return dedupe(keywords)
}

// mergeKeywords appends configured keywords to generated ones, deduplicated
// preserving order.
func mergeKeywords(generated, configured []string) []string {
	merged := make([]string, 0, len(generated)+len(configured))
	merged = append(merged, generated...)
	for _, kw := range configured {
		merged = append(merged, strings.ToLower(kw))
	}
	return dedupe(merged)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
