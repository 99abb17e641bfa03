package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Extractor pulls declared output values out of an agent's free-text reply.
//
// Extraction is deliberately heuristic and best-effort: each declared name is
// tried against an ordered list of independent strategies and the first
// non-empty match wins. A name with no match is simply absent from the result,
// never an error.
type Extractor struct {
	strategies []strategy
}

type strategy func(name, response string) string

func New() *Extractor {
	return &Extractor{
		strategies: []strategy{
			structuredTag,
			simpleTag,
			keyValueLine,
			inlineMention,
		},
	}
}

// Extract returns the values found for the declared output names.
func (e *Extractor) Extract(response string, declared []string) map[string]string {
	results := make(map[string]string)
	if len(declared) == 0 {
		return results
	}
	for _, name := range declared {
		for _, match := range e.strategies {
			if value := match(name, response); value != "" {
				results[name] = value
				break
			}
		}
	}
	return results
}

// structuredTag matches <output name="key">value</output>.
func structuredTag(name, response string) string {
	pattern := `(?is)<output\s+name\s*=\s*["']?` + regexp.QuoteMeta(name) + `["']?\s*>(.*?)</output>`
	return firstGroup(pattern, response)
}

// simpleTag matches <key>value</key>.
func simpleTag(name, response string) string {
	quoted := regexp.QuoteMeta(name)
	pattern := `(?is)<` + quoted + `>(.*?)</` + quoted + `>`
	return firstGroup(pattern, response)
}

// keyValueLine matches markdown-ish key-value lines: "**key**: value",
// "key: value" at the start of a line, and "- key: value" bullets.
func keyValueLine(name, response string) string {
	quoted := regexp.QuoteMeta(name)
	patterns := []string{
		`(?i)\*\*` + quoted + `\*\*\s*:\s*(.+)`,
		`(?im)^` + quoted + `\s*:\s*(.+)`,
		`(?i)[-•]\s*` + quoted + `\s*:\s*(.+)`,
	}
	for _, pattern := range patterns {
		if value := firstGroup(pattern, response); value != "" {
			return value
		}
	}
	return ""
}

// inlineMention matches prose mentions: "the key is value", "key = value"
// and "key: `value`". Values are length-capped to avoid swallowing whole
// paragraphs.
func inlineMention(name, response string) string {
	quoted := regexp.QuoteMeta(name)
	patterns := []string{
		`(?i)the\s+` + quoted + "\\s+is\\s+[`\"']?([^`\"'.,\n]+)",
		`(?i)` + quoted + "\\s*=\\s*[`\"']?([^`\"'.,\n]+)",
		`(?i)` + quoted + ":\\s*`([^`]+)`",
	}
	for _, pattern := range patterns {
		value := firstGroup(pattern, response)
		if value != "" && len(value) < 500 {
			return value
		}
	}
	return ""
}

func firstGroup(pattern, text string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	match := re.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")
	inlineJSONPattern = regexp.MustCompile(`\{[^{}]*"outputs"[^{}]*\}`)
)

// ExtractJSON looks for a fenced ```json block or an inline object carrying
// an "outputs" key and returns its scalar values as strings. Returns nil when
// no parseable block is present.
func (e *Extractor) ExtractJSON(response string) map[string]string {
	candidates := make([]string, 0, 2)
	if match := fencedJSONPattern.FindStringSubmatch(response); match != nil {
		candidates = append(candidates, match[1])
	}
	if match := inlineJSONPattern.FindString(response); match != "" {
		candidates = append(candidates, match)
	}
	for _, candidate := range candidates {
		if !gjson.Valid(candidate) {
			continue
		}
		parsed := gjson.Parse(candidate)
		outputs := parsed.Get("outputs")
		if !outputs.Exists() {
			outputs = parsed
		}
		if !outputs.IsObject() {
			continue
		}
		results := make(map[string]string)
		outputs.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.Null {
				results[key.String()] = ""
			} else {
				results[key.String()] = value.String()
			}
			return true
		})
		return results
	}
	return nil
}

// Instructions builds the prompt suffix that tells the agent how to format
// declared outputs so the tag strategies can find them.
func Instructions(outputs []string) string {
	if len(outputs) == 0 {
		return ""
	}
	var tags, list strings.Builder
	for _, name := range outputs {
		fmt.Fprintf(&tags, "<%s>your value here</%s>\n", name, name)
		fmt.Fprintf(&list, "- %s\n", name)
	}
	return fmt.Sprintf(`

IMPORTANT: At the end of your response, provide the following outputs in this exact format:

%s
Required outputs:
%s`, tags.String(), list.String())
}
