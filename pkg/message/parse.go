package message

import (
	"encoding/json"
	"regexp"
	"strings"
)

var cqPattern = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_]+)(?:,([^\]]*))?\]`)

// Parse decodes the OneBot "message" field into segments. The field is
// either a segment array or a bare CQ-code string; a bare string with no CQ
// codes becomes a single text segment. rawText is the raw_message fallback
// used when the field is empty.
func Parse(raw json.RawMessage, rawText string) []Segment {
	if len(raw) > 0 {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return ParseCQ(s)
		}

		var arr []Segment
		if err := json.Unmarshal(raw, &arr); err == nil {
			out := make([]Segment, 0, len(arr))
			for _, seg := range arr {
				if seg.Type == "" {
					continue
				}
				out = append(out, seg)
			}
			return out
		}
	}

	if t := strings.TrimSpace(rawText); t != "" {
		return ParseCQ(t)
	}
	return nil
}

// ParseCQ splits a CQ-code string into segments. Text between codes is
// unescaped; unknown CQ types are kept verbatim so nothing is lost.
func ParseCQ(content string) []Segment {
	matches := cqPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		if content == "" {
			return nil
		}
		return []Segment{Text(UnescapeText(content))}
	}

	segs := make([]Segment, 0, len(matches)+1)
	cursor := 0
	for _, m := range matches {
		if m[0] > cursor {
			segs = append(segs, Text(UnescapeText(content[cursor:m[0]])))
		}

		segType := content[m[2]:m[3]]
		data := make(map[string]any)
		if m[4] >= 0 && m[5] >= 0 {
			for _, item := range strings.Split(content[m[4]:m[5]], ",") {
				kv := strings.SplitN(item, "=", 2)
				if len(kv) != 2 || kv[0] == "" {
					continue
				}
				data[strings.TrimSpace(kv[0])] = UnescapeValue(kv[1])
			}
		}
		segs = append(segs, Segment{Type: segType, Data: data})
		cursor = m[1]
	}
	if cursor < len(content) {
		segs = append(segs, Text(UnescapeText(content[cursor:])))
	}
	return segs
}

// UnescapeText reverses CQ escaping for plain text outside codes.
func UnescapeText(s string) string {
	s = strings.ReplaceAll(s, "&#91;", "[")
	s = strings.ReplaceAll(s, "&#93;", "]")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// UnescapeValue reverses CQ escaping for values inside codes, where the
// comma is additionally escaped.
func UnescapeValue(s string) string {
	s = strings.ReplaceAll(s, "&#44;", ",")
	return UnescapeText(s)
}
