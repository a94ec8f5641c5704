package hls

import (
	"strings"
)

// parseAttributes splits an attribute list such as
// BANDWIDTH=1280000,CODECS="avc1.4d401f,mp4a.40.2" into key/value pairs.
// Quoted values keep their commas; surrounding quotes are stripped.
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)

	var parts []string
	var current strings.Builder
	inQuotes := false

	for _, char := range list {
		switch char {
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(char)
		case ',':
			if inQuotes {
				current.WriteRune(char)
			} else {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key == "" {
			continue
		}
		attrs[strings.ToUpper(key)] = strings.Trim(value, "\"")
	}

	return attrs
}

// splitTag splits "#EXTINF:10.0," into ("#EXTINF", "10.0,").
func splitTag(line string) (tag, value string) {
	tag, value, _ = strings.Cut(line, ":")
	return tag, value
}
