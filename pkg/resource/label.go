package resource

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iancoleman/strcase"
)

// Humanize turns an identifier into a readable label:
// "test_resource" and "testResource" both become "Test resource".
func Humanize(name string) string {
	words := strings.TrimSpace(strcase.ToDelimited(name, ' '))
	if words == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(words)
	return string(unicode.ToUpper(r)) + words[size:]
}
