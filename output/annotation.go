package output

import (
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const statusKey = "http_status_code="

// ParseStatus reads the status annotation written by Format. It only
// looks at the leading comment of the document. Documents without one
// (fixed-mode renders) report 200 and false.
func ParseStatus(doc string) (int, bool) {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return http.StatusOK, false
		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) != "" {
				return http.StatusOK, false
			}
		case html.CommentToken:
			text := strings.TrimSpace(string(z.Text()))
			if !strings.HasPrefix(text, statusKey) {
				return http.StatusOK, false
			}
			code, err := strconv.Atoi(strings.TrimPrefix(text, statusKey))
			if err != nil || code <= 0 {
				return http.StatusOK, false
			}
			return code, true
		default:
			return http.StatusOK, false
		}
	}
}

// StripAnnotation returns doc without a leading status annotation.
func StripAnnotation(doc string) string {
	if _, ok := ParseStatus(doc); !ok {
		return doc
	}
	end := strings.Index(doc, "-->")
	return strings.TrimPrefix(doc[end+len("-->"):], "\n\n")
}
