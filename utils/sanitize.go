package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = bluemonday.UGCPolicy()

// Sanitize strips dangerous HTML from user-submitted post and comment
// text before it is stored and rendered back into feed pages.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
