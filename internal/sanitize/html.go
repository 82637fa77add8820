// Package sanitize strips unsafe HTML from user-submitted text before it is
// stored.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy removes all HTML tags and attributes. Used for fields
	// that must be plain text: category names, event names, hosts, locations.
	strictPolicy = bluemonday.StrictPolicy()

	// ugcPolicy allows basic formatting tags. Used for event descriptions.
	ugcPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML and surrounding whitespace, leaving plain text.
func Text(input string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// HTML keeps safe formatting tags and removes scripts, iframes, and event
// handler attributes.
func HTML(input string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(input))
}
