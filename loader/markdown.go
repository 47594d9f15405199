package loader

import (
	"regexp"
	"strings"
)

var (
	mdFence       = regexp.MustCompile("(?m)^[ \\t]*```[^\\n]*$")
	mdInlineCode  = regexp.MustCompile("`([^`]+)`")
	mdImage       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLink        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeading     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	mdBold        = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	mdItalic      = regexp.MustCompile(`(^|\s)[*_](\S(?:[^*_]*?\S)?)[*_]`)
	mdBlockquote  = regexp.MustCompile(`(?m)^>[ \t]?`)
	mdRule        = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	mdBullet      = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	mdNumbered    = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	mdManyNewline = regexp.MustCompile(`\n{3,}`)
)

// StripMarkdown converts markdown to plain text. Code inside fences and
// backticks is kept; only the markup is removed. Image alt text and link
// text survive, URLs do not.
func StripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = mdFence.ReplaceAllString(content, "")
	content = mdInlineCode.ReplaceAllString(content, "$1")
	content = mdImage.ReplaceAllString(content, "$1")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdHeading.ReplaceAllString(content, "")
	content = mdRule.ReplaceAllString(content, "")
	content = mdBlockquote.ReplaceAllString(content, "")
	content = mdBullet.ReplaceAllString(content, "")
	content = mdNumbered.ReplaceAllString(content, "")
	content = mdBold.ReplaceAllString(content, "$2")
	content = mdItalic.ReplaceAllString(content, "$1$2")
	content = mdManyNewline.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
