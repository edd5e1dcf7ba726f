// Package richtext flattens nested rich-text documents (such as Atlassian
// Document Format) into plain text.
//
// A node is any map carrying an optional "text" leaf and an optional ordered
// "content" array of child nodes. Nothing else about the schema is assumed.
package richtext

import "strings"

// Text returns the leaf text of node, depth-first, with a space after every
// child. A bare string is treated as a leaf. Anything else yields "".
func Text(node any) string {
	switch n := node.(type) {
	case string:
		// Strict ADF would drop this; plain-text descriptions still count.
		return strings.TrimSpace(n)
	case map[string]any:
		var b strings.Builder
		if leaf, ok := n["text"].(string); ok {
			b.WriteString(leaf)
		}
		if children, ok := n["content"].([]any); ok {
			for _, child := range children {
				b.WriteString(Text(child))
				b.WriteByte(' ')
			}
		}
		return strings.TrimSpace(b.String())
	default:
		return ""
	}
}
