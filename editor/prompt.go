package editor

import (
	"fmt"
	"strings"
)

const (
	promptPreamble  = "The user selected these elements on the page:"
	promptPostamble = "Modify them according to the following request:"
)

// BuildPrompt augments a user message with the current selection set. An
// empty selection returns the message unchanged.
func (e *Editor) BuildPrompt(userMessage string) string {
	selected := e.Selected()
	if len(selected) == 0 {
		return userMessage
	}
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n")
	for i, el := range selected {
		fmt.Fprintf(&b, "element %d: <%s>", i+1, el.TagName)
		if el.ID != "" {
			fmt.Fprintf(&b, ", id=%q", el.ID)
		}
		if el.ClassName != "" {
			fmt.Fprintf(&b, ", class=%q", el.ClassName)
		}
		if el.TextPreview != "" {
			fmt.Fprintf(&b, ", text: %q", el.TextPreview)
		}
		fmt.Fprintf(&b, ", selector: %s", el.SelectorPath)
		if el.OuterHTML != "" {
			fmt.Fprintf(&b, ", HTML fragment: %s", el.OuterHTML)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(promptPostamble)
	b.WriteString("\n\n")
	b.WriteString(userMessage)
	return b.String()
}
