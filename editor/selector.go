package editor

import (
	"fmt"
	"strings"

	"codemother/schema"
)

const (
	textPreviewMax = 50
	outerHTMLMax   = 200
)

// SelectorPath computes the identifying path for an element. An element
// with an id short-circuits to "#id". Otherwise ancestors are walked to
// the body, each segment a lowercase tag name disambiguated with a
// 1-based :nth-of-type index when same-tag siblings exist; the walk stops
// at the first ancestor with an id, or at body.
func SelectorPath(el Element) string {
	if el == nil {
		return ""
	}
	if id := el.ID(); id != "" {
		return "#" + id
	}
	var segments []string
	for cur := el; cur != nil; cur = cur.Parent() {
		if strings.EqualFold(cur.TagName(), "body") {
			segments = append([]string{"body"}, segments...)
			break
		}
		if id := cur.ID(); id != "" {
			segments = append([]string{"#" + id}, segments...)
			break
		}
		segment := strings.ToLower(cur.TagName())
		if index, count := cur.NthOfType(); count > 1 {
			segment = fmt.Sprintf("%s:nth-of-type(%d)", segment, index)
		}
		segments = append([]string{segment}, segments...)
	}
	return strings.Join(segments, " > ")
}

// snapshot captures the prompt-facing view of a selected element.
func snapshot(el Element, path string) schema.SelectedElement {
	return schema.SelectedElement{
		TagName:      strings.ToLower(el.TagName()),
		ClassName:    el.ClassName(),
		ID:           el.ID(),
		TextPreview:  textPreview(el.Text()),
		SelectorPath: path,
		OuterHTML:    truncate(el.OuterHTML(), outerHTMLMax),
	}
}

// textPreview trims and collapses whitespace, then truncates.
func textPreview(raw string) string {
	return truncate(strings.Join(strings.Fields(raw), " "), textPreviewMax)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
