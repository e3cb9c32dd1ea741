// Package editor implements visual edit mode over an embedded document:
// hover highlighting, click selection with stable selector paths, and
// prompt augmentation from the selection set.
package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"codemother/schema"
	"pkt.systems/pslog"
)

// StyleElementID identifies the injected marker stylesheet.
const StyleElementID = "__visual_editor_style__"

// Marker attributes annotated onto document elements.
const (
	HoverMarker    = "data-ve-hover"
	SelectedMarker = "data-ve-selected"
)

const editorCSS = `[` + HoverMarker + `] { outline: 2px dashed #1890ff !important; outline-offset: 2px; cursor: crosshair !important; }
[` + SelectedMarker + `] { outline: 2px solid #52c41a !important; outline-offset: 2px; }
[` + HoverMarker + `][` + SelectedMarker + `] { outline: 2px solid #fa8c16 !important; outline-offset: 2px; }`

// ignoredTags are structural tags that are never hoverable or selectable.
var ignoredTags = map[string]bool{
	"HTML": true, "HEAD": true, "BODY": true, "SCRIPT": true,
	"STYLE": true, "META": true, "LINK": true, "TITLE": true,
}

// Element is one live node in a bound document.
type Element interface {
	TagName() string
	ID() string
	ClassName() string
	Text() string
	OuterHTML() string
	Parent() Element
	// NthOfType returns the 1-based index of this element among same-tag
	// siblings under its parent, and the count of those siblings.
	NthOfType() (index, count int)
	SetMarker(name string) error
	RemoveMarker(name string) error
	HasMarker(name string) bool
}

// EventHandler receives capture-phase pointer events from a document.
type EventHandler interface {
	HandleMouseOver(target Element)
	HandleMouseOut(target Element)
	HandleClick(target Element)
}

// Document is the capability surface the editor needs from an embedded
// page. Implementations must deliver mouseover, mouseout and click events
// to the registered handler with default actions suppressed.
type Document interface {
	QueryPath(path string) (Element, error)
	InjectStyle(id, css string) error
	RemoveStyle(id string) error
	AddListeners(h EventHandler) error
	RemoveListeners() error
	StripMarkers(names ...string) error
}

// Editor is the visual edit mode state machine. Safe for concurrent use.
type Editor struct {
	log pslog.Logger

	mu          sync.Mutex
	active      bool
	doc         Document
	hovered     Element
	hoveredPath string
	selected    []schema.SelectedElement
}

// New constructs an inactive editor. logger may be nil.
func New(logger pslog.Logger) *Editor {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Editor{log: logger}
}

// Enter activates edit mode on the given document. A second Enter while
// active is a no-op. Activation fails closed: on any error the editor
// stays inactive and the document is left unmodified.
func (e *Editor) Enter(doc Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return nil
	}
	if doc == nil {
		e.log.Warn("edit mode activation failed", "err", schema.ErrDocumentUnavailable)
		return schema.ErrDocumentUnavailable
	}
	if err := doc.InjectStyle(StyleElementID, editorCSS); err != nil {
		e.log.Warn("edit mode activation failed", "err", err)
		return err
	}
	if err := doc.AddListeners(e); err != nil {
		if rerr := doc.RemoveStyle(StyleElementID); rerr != nil {
			e.log.Debug("edit mode style cleanup failed", "err", rerr)
		}
		e.log.Warn("edit mode activation failed", "err", err)
		return err
	}
	e.doc = doc
	e.active = true
	e.log.Debug("edit mode on")
	return nil
}

// Exit deactivates edit mode: selections and hover state cleared, style
// and listeners removed, markers stripped document-wide. All cleanup is
// best effort; a torn-down document is logged, never fatal. Exit while
// inactive is a no-op.
func (e *Editor) Exit() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	doc := e.doc
	e.active = false
	e.doc = nil
	e.hovered = nil
	e.hoveredPath = ""
	e.selected = nil
	e.mu.Unlock()

	if err := doc.RemoveListeners(); err != nil {
		e.log.Debug("edit mode listener cleanup failed", "err", err)
	}
	if err := doc.RemoveStyle(StyleElementID); err != nil {
		e.log.Debug("edit mode style cleanup failed", "err", err)
	}
	if err := doc.StripMarkers(HoverMarker, SelectedMarker); err != nil {
		e.log.Debug("edit mode marker cleanup failed", "err", err)
	}
	e.log.Debug("edit mode off")
}

// Toggle flips edit mode and reports whether it is active afterwards.
func (e *Editor) Toggle(doc Document) (bool, error) {
	if e.Active() {
		e.Exit()
		return false, nil
	}
	if err := e.Enter(doc); err != nil {
		return false, err
	}
	return true, nil
}

// Active reports whether edit mode is on.
func (e *Editor) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Selected returns a copy of the selection set in selection order.
func (e *Editor) Selected() []schema.SelectedElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]schema.SelectedElement(nil), e.selected...)
}

// RemoveSelected drops the selection at index and strips its marker.
func (e *Editor) RemoveSelected(index int) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return schema.ErrEditorInactive
	}
	if index < 0 || index >= len(e.selected) {
		e.mu.Unlock()
		return fmt.Errorf("no selection at index %d", index)
	}
	entry := e.selected[index]
	e.selected = append(e.selected[:index], e.selected[index+1:]...)
	doc := e.doc
	e.mu.Unlock()

	e.unmarkByPath(doc, entry.SelectorPath)
	return nil
}

// ClearSelections drops all selections and strips their markers.
func (e *Editor) ClearSelections() {
	e.mu.Lock()
	entries := e.selected
	e.selected = nil
	doc := e.doc
	e.mu.Unlock()
	if doc == nil {
		return
	}
	for _, entry := range entries {
		e.unmarkByPath(doc, entry.SelectorPath)
	}
}

// HandleMouseOver moves the hover marker to an eligible target.
func (e *Editor) HandleMouseOver(target Element) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || target == nil || ignoredTags[strings.ToUpper(target.TagName())] {
		return
	}
	path := SelectorPath(target)
	if e.hovered != nil && e.hoveredPath == path {
		return
	}
	if e.hovered != nil {
		if err := e.hovered.RemoveMarker(HoverMarker); err != nil {
			e.log.Debug("hover marker cleanup failed", "err", err)
		}
	}
	if err := target.SetMarker(HoverMarker); err != nil {
		e.log.Debug("hover marker set failed", "err", err)
		return
	}
	e.hovered = target
	e.hoveredPath = path
}

// HandleMouseOut clears hover tracking only when the event target is the
// tracked element, so out-of-order events cannot strand a marker.
func (e *Editor) HandleMouseOut(target Element) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || target == nil || e.hovered == nil {
		return
	}
	if SelectorPath(target) != e.hoveredPath {
		return
	}
	if err := e.hovered.RemoveMarker(HoverMarker); err != nil {
		e.log.Debug("hover marker cleanup failed", "err", err)
	}
	e.hovered = nil
	e.hoveredPath = ""
}

// HandleClick toggles selection of an eligible target.
func (e *Editor) HandleClick(target Element) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || target == nil || ignoredTags[strings.ToUpper(target.TagName())] {
		return
	}
	path := SelectorPath(target)
	if target.HasMarker(SelectedMarker) {
		if err := target.RemoveMarker(SelectedMarker); err != nil {
			e.log.Debug("selection marker cleanup failed", "err", err)
		}
		for i := range e.selected {
			if e.selected[i].SelectorPath == path {
				e.selected = append(e.selected[:i], e.selected[i+1:]...)
				break
			}
		}
		return
	}
	for i := range e.selected {
		if e.selected[i].SelectorPath == path {
			// Already registered under this path; keep one entry.
			return
		}
	}
	if err := target.SetMarker(SelectedMarker); err != nil {
		e.log.Debug("selection marker set failed", "err", err)
		return
	}
	e.selected = append(e.selected, snapshot(target, path))
}

func (e *Editor) unmarkByPath(doc Document, path string) {
	if doc == nil || path == "" {
		return
	}
	el, err := doc.QueryPath(path)
	if err != nil || el == nil {
		if err != nil {
			e.log.Debug("selection marker cleanup failed", "path", path, "err", err)
		}
		return
	}
	if err := el.RemoveMarker(SelectedMarker); err != nil {
		e.log.Debug("selection marker cleanup failed", "path", path, "err", err)
	}
}
