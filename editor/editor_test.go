package editor

import (
	"errors"
	"strings"
	"testing"
)

type fakeElement struct {
	tag, id, class, text, html string
	parent                     *fakeElement
	children                   []*fakeElement
	markers                    map[string]bool
}

func elem(tag, id, class, text string, children ...*fakeElement) *fakeElement {
	el := &fakeElement{
		tag: tag, id: id, class: class, text: text,
		html:     "<" + strings.ToLower(tag) + ">" + text + "</" + strings.ToLower(tag) + ">",
		children: children,
		markers:  map[string]bool{},
	}
	for _, child := range children {
		child.parent = el
	}
	return el
}

func (f *fakeElement) TagName() string   { return strings.ToUpper(f.tag) }
func (f *fakeElement) ID() string        { return f.id }
func (f *fakeElement) ClassName() string { return f.class }
func (f *fakeElement) Text() string      { return f.text }
func (f *fakeElement) OuterHTML() string { return f.html }

func (f *fakeElement) Parent() Element {
	if f.parent == nil {
		return nil
	}
	return f.parent
}

func (f *fakeElement) NthOfType() (int, int) {
	if f.parent == nil {
		return 1, 1
	}
	index, count := 0, 0
	for _, sibling := range f.parent.children {
		if strings.EqualFold(sibling.tag, f.tag) {
			count++
			if sibling == f {
				index = count
			}
		}
	}
	return index, count
}

func (f *fakeElement) SetMarker(name string) error    { f.markers[name] = true; return nil }
func (f *fakeElement) RemoveMarker(name string) error { delete(f.markers, name); return nil }
func (f *fakeElement) HasMarker(name string) bool     { return f.markers[name] }

func (f *fakeElement) walk(fn func(*fakeElement)) {
	fn(f)
	for _, child := range f.children {
		child.walk(fn)
	}
}

type fakeDoc struct {
	body      *fakeElement
	styles    map[string]string
	handler   EventHandler
	injectErr error
	listenErr error
	stripped  bool
}

func newFakeDoc(body *fakeElement) *fakeDoc {
	return &fakeDoc{body: body, styles: map[string]string{}}
}

func (d *fakeDoc) QueryPath(path string) (Element, error) {
	var found Element
	d.body.walk(func(el *fakeElement) {
		if found == nil && SelectorPath(el) == path {
			found = el
		}
	})
	if found == nil {
		return nil, errors.New("no element at path " + path)
	}
	return found, nil
}

func (d *fakeDoc) InjectStyle(id, css string) error {
	if d.injectErr != nil {
		return d.injectErr
	}
	d.styles[id] = css
	return nil
}

func (d *fakeDoc) RemoveStyle(id string) error {
	delete(d.styles, id)
	return nil
}

func (d *fakeDoc) AddListeners(h EventHandler) error {
	if d.listenErr != nil {
		return d.listenErr
	}
	d.handler = h
	return nil
}

func (d *fakeDoc) RemoveListeners() error {
	d.handler = nil
	return nil
}

func (d *fakeDoc) StripMarkers(names ...string) error {
	d.stripped = true
	d.body.walk(func(el *fakeElement) {
		for _, name := range names {
			delete(el.markers, name)
		}
	})
	return nil
}

// testTree builds body > [div#hero.banner, div > [p, p, span]].
func testTree() (body, hero, div2, p1, p2, span *fakeElement) {
	p1 = elem("p", "", "", "first paragraph")
	p2 = elem("p", "", "", "second paragraph")
	span = elem("span", "", "note", "a note")
	hero = elem("div", "hero", "banner", "hero text")
	div2 = elem("div", "", "", "", p1, p2, span)
	body = elem("body", "", "", "", hero, div2)
	return
}

func enterEditor(t *testing.T, doc *fakeDoc) *Editor {
	t.Helper()
	editor := New(nil)
	if err := editor.Enter(doc); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	return editor
}

func TestEnterInjectsStyleAndListeners(t *testing.T) {
	body, _, _, _, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)
	if !editor.Active() {
		t.Fatalf("expected active editor")
	}
	if _, ok := doc.styles[StyleElementID]; !ok {
		t.Fatalf("style not injected")
	}
	if doc.handler == nil {
		t.Fatalf("listeners not registered")
	}
	// Second enter is a no-op.
	if err := editor.Enter(doc); err != nil {
		t.Fatalf("re-enter failed: %v", err)
	}
}

func TestEnterFailsClosed(t *testing.T) {
	body, _, _, _, _, _ := testTree()
	doc := newFakeDoc(body)
	doc.injectErr = errors.New("document gone")
	editor := New(nil)
	if err := editor.Enter(doc); err == nil {
		t.Fatalf("expected activation error")
	}
	if editor.Active() {
		t.Fatalf("editor active after failed activation")
	}
	doc.injectErr = nil
	doc.listenErr = errors.New("no listeners")
	if err := editor.Enter(doc); err == nil {
		t.Fatalf("expected activation error")
	}
	if len(doc.styles) != 0 {
		t.Fatalf("style left behind after failed activation")
	}
}

func TestHoverMovesMarker(t *testing.T) {
	body, hero, _, p1, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)

	editor.HandleMouseOver(hero)
	if !hero.HasMarker(HoverMarker) {
		t.Fatalf("hover marker not set")
	}
	editor.HandleMouseOver(p1)
	if hero.HasMarker(HoverMarker) {
		t.Fatalf("old hover marker not removed")
	}
	if !p1.HasMarker(HoverMarker) {
		t.Fatalf("new hover marker not set")
	}
}

func TestMouseOutOnlyClearsTrackedElement(t *testing.T) {
	body, hero, _, p1, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)

	editor.HandleMouseOver(p1)
	// A stale mouseout for a different element must not clear tracking.
	editor.HandleMouseOut(hero)
	if !p1.HasMarker(HoverMarker) {
		t.Fatalf("tracked hover cleared by unrelated mouseout")
	}
	editor.HandleMouseOut(p1)
	if p1.HasMarker(HoverMarker) {
		t.Fatalf("hover marker not cleared")
	}
	// Repeated mouseout is harmless.
	editor.HandleMouseOut(p1)
}

func TestHoverIgnoresDenylist(t *testing.T) {
	body, _, _, _, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)
	editor.HandleMouseOver(body)
	if body.HasMarker(HoverMarker) {
		t.Fatalf("body must never be hover-marked")
	}
}

func TestClickTogglesSelection(t *testing.T) {
	body, hero, _, _, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)

	editor.HandleClick(hero)
	if !hero.HasMarker(SelectedMarker) {
		t.Fatalf("selection marker not set")
	}
	selected := editor.Selected()
	if len(selected) != 1 {
		t.Fatalf("expected 1 selection, got %d", len(selected))
	}
	if selected[0].SelectorPath != "#hero" {
		t.Fatalf("selector path = %q", selected[0].SelectorPath)
	}
	if selected[0].TagName != "div" || selected[0].ClassName != "banner" || selected[0].ID != "hero" {
		t.Fatalf("unexpected snapshot: %+v", selected[0])
	}

	editor.HandleClick(hero)
	if hero.HasMarker(SelectedMarker) {
		t.Fatalf("selection marker survived toggle off")
	}
	if got := len(editor.Selected()); got != 0 {
		t.Fatalf("selection list not emptied, got %d", got)
	}
}

func TestClickIgnoresDenylist(t *testing.T) {
	body, _, _, _, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)
	editor.HandleClick(body)
	if len(editor.Selected()) != 0 {
		t.Fatalf("body must never be selectable")
	}
}

func TestSelectorPathIDShortCircuit(t *testing.T) {
	_, hero, _, _, _, _ := testTree()
	if got := SelectorPath(hero); got != "#hero" {
		t.Fatalf("SelectorPath = %q, want #hero", got)
	}
}

func TestSelectorPathStructuralWalk(t *testing.T) {
	_, _, _, p1, p2, span := testTree()
	if got := SelectorPath(p1); got != "body > div:nth-of-type(2) > p:nth-of-type(1)" {
		t.Fatalf("SelectorPath(p1) = %q", got)
	}
	if got := SelectorPath(p2); got != "body > div:nth-of-type(2) > p:nth-of-type(2)" {
		t.Fatalf("SelectorPath(p2) = %q", got)
	}
	// A lone same-tag child carries no index.
	if got := SelectorPath(span); got != "body > div:nth-of-type(2) > span" {
		t.Fatalf("SelectorPath(span) = %q", got)
	}
}

func TestSelectorPathStopsAtAncestorID(t *testing.T) {
	inner := elem("em", "", "", "x")
	wrapper := elem("section", "main", "", "", elem("div", "", "", "", inner))
	elem("body", "", "", "", wrapper)
	if got := SelectorPath(inner); got != "#main > div > em" {
		t.Fatalf("SelectorPath = %q", got)
	}
}

func TestTextPreviewTruncation(t *testing.T) {
	long := strings.Repeat("word ", 30)
	el := elem("p", "", "", "  "+long+"  ")
	body := elem("body", "", "", "", el)
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)
	editor.HandleClick(el)
	selected := editor.Selected()
	if len(selected) != 1 {
		t.Fatalf("expected 1 selection")
	}
	preview := selected[0].TextPreview
	if !strings.HasSuffix(preview, "...") {
		t.Fatalf("long preview missing ellipsis: %q", preview)
	}
	if got := len([]rune(strings.TrimSuffix(preview, "..."))); got != 50 {
		t.Fatalf("preview length = %d, want 50", got)
	}
	if strings.Contains(preview, "  ") {
		t.Fatalf("whitespace not collapsed: %q", preview)
	}
}

func TestBuildPromptPassthrough(t *testing.T) {
	editor := New(nil)
	if got := editor.BuildPrompt("hi"); got != "hi" {
		t.Fatalf("BuildPrompt = %q, want unchanged message", got)
	}
}

func TestBuildPromptRendersElements(t *testing.T) {
	body, hero, _, p1, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)
	editor.HandleClick(hero)
	editor.HandleClick(p1)

	prompt := editor.BuildPrompt("make it blue")
	if !strings.HasSuffix(prompt, "make it blue") {
		t.Fatalf("user message not trailing: %q", prompt)
	}
	if !strings.Contains(prompt, `element 1: <div>, id="hero", class="banner"`) {
		t.Fatalf("element 1 line missing: %q", prompt)
	}
	if !strings.Contains(prompt, "element 2: <p>") {
		t.Fatalf("element 2 line missing: %q", prompt)
	}
	if !strings.Contains(prompt, "selector: body > div:nth-of-type(2) > p:nth-of-type(1)") {
		t.Fatalf("selector line missing: %q", prompt)
	}
	if strings.Contains(prompt, `element 2: <p>, id=`) {
		t.Fatalf("absent id rendered: %q", prompt)
	}
}

func TestRemoveSelectedByIndex(t *testing.T) {
	body, hero, _, p1, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)
	editor.HandleClick(hero)
	editor.HandleClick(p1)

	if err := editor.RemoveSelected(0); err != nil {
		t.Fatalf("RemoveSelected failed: %v", err)
	}
	if hero.HasMarker(SelectedMarker) {
		t.Fatalf("removed selection kept its marker")
	}
	selected := editor.Selected()
	if len(selected) != 1 || selected[0].TagName != "p" {
		t.Fatalf("unexpected selections: %+v", selected)
	}
	if err := editor.RemoveSelected(5); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestExitCleansUp(t *testing.T) {
	body, hero, _, p1, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := enterEditor(t, doc)
	editor.HandleClick(hero)
	editor.HandleMouseOver(p1)

	editor.Exit()
	if editor.Active() {
		t.Fatalf("editor still active")
	}
	if len(doc.styles) != 0 {
		t.Fatalf("style not removed")
	}
	if doc.handler != nil {
		t.Fatalf("listeners not removed")
	}
	if !doc.stripped {
		t.Fatalf("markers not stripped")
	}
	if hero.HasMarker(SelectedMarker) || p1.HasMarker(HoverMarker) {
		t.Fatalf("markers survived exit")
	}
	if len(editor.Selected()) != 0 {
		t.Fatalf("selections survived exit")
	}
	// Exit while inactive is a no-op.
	editor.Exit()
}

func TestToggleFlips(t *testing.T) {
	body, _, _, _, _, _ := testTree()
	doc := newFakeDoc(body)
	editor := New(nil)
	active, err := editor.Toggle(doc)
	if err != nil || !active {
		t.Fatalf("toggle on = %v, %v", active, err)
	}
	active, err = editor.Toggle(doc)
	if err != nil || active {
		t.Fatalf("toggle off = %v, %v", active, err)
	}
}
