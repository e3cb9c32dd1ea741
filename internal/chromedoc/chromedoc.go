// Package chromedoc adapts a chromedp-driven page to the editor's
// document capability surface. Elements are tracked in a page-side
// registry and addressed by ref; capture-phase events are bridged to Go
// through an exposed binding.
package chromedoc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"codemother/editor"
	"codemother/schema"
	"pkt.systems/pslog"
)

const bindingName = "__cmEmit"

const helperJS = `(() => {
	if (window.__cm) return true;
	const reg = [];
	const refOf = (el) => {
		let i = reg.indexOf(el);
		if (i < 0) { i = reg.length; reg.push(el); }
		return i;
	};
	window.__cm = {
		refOf,
		info(ref) {
			const el = reg[ref];
			if (!el) return null;
			return {
				tagName: el.tagName || '',
				id: el.id || '',
				className: typeof el.className === 'string' ? el.className : '',
				text: el.textContent || '',
				outerHTML: el.outerHTML || ''
			};
		},
		parentRef(ref) {
			const el = reg[ref];
			const p = el && el.parentElement;
			return p ? refOf(p) : -1;
		},
		nth(ref) {
			const el = reg[ref];
			if (!el || !el.parentElement) return [1, 1];
			let idx = 0, count = 0;
			for (const sib of el.parentElement.children) {
				if (sib.tagName === el.tagName) {
					count++;
					if (sib === el) idx = count;
				}
			}
			return [idx, count];
		},
		setAttr(ref, name) { const el = reg[ref]; if (el) el.setAttribute(name, 'true'); return !!el; },
		removeAttr(ref, name) { const el = reg[ref]; if (el) el.removeAttribute(name); return !!el; },
		hasAttr(ref, name) { const el = reg[ref]; return !!(el && el.hasAttribute(name)); },
		query(sel) { let el = null; try { el = document.querySelector(sel); } catch (e) {} return el ? refOf(el) : -1; },
		injectStyle(id, css) {
			if (document.getElementById(id)) return true;
			const s = document.createElement('style');
			s.id = id;
			s.textContent = css;
			document.head.appendChild(s);
			return true;
		},
		removeStyle(id) { const s = document.getElementById(id); if (s) s.remove(); return true; },
		strip(names) {
			for (const n of names) {
				for (const el of document.querySelectorAll('[' + n + ']')) el.removeAttribute(n);
			}
			return true;
		},
		listen() {
			if (window.__cmHandlers) return true;
			const fire = (type) => (ev) => {
				if (type === 'click') { ev.preventDefault(); ev.stopPropagation(); }
				if (ev.target && ev.target.nodeType === 1) {
					window.` + bindingName + `(JSON.stringify({ type, ref: refOf(ev.target) }));
				}
			};
			window.__cmHandlers = { mouseover: fire('mouseover'), mouseout: fire('mouseout'), click: fire('click') };
			for (const t of Object.keys(window.__cmHandlers)) {
				document.addEventListener(t, window.__cmHandlers[t], true);
			}
			return true;
		},
		unlisten() {
			if (!window.__cmHandlers) return true;
			for (const t of Object.keys(window.__cmHandlers)) {
				document.removeEventListener(t, window.__cmHandlers[t], true);
			}
			delete window.__cmHandlers;
			return true;
		}
	};
	return true;
})()`

type pageEvent struct {
	Type string `json:"type"`
	Ref  int    `json:"ref"`
}

// Doc drives one chromedp page as an editor document.
type Doc struct {
	ctx context.Context
	log pslog.Logger

	mu      sync.Mutex
	handler editor.EventHandler
	bound   bool
	events  chan string
}

// New wraps an established chromedp context. logger may be nil.
func New(ctx context.Context, logger pslog.Logger) *Doc {
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	return &Doc{ctx: ctx, log: logger}
}

// Navigate loads a URL in the page.
func (d *Doc) Navigate(url string) error {
	if err := chromedp.Run(d.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// ensure installs the page-side helper registry. Idempotent per page.
func (d *Doc) ensure() error {
	var ok bool
	if err := chromedp.Run(d.ctx, chromedp.Evaluate(helperJS, &ok)); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrDocumentUnavailable, err)
	}
	return nil
}

func (d *Doc) eval(expr string, out any) error {
	if err := d.ensure(); err != nil {
		return err
	}
	if err := chromedp.Run(d.ctx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrDocumentUnavailable, err)
	}
	return nil
}

// QueryPath resolves a selector path to a live element.
func (d *Doc) QueryPath(path string) (editor.Element, error) {
	var ref int
	if err := d.eval(fmt.Sprintf("window.__cm.query(%s)", jsString(path)), &ref); err != nil {
		return nil, err
	}
	if ref < 0 {
		return nil, fmt.Errorf("no element at path %q", path)
	}
	return &element{doc: d, ref: ref}, nil
}

// InjectStyle installs a style block under the given element id.
func (d *Doc) InjectStyle(id, css string) error {
	var ok bool
	return d.eval(fmt.Sprintf("window.__cm.injectStyle(%s, %s)", jsString(id), jsString(css)), &ok)
}

// RemoveStyle removes a previously injected style block.
func (d *Doc) RemoveStyle(id string) error {
	var ok bool
	return d.eval(fmt.Sprintf("window.__cm.removeStyle(%s)", jsString(id)), &ok)
}

// AddListeners exposes the event binding and registers capture-phase
// mouseover/mouseout/click listeners on the page.
func (d *Doc) AddListeners(h editor.EventHandler) error {
	if err := d.ensure(); err != nil {
		return err
	}
	d.mu.Lock()
	d.handler = h
	alreadyBound := d.bound
	if !alreadyBound {
		d.bound = true
		d.events = make(chan string, 64)
		go d.pump()
	}
	d.mu.Unlock()

	if !alreadyBound {
		if err := chromedp.Run(d.ctx, runtime.AddBinding(bindingName)); err != nil {
			return fmt.Errorf("%w: %v", schema.ErrDocumentUnavailable, err)
		}
		chromedp.ListenTarget(d.ctx, func(ev any) {
			call, ok := ev.(*runtime.EventBindingCalled)
			if !ok || call.Name != bindingName {
				return
			}
			// Hand off to the pump: handlers evaluate further expressions
			// against the page, which must not happen on the CDP event
			// loop, and events must stay in emission order.
			select {
			case d.events <- call.Payload:
			default:
				d.log.Debug("page event dropped", "payload_len", len(call.Payload))
			}
		})
	}
	var ok bool
	return d.eval("window.__cm.listen()", &ok)
}

// RemoveListeners unregisters the page listeners. The binding stays; it
// is inert without listeners.
func (d *Doc) RemoveListeners() error {
	d.mu.Lock()
	d.handler = nil
	d.mu.Unlock()
	var ok bool
	return d.eval("window.__cm.unlisten()", &ok)
}

// StripMarkers removes marker attributes document-wide.
func (d *Doc) StripMarkers(names ...string) error {
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, jsString(name))
	}
	var ok bool
	return d.eval(fmt.Sprintf("window.__cm.strip([%s])", strings.Join(quoted, ",")), &ok)
}

// pump serializes page events so the handler observes them in emission
// order. Runs until the chromedp context ends.
func (d *Doc) pump() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case payload := <-d.events:
			d.dispatch(payload)
		}
	}
}

func (d *Doc) dispatch(payload string) {
	var event pageEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		d.log.Debug("page event decode skipped", "err", err)
		return
	}
	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()
	if handler == nil {
		return
	}
	target := &element{doc: d, ref: event.Ref}
	switch event.Type {
	case "mouseover":
		handler.HandleMouseOver(target)
	case "mouseout":
		handler.HandleMouseOut(target)
	case "click":
		handler.HandleClick(target)
	}
}

type elementInfo struct {
	TagName   string `json:"tagName"`
	ID        string `json:"id"`
	ClassName string `json:"className"`
	Text      string `json:"text"`
	OuterHTML string `json:"outerHTML"`
}

// element addresses one node in the page-side registry. Getters are best
// effort: a detached page reads as an empty element.
type element struct {
	doc *Doc
	ref int
}

func (e *element) info() elementInfo {
	var info elementInfo
	if err := e.doc.eval(fmt.Sprintf("window.__cm.info(%d)", e.ref), &info); err != nil {
		e.doc.log.Debug("element info failed", "ref", e.ref, "err", err)
	}
	return info
}

func (e *element) TagName() string   { return e.info().TagName }
func (e *element) ID() string        { return e.info().ID }
func (e *element) ClassName() string { return e.info().ClassName }
func (e *element) Text() string      { return e.info().Text }
func (e *element) OuterHTML() string { return e.info().OuterHTML }

func (e *element) Parent() editor.Element {
	var ref int
	if err := e.doc.eval(fmt.Sprintf("window.__cm.parentRef(%d)", e.ref), &ref); err != nil || ref < 0 {
		return nil
	}
	return &element{doc: e.doc, ref: ref}
}

func (e *element) NthOfType() (int, int) {
	var pair [2]int
	if err := e.doc.eval(fmt.Sprintf("window.__cm.nth(%d)", e.ref), &pair); err != nil {
		return 1, 1
	}
	return pair[0], pair[1]
}

func (e *element) SetMarker(name string) error {
	var ok bool
	if err := e.doc.eval(fmt.Sprintf("window.__cm.setAttr(%d, %s)", e.ref, jsString(name)), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element ref %d detached", e.ref)
	}
	return nil
}

func (e *element) RemoveMarker(name string) error {
	var ok bool
	if err := e.doc.eval(fmt.Sprintf("window.__cm.removeAttr(%d, %s)", e.ref, jsString(name)), &ok); err != nil {
		return err
	}
	return nil
}

func (e *element) HasMarker(name string) bool {
	var ok bool
	if err := e.doc.eval(fmt.Sprintf("window.__cm.hasAttr(%d, %s)", e.ref, jsString(name)), &ok); err != nil {
		return false
	}
	return ok
}

func jsString(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(data)
}
