package genstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codemother/schema"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

type capture struct {
	mu       sync.Mutex
	chunks   []string
	complete int
	errs     []error
	done     chan struct{}
}

func newCapture() *capture {
	return &capture{done: make(chan struct{})}
}

func (c *capture) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(chunk string) {
			c.mu.Lock()
			c.chunks = append(c.chunks, chunk)
			c.mu.Unlock()
		},
		OnComplete: func() {
			c.mu.Lock()
			c.complete++
			c.mu.Unlock()
			close(c.done)
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
			close(c.done)
		},
	}
}

func (c *capture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not terminate")
	}
}

func (c *capture) joined() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out string
	for _, chunk := range c.chunks {
		out += chunk
	}
	return out
}

func serveChunks(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("access-token"); got != "tok" {
			t.Errorf("access-token header = %q, want %q", got, "tok")
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept header = %q", got)
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatalf("response writer is not a flusher")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
}

func openStream(t *testing.T, server *httptest.Server, cb Callbacks) func() {
	t.Helper()
	client := NewClient(server.URL, staticToken("tok"), server.Client(), nil)
	return client.Open(context.Background(), Request{AppID: schema.AppID("a1"), UserMessage: "hi"}, cb)
}

func TestOpenDeliversChunksInOrder(t *testing.T) {
	server := serveChunks(t, []string{
		"data:{\"d\":\"hello \"}\n",
		"data:{\"d\":\"world\"}\n",
		"event:done\n",
	})
	defer server.Close()

	rec := newCapture()
	openStream(t, server, rec.callbacks())
	rec.wait(t)

	if got := rec.joined(); got != "hello world" {
		t.Fatalf("joined chunks = %q", got)
	}
	if rec.complete != 1 {
		t.Fatalf("complete fired %d times", rec.complete)
	}
	if len(rec.errs) != 0 {
		t.Fatalf("unexpected errors: %v", rec.errs)
	}
}

func TestOpenTolerantOfChunkBoundaries(t *testing.T) {
	// Lines and multibyte runes split across writes must decode the same
	// as a single read. "héllo" splits mid-rune.
	server := serveChunks(t, []string{
		"data:{\"d\":\"h\xc3",
		"\xa9llo\"}",
		"\ndata:{\"d\"",
		":\" there\"}\nevent:do",
		"ne\n",
	})
	defer server.Close()

	rec := newCapture()
	openStream(t, server, rec.callbacks())
	rec.wait(t)

	if got := rec.joined(); got != "héllo there" {
		t.Fatalf("joined chunks = %q", got)
	}
}

func TestOpenStopsAtDoneEvenWithTrailingData(t *testing.T) {
	server := serveChunks(t, []string{
		"data:{\"d\":\"a\"}\nevent:done\ndata:{\"d\":\"late\"}\n",
	})
	defer server.Close()

	rec := newCapture()
	openStream(t, server, rec.callbacks())
	rec.wait(t)

	if got := rec.joined(); got != "a" {
		t.Fatalf("chunks after done: %q", got)
	}
	if rec.complete != 1 {
		t.Fatalf("complete fired %d times", rec.complete)
	}
}

func TestOpenCompletesOnNaturalEOF(t *testing.T) {
	server := serveChunks(t, []string{"data:{\"d\":\"x\"}\n"})
	defer server.Close()

	rec := newCapture()
	openStream(t, server, rec.callbacks())
	rec.wait(t)

	if rec.complete != 1 {
		t.Fatalf("complete fired %d times", rec.complete)
	}
	if len(rec.errs) != 0 {
		t.Fatalf("unexpected errors: %v", rec.errs)
	}
}

func TestOpenSkipsMalformedAndUnknownLines(t *testing.T) {
	server := serveChunks(t, []string{
		"\n",
		": comment\n",
		"data:not-json\n",
		"data:{\"other\":\"field\"}\n",
		"data:{\"d\":\"kept\"}\n",
		"event:done\n",
	})
	defer server.Close()

	rec := newCapture()
	openStream(t, server, rec.callbacks())
	rec.wait(t)

	if got := rec.joined(); got != "kept" {
		t.Fatalf("joined chunks = %q", got)
	}
	if len(rec.errs) != 0 {
		t.Fatalf("malformed payload surfaced an error: %v", rec.errs)
	}
}

func TestOpenReportsConnectFailureOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	rec := newCapture()
	openStream(t, server, rec.callbacks())
	rec.wait(t)

	if len(rec.errs) != 1 {
		t.Fatalf("expected one error, got %v", rec.errs)
	}
	if rec.complete != 0 {
		t.Fatalf("complete fired on error path")
	}
}

func TestCancelDoesNotSurfaceError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data:{\"d\":\"first\"}\n"))
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	rec := newCapture()
	client := NewClient(server.URL, staticToken("tok"), server.Client(), nil)

	got := make(chan string, 1)
	cb := rec.callbacks()
	onMessage := cb.OnMessage
	cb.OnMessage = func(chunk string) {
		onMessage(chunk)
		select {
		case got <- chunk:
		default:
		}
	}
	cancel := client.Open(context.Background(), Request{AppID: "a1", UserMessage: "hi"}, cb)

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("first chunk never arrived")
	}
	cancel()

	// Give the abort a moment to propagate, then check nothing fired.
	time.Sleep(100 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 0 {
		t.Fatalf("cancellation surfaced error: %v", rec.errs)
	}
	if rec.complete != 0 {
		t.Fatalf("cancellation fired complete")
	}
}

func TestParseLineShapes(t *testing.T) {
	cases := []struct {
		line string
		kind lineKind
	}{
		{"event:done\n", lineDone},
		{"event:done\r\n", lineDone},
		{"data:{\"d\":\"x\"}\n", lineData},
		{"data: {\"d\":\"x\"}\r\n", lineData},
		{"id:42\n", lineOther},
		{"\n", lineOther},
	}
	for _, tc := range cases {
		kind, _ := parseLine([]byte(tc.line))
		if kind != tc.kind {
			t.Fatalf("parseLine(%q) kind = %d, want %d", tc.line, kind, tc.kind)
		}
	}
}

func TestDecodeChunk(t *testing.T) {
	if chunk, ok := decodeChunk(" {\"d\":\"abc\"} "); !ok || chunk != "abc" {
		t.Fatalf("decodeChunk = %q, %v", chunk, ok)
	}
	if _, ok := decodeChunk("{\"d\":\"\"}"); ok {
		t.Fatalf("empty d should be skipped")
	}
	if _, ok := decodeChunk("{bad json"); ok {
		t.Fatalf("malformed json should be skipped")
	}
	if _, ok := decodeChunk(""); ok {
		t.Fatalf("empty payload should be skipped")
	}
}
