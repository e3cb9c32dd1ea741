package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"codemother/core"
	"codemother/editor"
	"codemother/internal/appconfig"
	"codemother/internal/chromedoc"
	"codemother/internal/creds"
	"codemother/internal/genstream"
	"codemother/internal/logx"
	"codemother/internal/restapi"
	"codemother/internal/transcript"
	"codemother/schema"
	"pkt.systems/pslog"
)

func newChatCmd() *cobra.Command {
	var cfgPath string
	var appID string
	var withPreview bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a generation session for an app",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(appID) == "" {
				return errors.New("--app is required")
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			return runChat(cmd, cfg, schema.AppID(appID), withPreview)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	cmd.Flags().StringVar(&appID, "app", "", "application id")
	cmd.Flags().BoolVar(&withPreview, "preview", false, "open the preview in a browser and enable visual edit commands")
	return cmd
}

func runChat(cmd *cobra.Command, cfg appconfig.Config, appID schema.AppID, withPreview bool) error {
	ctx := cmd.Context()
	logger := logx.Ctx(ctx)
	out := cmd.OutOrStdout()

	store, err := creds.NewStoreWithLogger(cfg.Backend.CredsFile, logger)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	if _, err := store.Token(); err != nil {
		return fmt.Errorf("no usable credentials in %s: %w", cfg.Backend.CredsFile, err)
	}

	var archive core.Archive
	var turns *transcript.Store
	if store, err := transcript.Open(cfg.StateDir); err != nil {
		logger.Warn("transcript archive unavailable", "err", err)
	} else {
		archive = store
		turns = store
		defer store.Close()
	}

	navigator := &previewNavigator{log: logger}
	sink := core.FanoutSink{Sinks: []core.EventSink{newConsoleSink(out), navigator}}
	session, err := core.NewSession(cfg.SessionConfig(), core.SessionDeps{
		API:     restapi.NewClient(cfg.Backend.BaseURL, store, nil, logger),
		Stream:  genstream.NewClient(cfg.Backend.BaseURL, store, nil, logger),
		Archive: archive,
		Sink:    sink,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer session.Reset()

	app, err := session.LoadApp(ctx, appID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "app %s (%s, %s)\n", app.Name, app.ID, app.CodeGenType)
	printMessages(out, session.Messages())

	var doc *chromedoc.Doc
	ed := editor.New(logger)
	if withPreview {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Preview.Headless),
			chromedp.Flag("disable-gpu", true),
		)
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
		defer cancelAlloc()
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
		defer cancelBrowser()
		if err := chromedp.Run(browserCtx); err != nil {
			logger.Warn("preview browser unavailable", "err", err)
		} else {
			doc = chromedoc.New(browserCtx, logger)
			navigator.setDoc(doc)
			if url := session.PreviewURL(); url != "" {
				if err := doc.Navigate(url); err != nil {
					logger.Warn("preview navigate failed", "err", err)
				}
			}
		}
	}
	defer ed.Exit()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/cancel":
			session.CancelGeneration()
		case line == "/history":
			if err := session.LoadChatHistory(ctx, true); err != nil {
				fmt.Fprintf(out, "history: %v\n", err)
			} else {
				printMessages(out, session.Messages())
			}
		case line == "/archive":
			if turns == nil {
				fmt.Fprintln(out, "transcript archive unavailable")
				break
			}
			recent, err := turns.Recent(appID, 10)
			if err != nil {
				fmt.Fprintf(out, "archive: %v\n", err)
				break
			}
			if len(recent) == 0 {
				fmt.Fprintln(out, "no archived turns")
			}
			for _, turn := range recent {
				fmt.Fprintf(out, "%s %s\n", turn.CreatedAt.Format("2006-01-02 15:04"), turn.UserMessage)
			}
		case line == "/edit":
			if doc == nil {
				fmt.Fprintln(out, "edit mode needs --preview")
				break
			}
			active, err := ed.Toggle(doc)
			if err != nil {
				fmt.Fprintf(out, "edit mode: %v\n", err)
			} else if active {
				fmt.Fprintln(out, "edit mode on; click elements in the preview")
			} else {
				fmt.Fprintln(out, "edit mode off")
			}
		case line == "/selected":
			selected := ed.Selected()
			if len(selected) == 0 {
				fmt.Fprintln(out, "no elements selected")
			}
			for i, el := range selected {
				fmt.Fprintf(out, "%d: <%s> %s\n", i+1, el.TagName, el.SelectorPath)
			}
		case strings.HasPrefix(line, "/unselect "):
			var index int
			if _, err := fmt.Sscanf(line, "/unselect %d", &index); err != nil {
				fmt.Fprintln(out, "usage: /unselect <number>")
				break
			}
			if err := ed.RemoveSelected(index - 1); err != nil {
				fmt.Fprintf(out, "unselect: %v\n", err)
			}
		case strings.HasPrefix(line, "/"):
			fmt.Fprintln(out, "commands: /cancel /history /archive /edit /selected /unselect /quit")
		default:
			text := ed.BuildPrompt(line)
			result, err := session.SendMessage(ctx, text)
			if err != nil {
				fmt.Fprintf(out, "send: %v\n", err)
				break
			}
			if ed.Active() {
				ed.ClearSelections()
			}
			go func() {
				if err := <-result; err != nil {
					fmt.Fprintf(out, "generation failed: %v\n", err)
				}
			}()
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func printMessages(out io.Writer, messages []schema.ChatMessage) {
	for _, msg := range messages {
		fmt.Fprintf(out, "%s: %s\n", msg.Role, msg.Content)
	}
}

// consoleSink renders session events to the terminal. Assistant chunks
// arrive as whole-message updates; the sink tracks what it already wrote
// per message and prints only the growth.
type consoleSink struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[schema.MessageID]int
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out, printed: map[schema.MessageID]int{}}
}

func (s *consoleSink) OnMessageEvent(event schema.MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch event.Type {
	case schema.MessageAppended:
		if event.Message.Role == schema.RoleAssistant {
			fmt.Fprint(s.out, "assistant: ")
		}
		s.printed[event.Message.ID] = len(event.Message.Content)
	case schema.MessageUpdated:
		prev := s.printed[event.Message.ID]
		if len(event.Message.Content) > prev {
			fmt.Fprint(s.out, event.Message.Content[prev:])
			s.printed[event.Message.ID] = len(event.Message.Content)
		}
	}
}

func (s *consoleSink) OnStateEvent(event schema.StateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch event.Type {
	case schema.StateIdle:
		fmt.Fprintln(s.out)
	case schema.StatePreviewUpdated:
		fmt.Fprintf(s.out, "preview: %s\n", event.PreviewURL)
	}
}

// previewNavigator follows preview refreshes in the browser once a
// document is attached.
type previewNavigator struct {
	mu  sync.Mutex
	doc *chromedoc.Doc
	log pslog.Logger
}

func (p *previewNavigator) setDoc(doc *chromedoc.Doc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
}

func (p *previewNavigator) OnMessageEvent(event schema.MessageEvent) {}

func (p *previewNavigator) OnStateEvent(event schema.StateEvent) {
	if event.Type != schema.StatePreviewUpdated || event.PreviewURL == "" {
		return
	}
	p.mu.Lock()
	doc := p.doc
	p.mu.Unlock()
	if doc == nil {
		return
	}
	if err := doc.Navigate(event.PreviewURL); err != nil {
		p.log.Warn("preview navigate failed", "err", err)
	}
}
