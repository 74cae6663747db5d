// Package tui is the terminal front end of chatd. It renders daemon state and
// forwards user actions; every chat rule lives in the daemon.
package tui

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/client"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/tui/keys"
	"github.com/matheus3301/chatline/internal/tui/model"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/matheus3301/chatline/internal/tui/views"
	"github.com/rivo/tview"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	refreshInterval = 5 * time.Second
	callTimeout     = 10 * time.Second
	headerRows      = 5
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	vm       *model.ViewModel
	client   *client.Client
	registry *keys.Registry
	flash    *ui.FlashModel

	body     *tview.Flex
	info     *ui.SessionInfo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	prompt   *ui.Prompt
	flashBar *ui.FlashBar

	roster     *views.RosterList
	feed       *views.FeedPanel
	auth       *views.AuthView
	help       *views.HelpView
	details    *views.ContactInfo
	components map[string]ui.Component

	authing atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		vm:       model.NewViewModel(c),
		client:   c,
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		info:     ui.NewSessionInfo(theme),
		menu:     ui.NewMenu(theme, headerRows),
		crumbs:   ui.NewCrumbs(theme),
		prompt:   ui.NewPrompt(theme),
		flashBar: ui.NewFlashBar(theme),
		roster:   views.NewRosterList(theme),
		feed:     views.NewFeedPanel(theme),
		auth:     views.NewAuthView(theme),
		help:     views.NewHelpView(theme),
		details:  views.NewContactInfo(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.flash.Info("session %s", sessionName)

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	onRune := func(r rune, label, desc string, visible bool, fn func()) *keys.Action {
		return &keys.Action{Key: tcell.KeyRune, Rune: r, Label: label, Description: desc, Visible: visible, Handler: fn}
	}

	a.registry.AddGlobal(onRune(':', ":", "Command", true, func() { a.showPrompt(ui.PromptCommand, "") }))
	a.registry.AddGlobal(onRune('?', "?", "Help", true, func() { a.push(views.PageHelp) }))

	a.registry.AddView(views.PageChats, &keys.Action{
		Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Visible: true,
		Handler: func() { a.openFeed(a.roster.SelectedCounterpart()) },
	})
	a.registry.AddView(views.PageChats, &keys.Action{
		Key: tcell.KeyTab, Label: "Tab", Description: "All/Unread", Visible: true,
		Handler: func() {
			a.vm.ToggleFilter()
			a.refreshRoster()
		},
	})
	a.registry.AddView(views.PageChats, onRune('/', "/", "Search", true, func() {
		_, query := a.vm.Filter()
		a.showPrompt(ui.PromptFilter, query)
	}))
	a.registry.AddView(views.PageChats, onRune('r', "r", "Mark read", true, func() { a.markRead(a.roster.SelectedCounterpart()) }))
	a.registry.AddView(views.PageChats, onRune('d', "d", "Details", true, func() { a.showDetails(a.roster.SelectedCounterpart()) }))
	a.registry.AddView(views.PageChats, onRune('q', "q", "Quit", true, a.Stop))
	for n := 1; n <= 9; n++ {
		a.registry.AddView(views.PageChats, onRune(rune('0'+n), "1-9", "Jump", n == 1, func() {
			a.openFeed(a.roster.CounterpartAt(n))
		}))
	}

	a.registry.AddView(views.PageFeed, onRune('i', "i", "Compose", true, func() { a.app.SetFocus(a.feed.Composer()) }))
	a.registry.AddView(views.PageFeed, onRune('d', "d", "Details", true, func() { a.showDetails(a.vm.Active()) }))
	a.registry.AddView(views.PageFeed, onRune('q', "Esc", "Back", true, a.back))

	for _, page := range []string{views.PageHelp, views.PageDetails, views.PageAuth} {
		a.registry.AddView(page, onRune('q', "Esc", "Back", true, a.back))
	}
}

func (a *App) setupCallbacks() {
	a.feed.SetOnSend(func(text string) {
		go func() {
			ctx, cancel := a.callCtx()
			defer cancel()
			if err := a.vm.Compose(ctx, text); err != nil {
				a.fail("send", err)
				return
			}
			a.draw(a.render)
		}()
	})
	a.feed.SetOnLeave(func() { a.app.SetFocus(a.feed.Messages()) })

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.vm.SetQuery(text)
			a.refreshRoster()
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.updateMenu()
	})
}

func (a *App) setupLayout() {
	a.components = make(map[string]ui.Component)
	for _, c := range []ui.Component{a.roster, a.feed, a.auth, a.help, a.details} {
		a.components[c.Name()] = c
		a.pages.Add(c)
	}
	a.pages.Reset(views.PageChats)

	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 3, false).
		AddItem(ui.NewLogo(a.theme), 26, 0, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerRows, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.body, true)
	a.app.SetFocus(a.roster)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	// Text inputs handle their own Enter and Esc.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return ev
	}
	if ev.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if a.registry.HandleEvent(a.pages.Current(), ev) {
		return nil
	}
	return ev
}

func (a *App) push(page string) {
	a.pages.Push(page)
	a.focusCurrent()
}

func (a *App) back() {
	switch a.pages.Current() {
	case views.PageChats:
		return
	case views.PageFeed:
		a.pages.Pop()
		a.focusCurrent()
		go func() {
			ctx, cancel := a.callCtx()
			defer cancel()
			if err := a.vm.CloseFeed(ctx); err != nil {
				a.fail("leave conversation", err)
			}
			a.reload(model.RefreshRoster)
		}()
	default:
		a.pages.Pop()
		a.focusCurrent()
	}
}

func (a *App) focusCurrent() {
	if c, ok := a.components[a.pages.Current()]; ok {
		a.app.SetFocus(c.FocusTarget())
	}
	a.updateMenu()
}

func (a *App) showPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode, text)
	a.body.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) hidePrompt() {
	a.body.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) updateMenu() {
	var hints []ui.MenuHint
	for _, act := range a.registry.Visible(a.pages.Current()) {
		hints = append(hints, ui.MenuHint{
			Key:         act.Label,
			Description: act.Description,
			Numeric:     act.Label != "" && act.Label[0] >= '0' && act.Label[0] <= '9',
		})
	}
	a.menu.Update(hints)
}

// render redraws every view from the view model. Runs on the UI goroutine.
func (a *App) render() {
	now := time.Now()
	entries, unread := a.vm.Roster()
	filter, query := a.vm.Filter()
	a.roster.Update(entries, unread, filter, query, now)
	a.feed.Update(a.vm.Feed(), now)
	a.info.Update(a.sessionData())
	a.flashBar.Update(a.flash.Current())
}

func (a *App) sessionData() *ui.SessionData {
	st := a.vm.Status()
	if st == nil {
		return nil
	}
	return &ui.SessionData{
		Session:   st.Session,
		Transport: st.Transport,
		SelfID:    st.SelfID,
		State:     st.State,
		Connected: st.Connected,
		Chats:     st.Conversations,
		Unread:    st.UnreadConversations,
		Contacts:  st.ContactCount,
		Pending:   st.PendingSends,
		Uptime:    time.Duration(st.UptimeMs) * time.Millisecond,
	}
}

// draw queues fn on the UI goroutine unless the app is stopping.
func (a *App) draw(fn func()) {
	if a.ctx.Err() != nil {
		return
	}
	a.app.QueueUpdateDraw(fn)
}

func (a *App) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.ctx, callTimeout)
}

// fail flashes err and redraws. Call it off the UI goroutine.
func (a *App) fail(what string, err error) {
	if a.ctx.Err() != nil {
		return
	}
	a.flash.Err(what + ": " + grpcstatus.Convert(err).Message())
	a.draw(a.render)
}

// reload refetches the given parts; the view model signals the redraw. Call it off
// the UI goroutine.
func (a *App) reload(parts model.Refresh) {
	ctx, cancel := a.callCtx()
	defer cancel()
	if parts.Has(model.RefreshRoster) {
		if err := a.vm.LoadRoster(ctx); err != nil {
			a.fail("roster", err)
		}
	}
	if parts.Has(model.RefreshFeed) {
		if err := a.vm.ReloadFeed(ctx); err != nil {
			a.fail("conversation", err)
		}
	}
	if parts.Has(model.RefreshStatus) {
		if err := a.vm.LoadStatus(ctx); err != nil {
			a.fail("status", err)
		}
	}
}

func (a *App) refreshRoster() {
	go a.reload(model.RefreshRoster)
}

func (a *App) openFeed(id string) {
	if id == "" {
		return
	}
	go func() {
		ctx, cancel := a.callCtx()
		defer cancel()
		if err := a.vm.OpenFeed(ctx, id); err != nil {
			a.fail("open "+id, err)
			return
		}
		// Opening resets the unread counter.
		if err := a.vm.LoadRoster(ctx); err != nil {
			a.fail("roster", err)
		}
		a.draw(func() {
			a.render()
			a.push(views.PageFeed)
		})
	}()
}

func (a *App) markRead(id string) {
	if id == "" {
		return
	}
	go func() {
		ctx, cancel := a.callCtx()
		defer cancel()
		if err := a.vm.MarkRead(ctx, id); err != nil {
			a.fail("mark read", err)
			return
		}
		a.draw(a.render)
	}()
}

func (a *App) showDetails(id string) {
	if id == "" {
		return
	}
	var entry *api.RosterEntry
	if e, ok := a.roster.Entry(id); ok {
		entry = &e
	}
	var view *api.FeedView
	if a.vm.Active() == id {
		view = a.vm.Feed()
	}
	a.details.Update(entry, view, time.Now())
	a.push(views.PageDetails)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case "q", "quit":
		a.Stop()
	case "o", "open":
		if cmd.Arg(0) == "" {
			a.flash.Warn("usage: open <id>")
			break
		}
		a.openFeed(cmd.Arg(0))
	case "read":
		id := cmd.Arg(0)
		if id == "" {
			id = a.roster.SelectedCounterpart()
		}
		a.markRead(id)
	case "all", "unread":
		a.vm.SetFilter(cmd.Name)
		a.refreshRoster()
	case "add":
		id, name := cmd.Arg(0), cmd.Rest(1)
		if id == "" || name == "" {
			a.flash.Warn("usage: add <id> <display name>")
			break
		}
		go func() {
			ctx, cancel := a.callCtx()
			defer cancel()
			if err := a.vm.AddContact(ctx, id, name); err != nil {
				a.fail("add contact", err)
				return
			}
			a.flash.Info("added %s, :open %s to start chatting", name, id)
			a.reload(model.RefreshStatus)
		}()
	case "import":
		go func() {
			ctx, cancel := a.callCtx()
			defer cancel()
			n, err := a.vm.ImportContacts(ctx)
			if err != nil {
				a.fail("import contacts", err)
				return
			}
			a.flash.Info("imported %d contacts", n)
			a.reload(model.RefreshStatus | model.RefreshRoster)
		}()
	case "pair", "auth":
		a.startAuth()
	case "logout":
		go func() {
			ctx, cancel := a.callCtx()
			defer cancel()
			if err := a.vm.Logout(ctx); err != nil {
				a.fail("logout", err)
				return
			}
			a.flash.Warn("logged out")
			a.reload(model.RefreshStatus)
		}()
	case "h", "help":
		a.push(views.PageHelp)
	default:
		a.flash.Warn("unknown command %q, press ? for help", cmd.Name)
	}
	a.flashBar.Update(a.flash.Current())
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.bootstrap()
	return a.app.Run()
}

func (a *App) bootstrap() {
	a.reload(model.RefreshStatus | model.RefreshRoster)
	if st := a.vm.Status(); st != nil && st.State == string(status.AuthRequired) {
		a.draw(a.startAuth)
	}
	go a.watchLoop()
	a.refreshLoop()
}

// refreshLoop redraws whenever the view model changes and polls as a fallback to
// the event stream, which also expires flash messages.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.draw(a.render)
		case <-ticker.C:
			a.reload(model.RefreshStatus | model.RefreshRoster)
			a.draw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// watchLoop follows daemon events and redraws what they touch, resubscribing
// after the stream breaks.
func (a *App) watchLoop() {
	for a.ctx.Err() == nil {
		events, errc, err := a.client.Watch(a.ctx)
		if err == nil {
			for evt := range events {
				a.handleEvent(evt)
			}
			err = <-errc
		}
		if a.ctx.Err() != nil {
			return
		}
		a.flash.Warn("event stream lost (%s), retrying", grpcstatus.Convert(err).Message())
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(refreshInterval):
		}
	}
}

func (a *App) handleEvent(evt api.Event) {
	switch evt.Kind {
	case bus.MessageSendFailed:
		var p api.SendResultPayload
		if evt.Decode(&p) == nil {
			a.flash.Err("message to " + p.CounterpartID + " not sent: " + p.Error)
		}
	case bus.SessionLoggedOut:
		a.flash.Warn("session logged out")
	case bus.SessionStatusChanged:
		var p api.SessionStatePayload
		if evt.Decode(&p) == nil && p.To == string(status.AuthRequired) {
			a.draw(a.startAuth)
		}
	}
	if parts := model.Plan(evt, a.vm.Active()); parts != 0 {
		a.reload(parts)
	}
}

// startAuth shows the pairing page and streams codes into it. Runs on the UI goroutine.
func (a *App) startAuth() {
	if !a.authing.CompareAndSwap(false, true) {
		return
	}
	a.auth.ShowMessage("Requesting a pairing code...")
	a.push(views.PageAuth)
	go a.runAuthFlow()
}

// runAuthFlow calls StartAuth on the daemon and streams QR codes to the auth view.
func (a *App) runAuthFlow() {
	defer a.authing.Store(false)

	show := func(msg string) {
		a.draw(func() { a.auth.ShowMessage(msg) })
	}

	stream, err := a.client.StartAuth(a.ctx)
	if err != nil {
		show("Cannot pair: " + grpcstatus.Convert(err).Message())
		return
	}

	for {
		evt, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			if a.ctx.Err() == nil {
				show("Pairing stopped: " + grpcstatus.Convert(err).Message())
			}
			return
		}

		switch evt.Type {
		case "qr_code":
			code := evt.QRCode
			a.draw(func() { a.auth.ShowQR(code) })
		case "authenticated":
			a.flash.Info("linked, loading chats")
			a.draw(func() {
				a.pages.Push(views.PageChats)
				a.focusCurrent()
			})
			a.reload(model.RefreshStatus | model.RefreshRoster)
			return
		case "auth_failed", "timeout":
			msg := evt.Message
			if msg == "" {
				msg = "Pairing failed"
			}
			show(msg + "\n\nEsc to go back, :pair to try again.")
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
