package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/client"
	"github.com/matheus3301/chatline/internal/lock"
	"github.com/matheus3301/chatline/internal/session"
	"github.com/skip2/go-qrcode"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(session.SocketPath(sessionName))
	if err != nil {
		fatal(fmt.Errorf("cannot connect to daemon for session %q: %w", sessionName, err))
	}
	defer func() { _ = c.Close() }()

	// Streaming commands run until interrupted.
	streamCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(streamCtx, 10*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, sessionName, out)
	case "sessions":
		cmdSessions(out)
	case "roster":
		cmdRoster(ctx, c, args[1:], out)
	case "feed":
		need(args, 2, "chatctl feed <counterpart>")
		cmdFeed(ctx, c, args[1], out)
	case "send":
		need(args, 3, "chatctl send <counterpart> <text>")
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), out)
	case "read":
		need(args, 2, "chatctl read <counterpart>")
		check(c.MarkRead(ctx, args[1]))
	case "contacts":
		cmdContacts(ctx, c, out)
	case "contact":
		cmdContact(ctx, c, args[1:], out)
	case "auth":
		cmdAuth(streamCtx, c)
	case "logout":
		check(c.Logout(ctx))
		fmt.Println("Logged out.")
	case "watch":
		cmdWatch(streamCtx, c, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show session status")
	fmt.Fprintln(os.Stderr, "  sessions                        List sessions and their daemons")
	fmt.Fprintln(os.Stderr, "  roster [all|unread] [query]     List conversations")
	fmt.Fprintln(os.Stderr, "  feed <counterpart>              Show a conversation")
	fmt.Fprintln(os.Stderr, "  send <counterpart> <text>       Send a message")
	fmt.Fprintln(os.Stderr, "  read <counterpart>              Reset a conversation's unread count")
	fmt.Fprintln(os.Stderr, "  contacts                        List the contact directory")
	fmt.Fprintln(os.Stderr, "  contact add <id> <name> [avatar]  Add or rename a contact")
	fmt.Fprintln(os.Stderr, "  contact import                  Import contacts from WhatsApp")
	fmt.Fprintln(os.Stderr, "  auth                            Pair with WhatsApp by QR code")
	fmt.Fprintln(os.Stderr, "  logout                          Unpair from WhatsApp")
	fmt.Fprintln(os.Stderr, "  watch [kind-prefix...]          Stream daemon events")
}

func cmdStatus(ctx context.Context, c *client.Client, sessionName string, out printer) {
	resp, err := c.Status(ctx)
	if grpcstatus.Code(err) == codes.Unavailable {
		// No daemon answering; say whether one holds the session.
		held, ierr := lock.Inspect(session.Dir(sessionName))
		switch {
		case ierr != nil:
			fatal(ierr)
		case held != nil:
			fatal(fmt.Errorf("daemon (pid %d) holds session %q but is not answering", held.PID, sessionName))
		default:
			fatal(fmt.Errorf("daemon not running for session %q", sessionName))
		}
	}
	check(err)
	if out.json {
		out.JSON(resp)
		return
	}
	fmt.Printf("Session:    %s\n", resp.Session)
	fmt.Printf("Transport:  %s\n", resp.Transport)
	if resp.SelfID != "" {
		fmt.Printf("Self:       %s\n", resp.SelfID)
	}
	fmt.Printf("Status:     %s (connected: %v)\n", resp.State, resp.Connected)
	fmt.Printf("Uptime:     %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Chats:      %d (%d unread)\n", resp.Conversations, resp.UnreadConversations)
	fmt.Printf("Contacts:   %d\n", resp.ContactCount)
	fmt.Printf("Journaled:  %d messages\n", resp.MessageCount)
	fmt.Printf("Sending:    %d queued\n", resp.PendingSends)
}

type sessionRow struct {
	Name    string    `json:"name"`
	Running bool      `json:"running"`
	PID     int       `json:"pid,omitempty"`
	Since   time.Time `json:"since,omitzero"`
}

func cmdSessions(out printer) {
	names, err := session.List()
	check(err)
	rows := make([]sessionRow, 0, len(names))
	for _, name := range names {
		row := sessionRow{Name: name}
		held, err := lock.Inspect(session.Dir(name))
		check(err)
		if held != nil {
			row.Running, row.PID, row.Since = true, held.PID, held.Since
		}
		rows = append(rows, row)
	}
	if out.json {
		out.JSON(rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No sessions.")
		return
	}
	for _, r := range rows {
		state := "stopped"
		if r.Running {
			state = fmt.Sprintf("running (pid %d", r.PID)
			if !r.Since.IsZero() {
				state += ", since " + r.Since.Format(time.DateTime)
			}
			state += ")"
		}
		fmt.Printf("%-20s %s\n", r.Name, state)
	}
}

func cmdRoster(ctx context.Context, c *client.Client, args []string, out printer) {
	filter := ""
	if len(args) > 0 && (args[0] == "all" || args[0] == "unread") {
		filter, args = args[0], args[1:]
	}
	resp, err := c.Roster(ctx, filter, strings.Join(args, " "))
	check(err)
	if out.json {
		out.JSON(resp)
		return
	}
	if len(resp.Entries) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, e := range resp.Entries {
		unread := ""
		if e.UnreadCount > 0 {
			unread = fmt.Sprintf("(%d)", e.UnreadCount)
		}
		last := e.LastMessage
		if e.LastFromMe {
			last = "You: " + last
		}
		fmt.Printf("%-24s %5s  %s  %s\n", truncate(e.DisplayName, 24), unread, e.LastMessageAt().Format("Jan 02 15:04"), truncate(last, 60))
	}
}

func cmdFeed(ctx context.Context, c *client.Client, counterpart string, out printer) {
	view, err := c.OpenFeed(ctx, counterpart)
	check(err)
	if out.json {
		out.JSON(view)
		return
	}
	header := view.DisplayName
	switch {
	case view.Presence.Online:
		header += " (online)"
	case !view.Presence.LastSeen().IsZero():
		header += " (last seen " + view.Presence.LastSeen().Format("Jan 02 15:04") + ")"
	}
	fmt.Println(header)

	// The feed arrives newest first; a terminal reads top to bottom.
	msgs := slices.Clone(view.Messages)
	slices.Reverse(msgs)
	for _, m := range msgs {
		who := view.DisplayName
		if m.FromMe {
			who = "You"
		}
		fmt.Printf("[%s] %s: %s  %s\n", m.CreatedAt().Format("15:04"), who, m.Body, statusMark(m))
	}
}

func cmdSend(ctx context.Context, c *client.Client, counterpart, text string, out printer) {
	msg, err := c.Compose(ctx, counterpart, text)
	check(err)
	if out.json {
		out.JSON(msg)
		return
	}
	fmt.Printf("Queued %s\n", msg.ID)
}

func cmdContacts(ctx context.Context, c *client.Client, out printer) {
	contacts, err := c.Contacts(ctx)
	check(err)
	if out.json {
		out.JSON(contacts)
		return
	}
	for _, ct := range contacts {
		fmt.Printf("%-32s %s\n", ct.ID, ct.DisplayName)
	}
}

func cmdContact(ctx context.Context, c *client.Client, args []string, out printer) {
	if len(args) == 0 {
		fatal(errors.New("usage: chatctl contact <add|import>"))
	}
	switch args[0] {
	case "add":
		need(args, 3, "chatctl contact add <id> <name> [avatar]")
		contact := api.Contact{ID: args[1], DisplayName: args[2]}
		if len(args) > 3 {
			contact.AvatarRef = args[3]
		}
		saved, err := c.AddContact(ctx, contact)
		check(err)
		if out.json {
			out.JSON(saved)
			return
		}
		fmt.Printf("Saved %s (%s)\n", saved.ID, saved.DisplayName)
	case "import":
		n, err := c.ImportContacts(ctx)
		check(err)
		fmt.Printf("Imported %d contacts\n", n)
	default:
		fatal(fmt.Errorf("unknown contact subcommand: %s", args[0]))
	}
}

func cmdAuth(ctx context.Context, c *client.Client) {
	stream, err := c.StartAuth(ctx)
	check(err)
	for {
		evt, err := stream.Recv()
		if err != nil {
			check(err)
		}
		switch evt.Type {
		case "qr_code":
			qr, err := qrcode.New(evt.QRCode, qrcode.Low)
			check(err)
			fmt.Print("\033[H\033[2J")
			fmt.Println("Scan with WhatsApp > Linked devices > Link a device")
			fmt.Println(qr.ToSmallString(false))
		case "authenticated":
			fmt.Println("Paired.")
			return
		default:
			fatal(fmt.Errorf("pairing failed: %s", evt.Message))
		}
	}
}

func cmdWatch(ctx context.Context, c *client.Client, kinds []string) {
	events, errc, err := c.Watch(ctx, kinds...)
	check(err)
	enc := json.NewEncoder(os.Stdout)
	for evt := range events {
		if err := enc.Encode(evt); err != nil {
			fatal(err)
		}
	}
	if err := <-errc; err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func statusMark(m api.Message) string {
	if !m.FromMe {
		return ""
	}
	switch chat.Status(m.Status) {
	case chat.StatusPending:
		return "…"
	case chat.StatusSent:
		return "✓"
	case chat.StatusDelivered:
		return "✓✓"
	case chat.StatusRead:
		return "✓✓ read"
	case chat.StatusFailed:
		return "! not sent"
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

type printer struct {
	json bool
}

func (printer) JSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fatal(fmt.Errorf("usage: %s", usage))
	}
}

func check(err error) {
	if err != nil {
		if st, ok := grpcstatus.FromError(err); ok {
			fatal(errors.New(st.Message()))
		}
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
