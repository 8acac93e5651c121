package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchCount int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live manga change events",
	Long: `Connect to the server's event stream and print every manga change as it happens.
Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		wsURL, err := eventsURL(client.baseURL)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		if !jsonOutput {
			printInfo(out, "Connecting to "+wsURL+"...")
		}
		return watchEvents(ctx, wsURL, client.session, watchCount, jsonOutput, out, func() {
			if !jsonOutput {
				printSuccess(out, "Watching for changes")
			}
		})
	},
}

func init() {
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "exit after this many events (0 streams until interrupted)")
}

// eventsURL turns the configured http(s) server URL into its websocket
// event endpoint.
func eventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: scheme must be http or https", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String(), nil
}

type watchedEvent struct {
	Type    string                 `json:"type"`
	MangaID string                 `json:"mangaId"`
	UserID  string                 `json:"userId,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	At      time.Time              `json:"at"`
}

// watchEvents prints events from wsURL until ctx ends, the server goes away
// or count events were printed. onConnected runs once the server greets the
// subscription.
func watchEvents(ctx context.Context, wsURL, session string, count int, asJSON bool, out io.Writer, onConnected func()) error {
	header := http.Header{}
	if session != "" {
		header.Set("Cookie", (&http.Cookie{Name: sessionCookieName, Value: session}).String())
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	seen := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)
		}

		var e watchedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		if e.Type == "connected" {
			if onConnected != nil {
				onConnected()
			}
			continue
		}

		if asJSON {
			fmt.Fprintln(out, string(data))
		} else {
			printEvent(out, e)
		}

		seen++
		if count > 0 && seen >= count {
			return nil
		}
	}
}

func printEvent(w io.Writer, e watchedEvent) {
	fmt.Fprintf(w, "[%s] %s manga=%s", e.At.Local().Format("15:04:05"), e.Type, e.MangaID)
	if e.UserID != "" {
		fmt.Fprintf(w, " user=%s", e.UserID)
	}
	fmt.Fprintln(w)
	for k, v := range e.Data {
		printInfo(w, fmt.Sprintf("%s: %v", k, v))
	}
}
