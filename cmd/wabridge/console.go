package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/go-resty/resty/v2"
)

var errQuit = errors.New("quit")

const consoleHelp = `Commands:
  status                              connection status
  send <to> <text...>                 send a text message
  media <type> <to> <url> [caption]   send image|document|audio|video
  messages <chat> [limit]             recent history for a chat
  webhook <type> <url>                set a webhook (empty url "" unsets)
  webhooks                            list webhooks
  test [type]                         post a test payload
  dead                                list dead letters
  replay                              re-queue dead letters
  restart                             log out and pair again
  quit`

func consoleCommand(args []string) {
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:3000", "bridge base URL")
	token := fs.String("token", os.Getenv("WABRIDGE_TOKEN"), "bearer token")
	fs.Parse(args)

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wabridge> ",
		HistoryFile:     filepath.Join(home, ".wabridge", "console_history"),
		AutoComplete:    consoleCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Printf("Error starting console: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	client := newConsoleClient(*addr, *token)
	fmt.Printf("Connected to %s. Type 'help' for commands.\n", *addr)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return
			}
			continue
		}
		if err == io.EOF {
			return
		}

		out, err := client.execute(line)
		if errors.Is(err, errQuit) {
			return
		}
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(rl.Stdout(), out)
		}
	}
}

var consoleCompleter = readline.NewPrefixCompleter(
	readline.PcItem("status"),
	readline.PcItem("send"),
	readline.PcItem("media",
		readline.PcItem("image"),
		readline.PcItem("document"),
		readline.PcItem("audio"),
		readline.PcItem("video"),
	),
	readline.PcItem("messages"),
	readline.PcItem("webhook",
		readline.PcItem("message"),
		readline.PcItem("status"),
		readline.PcItem("group"),
	),
	readline.PcItem("webhooks"),
	readline.PcItem("test",
		readline.PcItem("message"),
		readline.PcItem("status"),
		readline.PcItem("group"),
	),
	readline.PcItem("dead"),
	readline.PcItem("replay"),
	readline.PcItem("restart"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

type consoleClient struct {
	http *resty.Client
}

func newConsoleClient(addr, token string) *consoleClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(addr, "/")).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &consoleClient{http: c}
}

// execute runs one console line and returns what to print.
func (c *consoleClient) execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		return consoleHelp, nil
	case "quit", "exit":
		return "", errQuit

	case "status":
		return c.call(http.MethodGet, "/status", nil)

	case "send":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: send <to> <text...>")
		}
		return c.call(http.MethodPost, "/send-message", map[string]string{
			"to":      args[0],
			"message": strings.Join(args[1:], " "),
		})

	case "media":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: media <type> <to> <url> [caption]")
		}
		return c.call(http.MethodPost, "/send-media", map[string]string{
			"mediaType": args[0],
			"to":        args[1],
			"mediaUrl":  args[2],
			"caption":   strings.Join(args[3:], " "),
		})

	case "messages":
		if len(args) < 1 {
			return "", fmt.Errorf("usage: messages <chat> [limit]")
		}
		path := "/messages/" + args[0]
		if len(args) > 1 {
			if _, err := strconv.Atoi(args[1]); err != nil {
				return "", fmt.Errorf("limit must be a number")
			}
			path += "?limit=" + args[1]
		}
		return c.call(http.MethodGet, path, nil)

	case "webhook":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: webhook <type> <url>")
		}
		url := args[1]
		if url == `""` {
			url = ""
		}
		return c.call(http.MethodPost, "/set-webhook", map[string]string{"type": args[0], "url": url})

	case "webhooks":
		return c.call(http.MethodGet, "/webhooks", nil)

	case "test":
		body := map[string]string{}
		if len(args) > 0 {
			body["type"] = args[0]
		}
		return c.call(http.MethodPost, "/test-webhook", body)

	case "dead":
		return c.call(http.MethodGet, "/webhooks/dead-letters", nil)

	case "replay":
		return c.call(http.MethodPost, "/webhooks/dead-letters/replay", nil)

	case "restart":
		return c.call(http.MethodPost, "/restart", nil)
	}
	return "", fmt.Errorf("unknown command %q, type 'help'", cmd)
}

func (c *consoleClient) call(method, path string, body interface{}) (string, error) {
	var out map[string]interface{}
	req := c.http.R().SetResult(&out).SetError(&out)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		if msg, ok := out["error"].(string); ok {
			return "", fmt.Errorf("%s (HTTP %d)", msg, resp.StatusCode())
		}
		return "", fmt.Errorf("HTTP %d", resp.StatusCode())
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}
