// Command operator is the CLI for the operator commands spec.md's Master
// Control admin surface exposes over HTTP (run-once, pause-all,
// emergency-stop, resume, approve-action, promote-winner): a thin HTTP
// client against a running cmd/server, in the same flag-based style as
// cmd/server itself (the teacher ships only one binary; this is the natural
// second entry point a flag-based admin surface implies).
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "clipcast engine server base URL")
	apiKey := flag.String("api-key", "", "API key sent as X-API-Key, if the server requires one")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	out, paint := colorWriter()
	args := flag.Args()
	if len(args) == 0 {
		printUsage(out)
		os.Exit(2)
	}

	client := &operatorClient{
		baseURL: *serverURL,
		apiKey:  *apiKey,
		http:    &http.Client{Timeout: *timeout},
		paint:   paint,
	}

	var err error
	switch cmd := args[0]; cmd {
	case "health":
		err = client.get(out, "/api/v1/health")
	case "pause-all":
		err = client.post(out, "/api/v1/control/pause-all", nil)
	case "emergency-stop":
		err = client.post(out, "/api/v1/control/emergency-stop", nil)
	case "resume":
		err = client.post(out, "/api/v1/control/resume", nil)
	case "restart":
		err = requireArg(args, 1, "restart <component>", func(component string) error {
			return client.post(out, "/api/v1/control/restart/"+component, nil)
		})
	case "run-once":
		err = requireArg(args, 1, "run-once <component>", func(component string) error {
			return client.post(out, "/api/v1/control/run-once/"+component, nil)
		})
	case "approve-action":
		err = requireArg(args, 1, "approve-action <action-id>", func(id string) error {
			return client.post(out, "/api/v1/optimization-actions/"+id+"/approve", nil)
		})
	case "promote-winner":
		err = requireArg(args, 1, "promote-winner <ab-test-id>", func(id string) error {
			return client.post(out, "/api/v1/ab-tests/"+id+"/promote-winner", nil)
		})
	default:
		fmt.Fprintln(out, paint(ansiRed, fmt.Sprintf("unknown command %q", cmd)))
		printUsage(out)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(out, paint(ansiRed, fmt.Sprintf("error: %v", err)))
		os.Exit(1)
	}
}

func requireArg(args []string, idx int, usage string, fn func(string) error) error {
	if len(args) <= idx {
		return fmt.Errorf("usage: operator %s", usage)
	}
	return fn(args[idx])
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: operator [-server url] [-api-key key] <command> [args]")
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  health                          live health check of every component (C12)")
	fmt.Fprintln(out, "  pause-all                       halt C4/C7/C9 and pause every active campaign")
	fmt.Fprintln(out, "  emergency-stop                  same as pause-all, the spec.md §4.12 kill switch")
	fmt.Fprintln(out, "  resume                          reverse an emergency stop")
	fmt.Fprintln(out, "  restart <component>             restart one registered component")
	fmt.Fprintln(out, "  run-once <component>            run one tick of a component immediately")
	fmt.Fprintln(out, "  approve-action <action-id>      approve and execute a suggested C9 action")
	fmt.Fprintln(out, "  promote-winner <ab-test-id>     publish a completed C8 test's winner")
}

// operatorClient talks to the REST admin surface api/rest exposes.
type operatorClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	paint   func(code, text string) string
}

func (c *operatorClient) get(out io.Writer, path string) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(out, req)
}

func (c *operatorClient) post(out io.Writer, path string, body any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(out, req)
}

func (c *operatorClient) do(out io.Writer, req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload any
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&payload); err != nil && err != io.EOF {
		return fmt.Errorf("decoding response: %w", err)
	}

	pretty, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		fmt.Fprintln(out, c.paint(ansiRed, fmt.Sprintf("%d %s", resp.StatusCode, pretty)))
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	fmt.Fprintln(out, c.paint(ansiGreen, string(pretty)))
	return nil
}

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// colorWriter returns stdout (wrapped with go-colorable so ANSI codes
// render on Windows consoles) plus a paint function that wraps text in the
// given color code, or an identity function when stdout isn't a terminal
// at all (piped/redirected output shouldn't carry escape codes).
func colorWriter() (io.Writer, func(code, text string) string) {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return os.Stdout, func(_, text string) string { return text }
	}
	return colorable.NewColorableStdout(), func(code, text string) string { return code + text + ansiReset }
}
