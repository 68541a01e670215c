// Command linkctl is a CLI client for the brokerlink API.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "brokerlink")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "brokerlink")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(tokenPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || (!tf.ExpiresAt.IsZero() && time.Now().After(tf.ExpiresAt)) {
		return "", errors.New("no valid token (run 'linkctl token <jwt>' first)")
	}
	return tf.AccessToken, nil
}

// ---- API client ----

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// listPath builds the list request path, escaping filter values.
func listPath(q, status, sortKey, dir, owner string) string {
	params := url.Values{}
	for k, v := range map[string]string{"q": q, "status": status, "sort": sortKey, "dir": dir, "owner": owner} {
		if v != "" {
			params.Set(k, v)
		}
	}
	path := "/credentials"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return path
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: linkctl [-addr URL] <command> [args]

commands:
  token <jwt>                 store the operator token
  list [-q text] [-status f] [-sort key] [-dir d] [-owner scope]
  test <access-token>
  connect <id>
  disconnect <id>
  bulk-connect <id> [id...]
  bulk-disconnect <id> [id...]
  toggle <id>
  delete <id>
  reveal <id> <secret|access_token>
  export [-reveal]`)
	os.Exit(2)
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "server address")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	cmd, rest := args[0], args[1:]
	if cmd == "token" {
		if len(rest) != 1 {
			usage()
		}
		if err := saveToken(rest[0], time.Time{}); err != nil {
			fatal(err)
		}
		fmt.Println("token saved")
		return
	}

	tok, err := loadToken()
	if err != nil {
		fatal(err)
	}
	api := &client{base: *addr + "/api/v1", token: tok, http: &http.Client{Timeout: 30 * time.Second}}

	switch cmd {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		q := fs.String("q", "", "text filter")
		status := fs.String("status", "", "status filter (all|connected|disconnected)")
		sortKey := fs.String("sort", "", "sort key (name|clientId|connectionStatus|expiry)")
		dir := fs.String("dir", "", "sort direction (asc|desc)")
		owner := fs.String("owner", "", "owner scope (me|all|<uuid>)")
		_ = fs.Parse(rest)
		path := listPath(*q, *status, *sortKey, *dir, *owner)
		var out map[string]any
		if err := api.do(http.MethodGet, path, nil, &out); err != nil {
			fatal(err)
		}
		printJSON(out)
	case "test":
		if len(rest) != 1 {
			usage()
		}
		var out map[string]any
		if err := api.do(http.MethodPost, "/credentials/test", map[string]string{"access_token": rest[0]}, &out); err != nil {
			fatal(err)
		}
		printJSON(out)
	case "connect", "disconnect", "toggle":
		if len(rest) != 1 {
			usage()
		}
		paths := map[string]string{
			"connect":    "/credentials/%s/connect",
			"disconnect": "/credentials/%s/disconnect",
			"toggle":     "/credentials/%s/activation",
		}
		var out map[string]any
		if err := api.do(http.MethodPost, fmt.Sprintf(paths[cmd], rest[0]), nil, &out); err != nil {
			fatal(err)
		}
		printJSON(out)
	case "bulk-connect", "bulk-disconnect":
		if len(rest) == 0 {
			usage()
		}
		op := strings.TrimPrefix(cmd, "bulk-")
		var out map[string]any
		if err := api.do(http.MethodPost, "/credentials/bulk/"+op, map[string]any{"ids": rest}, &out); err != nil {
			fatal(err)
		}
		printJSON(out)
	case "delete":
		if len(rest) != 1 {
			usage()
		}
		if err := api.do(http.MethodDelete, "/credentials/"+rest[0], nil, nil); err != nil {
			fatal(err)
		}
		fmt.Println("deleted")
	case "reveal":
		if len(rest) != 2 {
			usage()
		}
		var out map[string]any
		if err := api.do(http.MethodPost, "/credentials/"+rest[0]+"/reveal", map[string]string{"field": rest[1]}, &out); err != nil {
			fatal(err)
		}
		printJSON(out)
	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		reveal := fs.Bool("reveal", false, "export cleartext values (audited)")
		_ = fs.Parse(rest)
		path := "/credentials/export"
		if *reveal {
			path += "?reveal=true"
		}
		var out map[string]any
		if err := api.do(http.MethodGet, path, nil, &out); err != nil {
			fatal(err)
		}
		printJSON(out)
	default:
		usage()
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "linkctl:", err)
	os.Exit(1)
}
