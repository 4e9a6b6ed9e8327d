package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// client is a thin wrapper over the server's HTTP/JSON API. The session
// token is kept in a file so separate invocations share the login.
type client struct {
	base      string
	tokenPath string
	http      *http.Client
}

func newClient(base, tokenPath string) *client {
	return &client{base: base, tokenPath: tokenPath, http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *client) token() string {
	b, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(b))
}

func (c *client) saveToken(tok string) error {
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.tokenPath, []byte(tok), 0o600)
}

func (c *client) dropToken() error {
	err := os.Remove(c.tokenPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// do sends a request and decodes the JSON response into out (unless nil).
// Non-2xx responses become errors carrying the server's error message.
func (c *client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Error string `json:"error"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&eb); derr == nil && eb.Error != "" {
			return fmt.Errorf("%s (%d)", eb.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
