package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var serverURL string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leadctl",
		Short: "leadctl - operate a leadscore server",
		Long: `leadctl talks to the leadscore HTTP API.
Output is JSON (pipe through jq for filtering).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "leadscore server URL")

	rootCmd.AddCommand(newTrainCommand())
	rootCmd.AddCommand(newScoreCommand())
	rootCmd.AddCommand(newRescoreCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newSessionsCommand())
	rootCmd.AddCommand(newPerformanceCommand())
	rootCmd.AddCommand(newJobCommand())
	rootCmd.AddCommand(newLogCommand())
	return rootCmd
}

func getDefaultServer() string {
	if server := os.Getenv("LEADSCORE_SERVER"); server != "" {
		return server
	}
	return "http://localhost:8080"
}

// --- HTTP client ---

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func newClient() *Client {
	return &Client{
		BaseURL: serverURL,
		HTTP:    &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *Client) do(method, path string, params url.Values, data interface{}) ([]byte, error) {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("server error (%d): %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return respBody, nil
}

func (c *Client) get(path string, params url.Values) ([]byte, error) {
	return c.do(http.MethodGet, path, params, nil)
}

func (c *Client) post(path string, data interface{}) ([]byte, error) {
	return c.do(http.MethodPost, path, nil, data)
}

// outputJSON pretty-prints data, falling back to the raw bytes.
func outputJSON(w io.Writer, data []byte) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Fprintln(w, string(data))
		return
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
