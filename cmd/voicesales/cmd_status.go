package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and live-call state of a running server",
	RunE:  runStatus,
}

var stopEndLive bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Freeze the scheduler on a running server",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopEndLive, "end-live", false, "also hang up calls in progress")
}

func runStatus(_ *cobra.Command, _ []string) error {
	body, err := serverGet("/api/status")
	if err != nil {
		return err
	}
	fmt.Println(body)
	return nil
}

func runStop(_ *cobra.Command, _ []string) error {
	endpoint := "/api/stop"
	if stopEndLive {
		endpoint += "?end_live=true"
	}
	body, err := serverPost(endpoint)
	if err != nil {
		return err
	}
	fmt.Println(body)
	return nil
}

func serverGet(path string) (string, error) {
	return serverDo(http.MethodGet, path)
}

func serverPost(path string) (string, error) {
	return serverDo(http.MethodPost, path)
}

func serverDo(method, path string) (string, error) {
	base := strings.TrimRight(serverURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, base+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}
	return strings.TrimSpace(string(raw)), nil
}
