package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func newClient(apiURL, secret string, timeout time.Duration) *resty.Client {
	c := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if secret != "" {
		c.SetAuthToken(secret)
	}
	return c
}

// printResponse pretty-prints a JSON body, or returns the status and raw body on failure.
func printResponse(resp *resty.Response, out io.Writer) error {
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), bytes.TrimSpace(resp.Body()))
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp.Body(), "", "  "); err != nil {
		_, err = out.Write(resp.Body())
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func runDashboard(c *resty.Client, refresh bool, out io.Writer) error {
	req := c.R()
	if refresh {
		req.SetQueryParam("refresh", "true")
	}
	resp, err := req.Get("/api/unified-dashboard")
	if err != nil {
		return err
	}
	if src := resp.Header().Get("X-Cache-Source"); src != "" {
		fmt.Fprintf(os.Stderr, "source: %s\n", src)
	}
	return printResponse(resp, out)
}

func runRefresh(c *resty.Client, which string, out io.Writer) error {
	var path string
	switch which {
	case "newsletter":
		path = "/api/cron/refresh-newsletter"
	case "cache":
		path = "/api/cron/refresh-cache"
	default:
		return fmt.Errorf("unknown refresh target %q (want newsletter or cache)", which)
	}
	resp, err := c.R().Get(path)
	if err != nil {
		return err
	}
	return printResponse(resp, out)
}

func runMyWeek(c *resty.Client, file string, out io.Writer) error {
	if file == "" {
		return fmt.Errorf("--file required")
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if !json.Valid(body) {
		return fmt.Errorf("%s is not valid JSON", file)
	}
	resp, err := c.R().SetHeader("Content-Type", "application/json").SetBody(body).Post("/api/my-week")
	if err != nil {
		return err
	}
	return printResponse(resp, out)
}

func runEvents(c *resty.Client, out io.Writer) error {
	resp, err := c.R().Get("/api/cohort-events")
	if err != nil {
		return err
	}
	return printResponse(resp, out)
}
