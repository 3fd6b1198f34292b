// Command render-mcp exposes a running `render serve` instance as an MCP
// tool over stdio.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// renderRequest mirrors the render API request model.
type renderRequest struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout,omitempty"`
	Fixed   bool   `json:"fixed,omitempty"`
}

// renderResponse mirrors the render API response model.
type renderResponse struct {
	Success     bool   `json:"success"`
	StatusCode  int    `json:"status_code"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	CacheStatus string `json:"cache_status"`
	Timing      struct {
		TotalMs  int64 `json:"total_ms"`
		RenderMs int64 `json:"render_ms"`
	} `json:"timing"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := strings.TrimRight(os.Getenv("PRERENDER_API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PRERENDER_API_KEY")

	s := newServer(apiURL, apiKey)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(apiURL, apiKey string) *server.MCPServer {
	s := server.NewMCPServer(
		"prerender",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	renderPageTool := mcp.NewTool("render_page",
		mcp.WithDescription("Render a JavaScript-heavy page in a headless browser and return the final HTML. "+
			"By default waits for the page to set window.serverRenderer = {status: <code>}; "+
			"set fixed to return as soon as the page has loaded."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to render"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait for the completion signal after load (default: server setting)"),
			mcp.Min(1),
		),
		mcp.WithBoolean("fixed",
			mcp.Description("Return right after the load event instead of waiting for the completion signal"),
		),
	)
	s.AddTool(renderPageTool, handleRenderPage(apiURL, apiKey, &http.Client{Timeout: 10 * time.Minute}))

	return s
}

func handleRenderPage(apiURL, apiKey string, client *http.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := renderRequest{
			URL:     url,
			Timeout: request.GetInt("timeout", 0),
			Fixed:   request.GetBool("fixed", false),
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/render", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp renderResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			errMsg := "render failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "URL: %s\n", resp.URL)
		if resp.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", resp.Title)
		}
		if resp.StatusCode != 0 {
			fmt.Fprintf(&b, "Status: %d\n", resp.StatusCode)
		}
		fmt.Fprintf(&b, "Rendered in %dms", resp.Timing.RenderMs)
		if resp.CacheStatus != "" {
			fmt.Fprintf(&b, " (cache %s)", resp.CacheStatus)
		}
		b.WriteString("\n\n")
		b.WriteString(resp.Content)

		return mcp.NewToolResultText(b.String()), nil
	}
}

// apiPost sends a POST request to the render API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
