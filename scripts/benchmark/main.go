// Command benchmark measures render latency of a running `render serve`
// instance. The first run of each URL is normally a cache miss and the
// following runs hits, so the report shows both costs.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "render API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "number of runs per URL")
	timeout = flag.Int("timeout", 10, "completion timeout in seconds sent with each render")
	fixed   = flag.Bool("fixed", false, "render in fixed mode instead of waiting for the completion signal")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Pages with different amounts of client-side rendering.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Docs", "https://go.dev/doc/effective_go"},
	{"SPA", "https://react.dev"},
	{"Heavy", "https://github.com/go-rod/rod"},
}

// --- Request / Response types (mirrors models package) ---

type renderRequest struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout,omitempty"`
	Fixed   bool   `json:"fixed,omitempty"`
}

type renderResponse struct {
	Success     bool         `json:"success"`
	StatusCode  int          `json:"status_code"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	CacheStatus string       `json:"cache_status"`
	Timing      timingInfo   `json:"timing"`
	Error       *errorDetail `json:"error,omitempty"`
}

type timingInfo struct {
	TotalMs  int64 `json:"total_ms"`
	RenderMs int64 `json:"render_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run           int    `json:"run"`
	WallMs        int64  `json:"wall_ms"`
	RenderMs      int64  `json:"render_ms"`
	CacheStatus   string `json:"cache_status"`
	ContentLength int    `json:"content_length"`
	StatusCode    int    `json:"status_code"`
	HasTitle      bool   `json:"has_title"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

type urlSummary struct {
	MissMs float64 `json:"miss_ms"`
	HitMs  float64 `json:"hit_ms"`
	Misses int     `json:"misses"`
	Hits   int     `json:"hits"`
}

type urlResult struct {
	URL     string      `json:"url"`
	Label   string      `json:"label"`
	Runs    []runResult `json:"runs"`
	Summary *urlSummary `json:"summary,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Mode       string      `json:"mode"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	mode := "poll"
	if *fixed {
		mode = "fixed"
	}

	fmt.Println("=== Render Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Mode:      %s\n", mode)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure the renderer is running (render serve)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
		Mode:       mode,
	}

	client := &http.Client{Timeout: time.Duration(*timeout+60) * time.Second}
	for _, t := range testURLs {
		fmt.Printf("Rendering [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := renderOnce(client, t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  status=%d  cache=%s\n", rr.WallMs, rr.StatusCode, orDash(rr.CacheStatus))
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Summary = summarize(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func renderOnce(client *http.Client, url string, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(renderRequest{URL: url, Timeout: *timeout, Fixed: *fixed})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/render", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var sr renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.WallMs = time.Since(start).Milliseconds()

	rr.Success = sr.Success
	rr.StatusCode = sr.StatusCode
	rr.RenderMs = sr.Timing.RenderMs
	rr.CacheStatus = sr.CacheStatus
	rr.ContentLength = len(sr.Content)
	rr.HasTitle = sr.Title != ""
	if sr.Error != nil {
		rr.Error = fmt.Sprintf("[%s] %s", sr.Error.Code, sr.Error.Message)
	}
	return rr
}

// summarize averages wall time separately for cache misses and hits.
func summarize(runs []runResult) *urlSummary {
	var s urlSummary
	for _, r := range runs {
		if !r.Success {
			continue
		}
		if r.CacheStatus == "hit" {
			s.Hits++
			s.HitMs += float64(r.WallMs)
		} else {
			s.Misses++
			s.MissMs += float64(r.WallMs)
		}
	}
	if s.Hits+s.Misses == 0 {
		return nil
	}
	if s.Hits > 0 {
		s.HitMs /= float64(s.Hits)
	}
	if s.Misses > 0 {
		s.MissMs /= float64(s.Misses)
	}
	return &s
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 78))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tRender (miss)\tCached (hit)\tStatus\n")
	fmt.Fprintf(w, "───\t─────────────\t────────────\t──────\n")

	for _, r := range results {
		if r.Summary == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			truncateURL(r.URL, 40),
			formatMs(r.Summary.MissMs, r.Summary.Misses),
			formatMs(r.Summary.HitMs, r.Summary.Hits),
			dominantStatus(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 78))
}

func formatMs(ms float64, n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%dms", int64(ms))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func dominantStatus(runs []runResult) int {
	counts := map[int]int{}
	for _, r := range runs {
		if r.Success {
			counts[r.StatusCode]++
		}
	}
	best, bestCount := 0, 0
	for code, count := range counts {
		if count > bestCount {
			best = code
			bestCount = count
		}
	}
	return best
}

func truncateURL(u string, limit int) string {
	if len(u) <= limit {
		return u
	}
	return u[:limit-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
