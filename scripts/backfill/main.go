// Command backfill triggers a full rollup rebuild through the running API.
// Useful after restoring a database dump or fixing historical dues by hand.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type backfillResult struct {
	Data struct {
		MonthsProcessed int      `json:"months_processed"`
		MonthKeys       []string `json:"month_keys"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		base    string
		token   string
		timeout time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&token, "token", os.Getenv("API_TOKEN"), "Admin access token (defaults to $API_TOKEN)")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "HTTP client timeout")
	flag.Parse()

	if token == "" {
		log.Fatal("an admin access token is required (-token or $API_TOKEN)")
	}

	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/analytics/backfill", nil)
	if err != nil {
		log.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("backfill request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}

	var result backfillResult
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("unexpected response (%d): %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode != http.StatusOK || result.Error != nil {
		msg := "unknown error"
		if result.Error != nil {
			msg = fmt.Sprintf("%s: %s", result.Error.Code, result.Error.Message)
		}
		log.Printf("backfill failed (%d): %s", resp.StatusCode, msg)
		os.Exit(1)
	}

	fmt.Printf("Backfilled %d months\n", result.Data.MonthsProcessed)
	for _, month := range result.Data.MonthKeys {
		fmt.Printf("  %s\n", month)
	}
}
