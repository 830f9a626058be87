package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/program"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
)

var (
	flagPublishTitle   string
	flagPublishSummary string
	flagPublishOwner   string
	flagPublishAPIURL  string
)

var publishCmd = &cobra.Command{
	Use:   "publish <program-file>",
	Short: "Publish a persona program to the RJM platform",
	Long:  "Upload a program JSON artifact and publish it to the RJM platform. Metadata is read from the program itself.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&flagPublishTitle, "title", "", "Program title (overrides the brief title)")
	publishCmd.Flags().StringVar(&flagPublishSummary, "summary", "", "Program summary (overrides auto-generated)")
	defaultOwner := "RJM"
	if u, err := user.Current(); err == nil && u.Name != "" {
		defaultOwner = u.Name
	}
	publishCmd.Flags().StringVar(&flagPublishOwner, "owner", defaultOwner, "Program owner")
	publishCmd.Flags().StringVar(&flagPublishAPIURL, "api-url", "https://rjm.agency", "API base URL")
}

// --- Types ---

type publishMeta struct {
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	Owner        string `json:"owner"`
	Brand        string `json:"brand"`
	Category     string `json:"category"`
	PersonaCount int    `json:"personaCount"`
	InsightCount int    `json:"insightCount"`
}

type uploadResponse struct {
	ProgramID  string `json:"programId"`
	UploadURL  string `json:"uploadUrl"`
	ProgramKey string `json:"programKey"`
}

type confirmResponse struct {
	ProgramID  string `json:"programId"`
	Status     string `json:"status"`
	ProgramURL string `json:"programUrl"`
}

// --- Handler ---

func runPublish(cmd *cobra.Command, args []string) error {
	programPath := args[0]

	// 1. Validate the artifact
	info, err := os.Stat(programPath)
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", programPath)
	}
	p, err := program.Load(programPath)
	if err != nil {
		return fmt.Errorf("not a valid program file: %w", err)
	}
	fmt.Printf("Program: %s / %s (%d personas)\n", p.Brand, p.Category, len(p.Portfolio))

	// 2. Resolve title and summary
	title := p.BriefTitle
	if flagPublishTitle != "" {
		title = flagPublishTitle
	}
	if title == "" {
		base := filepath.Base(programPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	fmt.Printf("Title: %s\n", title)

	summary := flagPublishSummary
	if summary == "" {
		fmt.Print("Generating summary via Haiku...")
		summary, err = generateSummary(p)
		if err != nil {
			fmt.Println(" skipped")
			summary = fmt.Sprintf("%d-persona program for %s in %s.", len(p.Portfolio), p.Brand, p.Category)
		} else {
			fmt.Println(" done")
		}
	}

	// 3. Resolve API key
	apiKey, keySource, err := resolveAPIKey()
	if err != nil {
		return err
	}
	fmt.Printf("API key: found (%s)\n", keySource)

	// 4. Request upload URL
	meta := publishMeta{
		Title:        title,
		Summary:      summary,
		Owner:        flagPublishOwner,
		Brand:        p.Brand,
		Category:     p.Category,
		PersonaCount: len(p.Portfolio),
		InsightCount: len(p.Insights),
	}

	fmt.Print("Requesting upload URL...")
	var uploadResp uploadResponse
	err = publishRetry(func() error {
		return postJSON(flagPublishAPIURL+"/api/programs/upload-url", apiKey, meta, &uploadResp)
	})
	if err != nil {
		fmt.Println(" failed")
		return fmt.Errorf("request upload URL: %w", err)
	}
	fmt.Printf(" ok (id: %s)\n", uploadResp.ProgramID)

	// 5. Upload the artifact to the presigned URL
	fmt.Print("Uploading program...")
	err = uploadFile(programPath, uploadResp.UploadURL, info.Size())
	if err != nil {
		fmt.Println(" failed")
		return fmt.Errorf("upload program: %w", err)
	}
	fmt.Println(" done")

	// 6. Confirm upload
	fmt.Print("Confirming publication...")
	confirmBody := map[string]string{"programId": uploadResp.ProgramID}
	var confirmResp confirmResponse
	err = publishRetry(func() error {
		return postJSON(flagPublishAPIURL+"/api/programs/confirm", apiKey, confirmBody, &confirmResp)
	})
	if err != nil {
		fmt.Println(" failed")
		return fmt.Errorf("confirm upload (file was uploaded but not confirmed): %w", err)
	}
	fmt.Println(" done")

	// 7. Print success
	fmt.Printf("\nPublished: %s\n", title)
	fmt.Printf("  URL: %s/programs\n", flagPublishAPIURL)
	if confirmResp.ProgramURL != "" {
		fmt.Printf("  Artifact: %s\n", confirmResp.ProgramURL)
	}

	return nil
}

// --- Summary generation ---

func generateSummary(p *program.Program) (string, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return "", fmt.Errorf("no ANTHROPIC_API_KEY")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Brand: %s\nCategory: %s\nPersonas: %s\nHighlights: %s\n",
		p.Brand, p.Category, strings.Join(p.SegmentNames(), ", "), strings.Join(p.Highlights, ", "))
	for _, ins := range p.Insights {
		fmt.Fprintf(&sb, "Insight: %s\n", ins.Text)
	}

	client := anthropic.NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model("claude-haiku-4-5-20251001"),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: "You write one-line descriptions of audience persona programs. Given a program's personas and insights, return a JSON object with one field: \"summary\" (a 1-2 sentence description, max 200 chars). Return ONLY the JSON object, no markdown fences."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("haiku API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}

	// Parse JSON response
	var result struct {
		Summary string `json:"summary"`
	}
	// Find JSON object in response
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON in response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return "", fmt.Errorf("parse summary JSON: %w", err)
	}
	if result.Summary == "" {
		return "", fmt.Errorf("empty summary")
	}

	return result.Summary, nil
}

// --- API key resolution ---

func resolveAPIKey() (key, source string, err error) {
	// 1. Environment variable
	if k := os.Getenv("RJM_API_KEY"); k != "" {
		return k, "env:RJM_API_KEY", nil
	}

	// 2. Secrets file
	home, _ := os.UserHomeDir()
	if home != "" {
		secretPath := filepath.Join(home, ".secrets", "rjm-api-key")
		if data, err := os.ReadFile(secretPath); err == nil {
			k := strings.TrimSpace(string(data))
			if k != "" {
				return k, secretPath, nil
			}
		}
	}

	// 3. Config file
	if home != "" {
		configPath := filepath.Join(home, ".config", "rjm", "config.json")
		if data, err := os.ReadFile(configPath); err == nil {
			var cfg struct {
				APIKey string `json:"apiKey"`
			}
			if json.Unmarshal(data, &cfg) == nil && cfg.APIKey != "" {
				return cfg.APIKey, configPath, nil
			}
		}
	}

	return "", "", fmt.Errorf("API key not found — set RJM_API_KEY or create ~/.config/rjm/config.json")
}

// --- HTTP helpers ---

func postJSON(url, apiKey string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}

func uploadFile(path, uploadURL string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequest(http.MethodPut, uploadURL, f)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = size

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// --- Retry ---

func publishRetry(fn func() error) error {
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			time.Sleep(backoffs[attempt])
		}
	}
	return lastErr
}
