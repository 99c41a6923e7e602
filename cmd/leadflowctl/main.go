package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/h1v3-io/leadflow/internal/config"
	"github.com/h1v3-io/leadflow/internal/crm"
)

var (
	apiURL string
	apiKey string
)

var rootCmd = &cobra.Command{
	Use:   "leadflowctl",
	Short: "leadflow management CLI",
	Long: `Talk to a running leadflowd over its REST API, inspect sessions and
validate configuration.`,
	Example: `  # Check the daemon
  $ leadflowctl health

  # Chat as a new visitor
  $ leadflowctl chat

  # List booked leads
  $ leadflowctl sessions list --status agendado`,
	SilenceUsage: true,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiDo(http.MethodGet, "/api/health", nil)
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	},
}

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant (type 'quit' to exit)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the message history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiDo(http.MethodGet, "/api/sessions/"+url.PathEscape(args[0])+"/messages", nil)
		if err != nil {
			return err
		}
		var hist struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &hist); err != nil {
			return fmt.Errorf("decode history: %w", err)
		}
		for _, m := range hist.Messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions",
}

var (
	listStatus string
	listStage  string
	listLimit  int
)

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions (--status, --stage, --limit)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(listLimit))
		if listStatus != "" {
			q.Set("status", listStatus)
		}
		if listStage != "" {
			q.Set("stage", listStage)
		}
		body, err := apiDo(http.MethodGet, "/api/sessions?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		var sessions []map[string]any
		if err := json.Unmarshal(body, &sessions); err != nil {
			return fmt.Errorf("decode sessions: %w", err)
		}
		for _, s := range sessions {
			fmt.Printf("%-45v %-18v %-10v %v\n", s["id"], s["stage"], s["status"], s["updated_at"])
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiDo(http.MethodGet, "/api/sessions/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}
		fmt.Println(prettyJSON(body))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(args[0]); err != nil {
			return fmt.Errorf("invalid: %w", err)
		}
		fmt.Println("config is valid")
		return nil
	},
}

var crmConfigPath string

var crmCmd = &cobra.Command{
	Use:   "crm",
	Short: "Pipefy helpers",
}

var crmFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List pipe phases and field IDs for crm.card_fields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg *config.Config
		var err error
		if crmConfigPath != "" {
			cfg, err = config.Load(crmConfigPath)
		} else {
			cfg, err = config.LoadFromEnv()
		}
		if err != nil {
			return err
		}
		if cfg.CRM.APIKey == "" || cfg.CRM.PipeID == "" {
			return fmt.Errorf("crm.api_key and crm.pipe_id are required")
		}

		var opts []crm.Option
		if cfg.CRM.Endpoint != "" {
			opts = append(opts, crm.WithEndpoint(cfg.CRM.Endpoint))
		}
		client := crm.New(cfg.CRM.APIKey, cfg.CRM.PipeID, opts...)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		phases, err := client.PipeFields(ctx)
		if err != nil {
			return err
		}
		for _, p := range phases {
			fmt.Printf("phase %s  %s\n", p.ID, p.Name)
			for _, f := range p.Fields {
				fmt.Printf("  %-30s %-20s %s\n", f.ID, f.Type, f.Label)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("LEADFLOW_API_URL", "http://localhost:8080"), "Daemon URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("LEADFLOW_API_KEY"), "API key for admin endpoints")

	chatCmd.Flags().StringVar(&chatSession, "session", "", "Continue an existing session")

	sessionsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (in_progress|agendado|recusado)")
	sessionsListCmd.Flags().StringVar(&listStage, "stage", "", "Filter by stage")
	sessionsListCmd.Flags().IntVar(&listLimit, "limit", 50, "Max results")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)

	configCmd.AddCommand(configValidateCmd)

	crmFieldsCmd.Flags().StringVar(&crmConfigPath, "config", "", "Config file (default: environment)")
	crmCmd.AddCommand(crmFieldsCmd)

	rootCmd.AddCommand(healthCmd, chatCmd, historyCmd, sessionsCmd, configCmd, crmCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	sessionID := chatSession
	fmt.Println("leadflowctl chat (type 'quit' to exit)")
	if sessionID != "" {
		fmt.Printf("Session: %s\n", sessionID)
	}
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		payload, _ := json.Marshal(map[string]string{"session_id": sessionID, "content": line})
		body, err := apiDo(http.MethodPost, "/api/messages", payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		var resp struct {
			SessionID string `json:"session_id"`
			Response  string `json:"response"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "error: decode reply: %v\n", err)
			continue
		}
		if sessionID == "" {
			sessionID = resp.SessionID
			fmt.Printf("(session %s)\n", sessionID)
		}
		fmt.Println(resp.Response)
		fmt.Println()
	}
	return scanner.Err()
}

// --- Helpers ---

func apiDo(method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, strings.TrimRight(apiURL, "/")+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	// Chat turns wait on the model and the booking calls.
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
