// Package main implements the switchctl CLI for manual operations
// against the switchd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the switchd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "switchctl",
	Short: "CLI for switchd HTTP server operations",
	Long: `switchctl is a command-line interface for the switchd daemon.
It registers projects and switches the active project's adapter,
vector index, and conversation context as one atomic operation.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9180", "switchd server URL")
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(invalidateCmd)
}

// activateCmd switches the active project.
var activateCmd = &cobra.Command{
	Use:   "activate <project>",
	Short: "Activate a project by name or ID",
	Long: `Activate a project, loading its adapter, vector index, and
conversation context. On partial failure the previous project stays
active and the failed resource is reported.

Examples:
  # Activate by name
  switchctl activate my-service

  # Use a different server
  switchctl activate --server http://localhost:8080 my-service`,
	Args: cobra.ExactArgs(1),
	RunE: runActivate,
}

// statusCmd reads coordinator status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active project and cache occupancy",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// registerCmd registers a new project.
var registerCmd = &cobra.Command{
	Use:   "register <name> <workspace-path>",
	Short: "Register a codebase as a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runRegister,
}

// listCmd lists registered projects.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

// invalidateCmd force-evicts stale cached resources.
var invalidateCmd = &cobra.Command{
	Use:   "invalidate <project>",
	Short: "Force-evict a project's cached resources",
	Long: `Force-evict a project's cached resources, e.g. after the
adapter was retrained. Use --kind to target one resource kind
(adapter, vectorstore, context); the default evicts all three.`,
	Args: cobra.ExactArgs(1),
	RunE: runInvalidate,
}

var invalidateKind string

func init() {
	invalidateCmd.Flags().StringVar(&invalidateKind, "kind", "", "resource kind to invalidate (adapter, vectorstore, context)")
}

// ActivationResult matches internal/coordinator ActivationResult.
type ActivationResult struct {
	ProjectID       string `json:"project_id"`
	Active          string `json:"active"`
	Degraded        bool   `json:"degraded"`
	FailedKind      string `json:"failed_kind,omitempty"`
	AdapterFallback bool   `json:"adapter_fallback,omitempty"`
}

// Project matches internal/registry Project.
type Project struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WorkspacePath string `json:"workspace_path"`
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func runActivate(cmd *cobra.Command, args []string) error {
	resp, err := httpClient().Post(
		fmt.Sprintf("%s/v1/projects/%s/activate", serverURL, args[0]), "application/json", nil)
	if err != nil {
		return fmt.Errorf("activate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var result ActivationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}

	switch {
	case result.Degraded:
		fmt.Printf("degraded switch: %s failed to load, active project is still %s\n",
			result.FailedKind, result.Active)
		os.Exit(1)
	case result.AdapterFallback:
		fmt.Printf("activated %s (no trained adapter, using base model)\n", result.Active)
	default:
		fmt.Printf("activated %s\n", result.Active)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := httpClient().Get(serverURL + "/v1/status")
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if err := json.Indent(&buf, mustRead(resp.Body), "", "  "); err != nil {
		return fmt.Errorf("parsing status: %w", err)
	}
	fmt.Println(buf.String())
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	payload, _ := json.Marshal(map[string]string{
		"name":           args[0],
		"workspace_path": args[1],
	})
	resp, err := httpClient().Post(serverURL+"/v1/projects", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("register request failed: %w", err)
	}
	defer resp.Body.Close()

	body := mustRead(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}

	var project Project
	if err := json.Unmarshal(body, &project); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	fmt.Printf("registered %s (%s)\n", project.Name, project.ID)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	resp, err := httpClient().Get(serverURL + "/v1/projects")
	if err != nil {
		return fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	var projects []Project
	if err := json.Unmarshal(mustRead(resp.Body), &projects); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	for _, p := range projects {
		fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, p.WorkspacePath)
	}
	return nil
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/v1/projects/%s/invalidate", serverURL, args[0])
	if invalidateKind != "" {
		url += "?kind=" + invalidateKind
	}
	resp, err := httpClient().Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("invalidate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("server returned %s: %s", resp.Status, mustRead(resp.Body))
	}
	fmt.Println("invalidated")
	return nil
}

// mustRead drains a response body, returning nil on error.
func mustRead(r io.Reader) []byte {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	return data
}
