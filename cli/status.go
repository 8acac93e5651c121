package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/binhbb2204/mangashelf/cli/config"
	"github.com/spf13/cobra"
)

type probeResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Code   int    `json:"code"`
}

type statusReport struct {
	Server    string      `json:"server"`
	OS        string      `json:"os"`
	Arch      string      `json:"arch"`
	GoVersion string      `json:"goVersion"`
	User      string      `json:"user,omitempty"`
	Liveness  probeResult `json:"liveness"`
	Readiness probeResult `json:"readiness"`
}

var errNotReady = errors.New("server is not ready")

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show client and server status",
	Long:  `Display local client information and probe the server's liveness and readiness endpoints.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}

		report := statusReport{
			Server:    cfg.Server.URL,
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			GoVersion: runtime.Version(),
			User:      cfg.User.Username,
		}
		liveErr := client.probe(cmd.Context(), "/healthz", &report.Liveness)
		readyErr := client.probe(cmd.Context(), "/readyz", &report.Readiness)

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, report); err != nil {
				return err
			}
		} else {
			printStatus(cmd, report, cfg)
		}

		if liveErr != nil {
			return liveErr
		}
		if readyErr != nil {
			return readyErr
		}
		if report.Readiness.Status != "ready" {
			return fmt.Errorf("%w: %s", errNotReady, report.Readiness.Reason)
		}
		return nil
	},
}

// probe fills res from a health endpoint. A 503 still carries a status
// body, so only transport and decode failures are returned.
func (c *apiClient) probe(ctx context.Context, path string, res *probeResult) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		res.Status = "unreachable"
		res.Reason = err.Error()
		return err
	}
	defer resp.Body.Close()

	res.Code = resp.StatusCode
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		res.Status = http.StatusText(resp.StatusCode)
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func printStatus(cmd *cobra.Command, r statusReport, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Client:")
	printInfo(out, fmt.Sprintf("OS/Arch: %s/%s", r.OS, r.Arch))
	printInfo(out, "Go Version: "+r.GoVersion)
	if path, err := config.GetConfigPath(); err == nil {
		printInfo(out, "Config: "+path)
	}
	if r.User != "" {
		printInfo(out, "Logged in as: "+r.User)
	} else {
		printInfo(out, "Logged in as: (nobody)")
	}

	fmt.Fprintln(out, "\nServer "+cfg.Server.URL+":")
	printProbe(cmd, "Liveness", r.Liveness)
	printProbe(cmd, "Readiness", r.Readiness)
}

func printProbe(cmd *cobra.Command, name string, p probeResult) {
	out := cmd.OutOrStdout()
	switch {
	case p.Code == 0:
		printError(out, fmt.Sprintf("%s: unreachable (%s)", name, p.Reason))
	case p.Code < http.StatusBadRequest:
		printSuccess(out, fmt.Sprintf("%s: %s (HTTP %d)", name, p.Status, p.Code))
	default:
		msg := fmt.Sprintf("%s: %s (HTTP %d)", name, p.Status, p.Code)
		if p.Reason != "" {
			msg += ", " + p.Reason
		}
		printError(out, msg)
	}
}
