// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/config"
)

// EndpointStatus holds the health information for one listener.
type EndpointStatus struct {
	Component string `json:"component"`
	Addr      string `json:"addr"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput  bool
	timeout     time.Duration
	listenAddr  string
	metricsAddr string
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}
	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running Parley server",
		Long:  `Probe the API and metrics listeners of a running Parley server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 5*time.Second, "probe timeout")
	cmd.Flags().StringVar(&cfg.listenAddr, "listen_addr", defaults.ListenAddr, "API address to probe")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics_addr", defaults.MetricsAddr, "metrics address to probe (empty to skip)")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	// A config file names the addresses the server actually listens on;
	// explicit flags win over it.
	if configFile != "" {
		conf, err := config.Load(configFile, nil)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("listen_addr") {
			cfg.listenAddr = conf.ListenAddr
		}
		if !cmd.Flags().Changed("metrics_addr") {
			cfg.metricsAddr = conf.MetricsAddr
		}
	}

	client := &http.Client{Timeout: cfg.timeout}

	statuses := map[string]EndpointStatus{
		"api": probeEndpoint(client, "api", cfg.listenAddr, "/healthz"),
	}
	if cfg.metricsAddr != "" {
		statuses["metrics"] = probeEndpoint(client, "metrics", cfg.metricsAddr, "/readyz")
	}

	var output string
	if cfg.jsonOutput {
		formatted, err := formatStatusJSON(statuses)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		output = formatted
	} else {
		output = formatStatusTable(statuses)
	}

	cmd.Println(output)
	return nil
}

// probeEndpoint sends a GET to the component's health path.
func probeEndpoint(client *http.Client, component, addr, path string) EndpointStatus {
	status := EndpointStatus{
		Component: component,
		Addr:      addr,
	}

	resp, err := client.Get("http://" + addr + path)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		status.Error = fmt.Sprintf("failed to read response: %v", err)
		return status
	}

	status.Healthy = resp.StatusCode == http.StatusOK
	status.Detail = strings.TrimSpace(string(body))
	return status
}

// formatStatusJSON renders the statuses as indented JSON.
func formatStatusJSON(statuses map[string]EndpointStatus) (string, error) {
	out, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal statuses: %w", err)
	}
	return string(out), nil
}

// formatStatusTable renders the statuses as an aligned table.
func formatStatusTable(statuses map[string]EndpointStatus) string {
	components := make([]string, 0, len(statuses))
	for component := range statuses {
		components = append(components, component)
	}
	sort.Strings(components)

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tADDR\tHEALTHY\tDETAIL")
	for _, component := range components {
		s := statuses[component]
		detail := s.Detail
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", s.Component, s.Addr, s.Healthy, detail)
	}
	_ = w.Flush()
	return sb.String()
}
