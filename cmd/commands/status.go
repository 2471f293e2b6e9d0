package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/curator-ai/curator/internal/config"
	"github.com/curator-ai/curator/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check whether the daemon is reachable",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:18620",
			},
		},
		Action: runStatus,
	}
}

func runStatus(_ context.Context, cmd *cli.Command) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(cmd.String("gateway") + "/api/health")
	if err != nil {
		return statusFromHeartbeat(cmd)
	}
	defer resp.Body.Close()

	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Printf("daemon: %s\n", health["status"])
	return nil
}

// statusFromHeartbeat distinguishes a stopped daemon from a hung one when
// the gateway does not answer.
func statusFromHeartbeat(cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil || cfg.Vault.Path == "" {
		fmt.Println("daemon: unreachable")
		return nil
	}

	path := filepath.Join(cfg.Vault.Path, cfg.Vault.StateDir, "heartbeat.json")
	status, hb, err := heartbeat.Check(path, 2*time.Minute)
	if err != nil {
		fmt.Println("daemon: unreachable")
		return nil
	}

	switch status {
	case heartbeat.StatusAlive:
		fmt.Printf("daemon: alive (pid %d, up %s) but gateway %s not answering\n", hb.PID, hb.Uptime, hb.Addr)
	case heartbeat.StatusStale:
		fmt.Printf("daemon: stale (pid %d, last heartbeat %s)\n", hb.PID, hb.Timestamp.Format(time.RFC3339))
	default:
		fmt.Println("daemon: stopped")
	}
	return nil
}
