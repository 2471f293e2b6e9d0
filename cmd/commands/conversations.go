package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// NewConversationsCommand returns the conversations subcommand.
func NewConversationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "conversations",
		Usage: "List conversations known to the daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:18620",
			},
		},
		Action: runConversations,
	}
}

func runConversations(_ context.Context, cmd *cli.Command) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(cmd.String("gateway") + "/api/conversations")
	if err != nil {
		return fmt.Errorf("reach gateway: %w", err)
	}
	defer resp.Body.Close()

	var list []struct {
		Title        string    `json:"title"`
		Status       string    `json:"status"`
		MessageCount int       `json:"message_count"`
		UpdatedAt    time.Time `json:"updated_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("no conversations")
		return nil
	}
	for _, c := range list {
		fmt.Printf("%-40s %-8s %4d messages  %s\n",
			c.Title, c.Status, c.MessageCount, c.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
