package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send an utterance to a conversation and print the outcome",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:18620",
			},
			&cli.StringFlag{
				Name:    "conversation",
				Aliases: []string{"t"},
				Usage:   "Conversation title",
				Value:   "scratch",
			},
			&cli.StringFlag{
				Name:  "lang",
				Usage: "Answer language hint",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Response timeout in seconds",
				Value: 120,
			},
		},
		Action: runAsk,
	}
}

func runAsk(_ context.Context, cmd *cli.Command) error {
	message := cmd.Args().First()
	if message == "" {
		return fmt.Errorf("usage: curator ask <message>")
	}

	body, err := json.Marshal(map[string]string{
		"utterance": message,
		"lang":      cmd.String("lang"),
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/conversations/%s/intents", cmd.String("gateway"), cmd.String("conversation"))
	client := &http.Client{Timeout: time.Duration(cmd.Int("timeout")) * time.Second}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reach gateway: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Status         string   `json:"Status"`
		Messages       []string `json:"Messages"`
		ConfirmationID string   `json:"ConfirmationID"`
		Explanation    string   `json:"Explanation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	for _, m := range out.Messages {
		fmt.Println(m)
	}
	switch out.Status {
	case "NEEDS_CONFIRMATION":
		fmt.Printf("awaiting confirmation: %s\n", out.ConfirmationID)
	case "LOW_CONFIDENCE":
		fmt.Printf("low confidence: %s\n", out.Explanation)
	}
	return nil
}
