package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cloaked-ai/cloak/engine/llm"
	"github.com/cloaked-ai/cloak/engine/privacy"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var threadKey string
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive REPL through the privacy pipeline",
		Long:  "Starts a terminal conversation with the configured model. Every turn is redacted before dispatch and restored before display. Use --thread to resume a conversation; omit it for an ephemeral session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setupContext(cmd)
			if err != nil {
				return err
			}
			components, err := privacy.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer components.Close()

			var history []llm.Message
			if systemPrompt != "" {
				history = append(history, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "cloak chat — type /quit to exit, /clear to reset the thread")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit", line == "/exit":
					return nil
				case line == "/clear":
					if err := components.Wrapper.ClearThread(ctx, threadKey); err != nil {
						return err
					}
					history = history[:0]
					if systemPrompt != "" {
						history = append(history, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
					}
					fmt.Fprintln(out, "thread cleared")
					continue
				}

				history = append(history, llm.Message{Role: llm.RoleUser, Content: line})
				response, err := components.Wrapper.ProcessTurn(ctx, threadKey, history)
				if err != nil {
					return err
				}
				history = append(history, response)
				fmt.Fprintln(out, response.Content)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&threadKey, "thread", "", "thread key for a persistent conversation (empty = ephemeral)")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt prepended to the conversation")
	return cmd
}
