// Command natlang is a demo host for natlang-core. It runs a conversation
// against an OpenAI compatible model in the terminal or over a WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	chat "github.com/koscakluka/natlang-core/core"
	"github.com/koscakluka/natlang-core/core/llms/openai"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	model      string
	baseURL    string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "natlang",
		Short:         "Talk to a model that can run actions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the config file (defaults to the first of natlang.yaml, ~/.config/natlang/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.model, "model", "m", "", "Model to use, overrides the config file")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "Base URL of an OpenAI compatible API, overrides the config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides the config file")

	root.AddCommand(
		newChatCommand(opts),
		newServeCommand(opts),
		newSchemaCommand(),
	)
	return root
}

// loadConfig resolves the config file and applies flag overrides. A missing
// config file is only an error when one was named explicitly.
func (o *rootOptions) loadConfig() (*Config, error) {
	path, err := FindConfig(o.configPath)
	if err != nil {
		if !errors.Is(err, errNoConfig) {
			return nil, err
		}
		path = ""
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newConversation creates a conversation with the demo actions wired to the
// configured model.
func newConversation(ctx context.Context, cfg *Config) (*chat.Conversation, error) {
	client := openai.NewClient(cfg.APIKey(), cfg.Model, openai.WithBaseURL(cfg.BaseURL))

	opts := []chat.Option{
		chat.WithActions(demoActions(&notebook{}, time.Now)...),
		chat.WithResponseTimeout(cfg.Timeout),
	}
	if cfg.Prepend {
		opts = append(opts, chat.WithPrepend())
	}
	if cfg.QueuePrompts {
		opts = append(opts, chat.WithQueuedPrompts())
	}

	conversation, err := chat.New(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if cfg.SystemPrompt != "" {
		if err := conversation.GiveContext(ctx, cfg.SystemPrompt); err != nil {
			return nil, fmt.Errorf("failed to add system prompt: %w", err)
		}
	}
	return conversation, nil
}
