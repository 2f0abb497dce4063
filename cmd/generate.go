package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skymind/skymind/data"
	"github.com/skymind/skymind/service"
)

var (
	generateTimeout time.Duration

	sysPromptName string
	sysPromptDesc string

	optimizeCmd = &cobra.Command{
		Use:   "optimize [prompt]",
		Short: "Optimize a user prompt",
		Long:  `Rewrites a prompt for clarity and precision while keeping its intent.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runGenerate(func(ctx context.Context, engine *service.Engine) (string, error) {
				return engine.OptimizePrompt(ctx, args[0])
			})
		},
	}

	systemPromptCmd = &cobra.Command{
		Use:   "system-prompt [requirements]",
		Short: "Generate an assistant system prompt",
		Long:  `Generates a system prompt from an assistant's name, description and optional requirements.`,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			userInput := ""
			if len(args) > 0 {
				userInput = args[0]
			}
			runGenerate(func(ctx context.Context, engine *service.Engine) (string, error) {
				return engine.GenerateSystemPrompt(ctx, sysPromptName, sysPromptDesc, userInput)
			})
		},
	}
)

func init() {
	optimizeCmd.Flags().DurationVar(&generateTimeout, "timeout", 60*time.Second, "Generation timeout")
	systemPromptCmd.Flags().DurationVar(&generateTimeout, "timeout", 60*time.Second, "Generation timeout")
	systemPromptCmd.Flags().StringVarP(&sysPromptName, "name", "n", "", "Assistant name")
	systemPromptCmd.Flags().StringVarP(&sysPromptDesc, "description", "D", "", "Assistant description")
	systemPromptCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(systemPromptCmd)
}

// runGenerate runs one synchronous generation through the engine: the
// stream is created and dispatched like any other, but the caller blocks
// on the terminal buffer instead of watching deltas.
func runGenerate(generate func(context.Context, *service.Engine) (string, error)) {
	cfg := data.NewConfigStore()
	store := data.NewTopicStore()

	engine := service.NewEngine(store, cfg)
	engine.Start()
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	result, err := generate(ctx, engine)
	if err != nil {
		service.Errorf("Generation failed: %v", err)
		os.Exit(1)
	}
	fmt.Println(result)
}
