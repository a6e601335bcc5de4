package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/genflow/genflow/client"
	"github.com/genflow/genflow/config"
	"github.com/genflow/genflow/stability"
	"github.com/genflow/genflow/workflow"
)

var (
	configPath string
	outputDir  string

	flagNegative   string
	flagModel      string
	flagLoRA       []string
	flagStrengths  []float64
	flagDimensions string
	flagSampler    string
	flagScheduler  string
	flagSteps      int
	flagCFG        float64
	flagDenoise    float64
	flagBatch      int
	flagSeed       int64
	flagInput      string

	flagVoice    string
	flagDuration float64

	flagWidth int
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := &cobra.Command{
		Use:           "genflow",
		Short:         "Drive generative-media jobs on a ComfyUI-style engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to config file")
	root.PersistentFlags().StringVarP(&outputDir, "out", "o", ".", "directory for downloaded outputs")

	root.AddCommand(generateCmd(), musicCmd(), speakCmd(), apiCmd(), upscaleCmd(), modelsCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Stringer("kind", client.KindOf(err)).Msg("command failed")
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <workflow> <prompt>",
		Short: "Run an image or video workflow on the graph engine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			params := &workflow.Parameters{
				Workflow:       args[0],
				Prompt:         args[1],
				NegativePrompt: flagNegative,
				Model:          flagModel,
				Dimensions:     flagDimensions,
				Sampler:        flagSampler,
				Scheduler:      flagScheduler,
				ModelDir:       cfg.Comfy.ModelDir,
			}
			for i, name := range flagLoRA {
				strength := 1.0
				if i < len(flagStrengths) {
					strength = flagStrengths[i]
				}
				params.LoRAs = append(params.LoRAs, workflow.LoRA{Name: name, Strength: strength})
			}
			if cmd.Flags().Changed("steps") {
				params.Steps = &flagSteps
			}
			if cmd.Flags().Changed("cfg") {
				params.CFGScale = &flagCFG
			}
			if cmd.Flags().Changed("denoise") {
				params.Denoise = &flagDenoise
			}
			if cmd.Flags().Changed("batch") {
				params.BatchSize = &flagBatch
			}
			if cmd.Flags().Changed("seed") {
				params.Seed = &flagSeed
			}
			params.EnsureSeed()

			template, mapping, err := cfg.Workflow(params.Workflow)
			if err != nil {
				return err
			}

			c := newEngineClient(cfg)
			if flagInput != "" {
				name, err := c.UploadFile(cmd.Context(), flagInput, false)
				if err != nil {
					return err
				}
				params.Filename = name
			}

			bound, err := workflow.Bind(template, mapping, params)
			if err != nil {
				return err
			}

			return runAndSave(cmd.Context(), c, bound)
		},
	}
	cmd.Flags().StringVarP(&flagNegative, "negative", "n", "", "negative prompt")
	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "checkpoint name")
	cmd.Flags().StringSliceVar(&flagLoRA, "lora", nil, "lora adapter names (repeatable)")
	cmd.Flags().Float64SliceVar(&flagStrengths, "lora-strength", nil, "lora strengths, positional")
	cmd.Flags().StringVarP(&flagDimensions, "dimensions", "d", "", "output dimensions, e.g. 1024x1024")
	cmd.Flags().StringVar(&flagSampler, "sampler", "", "sampler name")
	cmd.Flags().StringVar(&flagScheduler, "scheduler", "", "scheduler name")
	cmd.Flags().IntVar(&flagSteps, "steps", 0, "sampling steps")
	cmd.Flags().Float64Var(&flagCFG, "cfg", 0, "cfg scale")
	cmd.Flags().Float64Var(&flagDenoise, "denoise", 0, "denoise strength for img2img")
	cmd.Flags().IntVar(&flagBatch, "batch", 0, "batch size")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "explicit seed; random when omitted")
	cmd.Flags().StringVarP(&flagInput, "input", "i", "", "input image to upload for conditioning")
	return cmd
}

func musicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "music <workflow> <prompt>",
		Short: "Run a text-to-music workflow on the graph engine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := &workflow.AudioParameters{Workflow: args[0], Prompt: args[1]}
			if cmd.Flags().Changed("duration") {
				params.Duration = &flagDuration
			}
			if cmd.Flags().Changed("cfg") {
				params.CFG = &flagCFG
			}
			if cmd.Flags().Changed("seed") {
				params.Seed = &flagSeed
			}
			params.Filename = flagInput
			return runAudio(cmd.Context(), params)
		},
	}
	cmd.Flags().Float64Var(&flagDuration, "duration", 0, "clip length in seconds")
	cmd.Flags().Float64Var(&flagCFG, "cfg", 0, "cfg scale")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "explicit seed; random when omitted")
	cmd.Flags().StringVarP(&flagInput, "input", "i", "", "uploaded clip to extend")
	return cmd
}

func speakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speak <workflow> <text>",
		Short: "Run a text-to-speech workflow on the graph engine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := &workflow.AudioParameters{Workflow: args[0], Prompt: args[1], Voice: flagVoice}
			if cmd.Flags().Changed("seed") {
				params.Seed = &flagSeed
			}
			return runAudio(cmd.Context(), params)
		},
	}
	cmd.Flags().StringVar(&flagVoice, "voice", "", "voice name")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "explicit seed; random when omitted")
	return cmd
}

func apiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <prompt>",
		Short: "Generate images on the REST engine instead of the graph engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			params := &workflow.Parameters{Prompt: args[0], Dimensions: flagDimensions}
			if cmd.Flags().Changed("steps") {
				params.Steps = &flagSteps
			}
			if cmd.Flags().Changed("cfg") {
				params.CFGScale = &flagCFG
			}
			if cmd.Flags().Changed("batch") {
				params.BatchSize = &flagBatch
			}

			sc := stability.New(cfg.Stability.Host, cfg.Stability.Engine, cfg.Stability.ApiKey,
				stability.WithLogger(log.Logger))
			outputs, err := sc.TextToImage(cmd.Context(), params)
			if err != nil {
				return err
			}
			return saveOutputs(outputs)
		},
	}
	cmd.Flags().StringVarP(&flagDimensions, "dimensions", "d", "", "output dimensions, e.g. 1024x1024")
	cmd.Flags().IntVar(&flagSteps, "steps", 0, "sampling steps")
	cmd.Flags().Float64Var(&flagCFG, "cfg", 0, "cfg scale")
	cmd.Flags().IntVar(&flagBatch, "batch", 0, "sample count")
	return cmd
}

func upscaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upscale <image>",
		Short: "Upscale an image on the REST engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sc := stability.New(cfg.Stability.Host, cfg.Stability.Engine, cfg.Stability.ApiKey,
				stability.WithLogger(log.Logger))
			out, err := sc.Upscale(cmd.Context(), image, flagWidth)
			if err != nil {
				return err
			}
			return saveOutputs([]client.Output{out})
		},
	}
	cmd.Flags().IntVar(&flagWidth, "width", 2048, "target width")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List checkpoints, loras and samplers installed on the graph engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c := newEngineClient(cfg)
			lists := []struct {
				label string
				fetch func(context.Context) ([]string, error)
			}{
				{"checkpoints", c.ModelNames},
				{"loras", c.LoRANames},
				{"samplers", c.SamplerNames},
			}
			for _, l := range lists {
				names, err := l.fetch(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("%s:\n", l.label)
				for _, name := range names {
					fmt.Printf("  %s\n", name)
				}
			}
			return nil
		},
	}
}

func runAudio(ctx context.Context, params *workflow.AudioParameters) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	params.EnsureSeed()

	template, mapping, err := cfg.Workflow(params.Workflow)
	if err != nil {
		return err
	}
	bound, err := workflow.BindAudio(template, mapping, params)
	if err != nil {
		return err
	}
	return runAndSave(ctx, newEngineClient(cfg), bound)
}

func newEngineClient(cfg *config.Config) *client.Client {
	var bar *progressbar.ProgressBar
	return client.New(cfg.Comfy.Address,
		client.WithLogger(log.Logger),
		client.WithCallbacks(client.Callbacks{
			QueueCountChanged: func(remaining int) {
				log.Info().Int("queue_remaining", remaining).Msg("waiting in queue")
			},
			Started: func(promptID string) {
				log.Info().Str("prompt_id", promptID).Msg("job started")
			},
			Progress: func(value, max int) {
				if bar == nil || bar.GetMax() != max {
					bar = progressbar.Default(int64(max), "sampling")
				}
				_ = bar.Set(value)
			},
		}))
}

func runAndSave(ctx context.Context, c *client.Client, bound workflow.Graph) error {
	result, err := c.Run(ctx, bound)
	if err != nil {
		return err
	}
	if result.EnhancedPrompt != "" {
		log.Info().Str("prompt", result.EnhancedPrompt).Msg("engine enhanced the prompt")
	}
	return saveOutputs(result.Outputs)
}

func saveOutputs(outputs []client.Output) error {
	for _, out := range outputs {
		path := filepath.Join(outputDir, filepath.Base(out.Filename))
		if err := os.WriteFile(path, out.Data, 0o644); err != nil {
			return err
		}
		log.Info().Str("path", path).Stringer("kind", out.Kind).Msg("saved output")
	}
	return nil
}
