package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/gate"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/hours"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/llm"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/logging"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/timenorm"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/triage"
)

// NewRootCommand builds the CLI tree.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "mfa-triage",
		Short:         "Classify German patient mails into practice dispositions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("model", "", "model name (default qwen2.5:14b-instruct)")
	flags.String("ollama-url", "", "Ollama base URL (default http://localhost:11434)")
	flags.String("duckling-url", "", "time-parsing service URL (empty: local resolver only)")
	flags.Bool("json", false, "print the full result bundle as JSON")

	root.AddCommand(newClassifyCommand(v))
	root.AddCommand(newBatchCommand(v))
	root.AddCommand(newHoursCommand(v))
	root.AddCommand(newModelsCommand(v))
	return root
}

// initConfig layers defaults, the optional config file, environment (MFA_*)
// and flags, lowest to highest.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetDefault("model", "qwen2.5:14b-instruct")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("batch.concurrency", 3)

	v.SetEnvPrefix("MFA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for flag, key := range map[string]string{
		"model":        "model",
		"ollama-url":   "ollama.base_url",
		"duckling-url": "duckling.base_url",
		"log-level":    "log.level",
		"log-format":   "log.format",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	return nil
}

// pipeline bundles everything a command needs to classify.
type pipeline struct {
	classifier *triage.Classifier
	oracle     *hours.Oracle
	client     *llm.OllamaClient
	logger     *logging.Logger
}

func buildPipeline(ctx context.Context, v *viper.Viper) (*pipeline, error) {
	logger := logging.New(logging.Config{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
		Output: os.Stderr,
	})

	oracle := hours.NewOracle()
	if sub := v.Sub("hours"); sub != nil {
		if err := oracle.Load(sub); err != nil {
			return nil, fmt.Errorf("load business hours: %w", err)
		}
	}
	if addr := v.GetString("redis.addr"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: v.GetString("redis.password")})
		key := v.GetString("redis.hours_key")
		if key == "" {
			key = "mfa:hours"
		}
		if err := oracle.LoadFromRedis(ctx, client, key); err != nil {
			logger.Warn("business hours not loaded from redis, using current config", "error", err)
		}
	}

	var duckling *timenorm.DucklingClient
	if url := v.GetString("duckling.base_url"); url != "" {
		duckling = timenorm.NewDucklingClient(url, 0)
	}
	normalizer := timenorm.New(duckling, oracle, timenorm.Config{}, logger)

	policy := gate.DefaultPolicy()
	if v.IsSet("gate.auto_process_threshold") {
		policy.AutoProcessThreshold = v.GetFloat64("gate.auto_process_threshold")
	}
	if v.IsSet("gate.confirm_threshold") {
		policy.ConfirmThreshold = v.GetFloat64("gate.confirm_threshold")
	}
	if v.IsSet("gate.emergency_keywords") {
		policy.EmergencyKeywords = v.GetStringSlice("gate.emergency_keywords")
	}

	client := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL: v.GetString("ollama.base_url"),
		Model:   v.GetString("model"),
		Timeout: v.GetDuration("ollama.timeout"),
	}, logger)

	classifier := triage.New(client, normalizer, gate.New(policy), triage.Config{
		Model:            v.GetString("model"),
		ModelTimeout:     v.GetDuration("model_timeout"),
		BatchConcurrency: v.GetInt("batch.concurrency"),
	}, triage.NewMetrics(prometheus.DefaultRegisterer), logger)

	return &pipeline{classifier: classifier, oracle: oracle, client: client, logger: logger}, nil
}

func newClassifyCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify one mail from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(args)
			if err != nil {
				return err
			}

			p, err := buildPipeline(cmd.Context(), v)
			if err != nil {
				return err
			}

			result := p.classifier.Classify(cmd.Context(), body)
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			renderResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newBatchCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file>...",
		Short: "Classify several mails with bounded concurrency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messages := make([]string, len(args))
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				messages[i] = string(data)
			}

			p, err := buildPipeline(cmd.Context(), v)
			if err != nil {
				return err
			}

			start := time.Now()
			results := p.classifier.ClassifyBatch(cmd.Context(), messages)
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			for i, result := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", bold(args[i]))
				renderResult(cmd.OutOrStdout(), result)
				fmt.Fprintln(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d mails in %s\n", len(results), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newHoursCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "hours",
		Short: "Print the effective business-hours configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := buildPipeline(cmd.Context(), v)
			if err != nil {
				return err
			}
			out, err := p.oracle.ExportYAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newModelsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the Ollama backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := buildPipeline(cmd.Context(), v)
			if err != nil {
				return err
			}
			names, err := p.client.Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func readInput(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", args[0], err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
