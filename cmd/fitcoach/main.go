package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/internal/version"
	"github.com/hrygo/fitcoach/server"
	"github.com/hrygo/fitcoach/store"
	"github.com/hrygo/fitcoach/store/db"
)

type flagSpec struct {
	name  string
	value any
	usage string
}

var flags = []flagSpec{
	{"mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`},
	{"addr", "", "address of server"},
	{"port", 8000, "port of server"},
	{"data", "", "data directory holding fitness.db and the conversation logs"},
	{"driver", "sqlite", "database driver (sqlite, postgres)"},
	{"dsn", "", "database source name(aka. DSN)"},
	{"request-timeout", profile.DefaultRequestTimeout, "request timeout in seconds"},
	{"agent-step-limit", profile.DefaultAgentStepLimit, "maximum steps of the query agent"},
	{"queue-size", profile.DefaultQueueSize, "capacity of the background persist queue"},
	{"queue-workers", profile.DefaultQueueWorkers, "number of persist workers"},
	{"task-timeout", profile.DefaultTaskTimeout, "timeout of one persist task in seconds"},
	{"max-concurrent-pipelines", profile.DefaultMaxConcurrentPipelines, "maximum pipelines running at once"},
	{"rate-limit-per-minute", profile.DefaultRateLimitPerMinute, "chat requests per user per minute, negative to disable"},
	{"tool-cache-ttl", profile.DefaultToolCacheTTL, "seconds the query agent reuses table lists and schemas"},
	{"reference-date", profile.DefaultReferenceDate, `the dataset's "today" (YYYY-MM-DD)`},
	{"prompt-dir", "", "directory with prompt overrides (coach.yaml)"},
}

var (
	rootCmd = &cobra.Command{
		Use:   "fitcoach",
		Short: "A fitness coaching chatbot that answers questions from your activity data.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// systemd services get their environment from the unit file.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := &profile.Profile{
				Mode:                   viper.GetString("mode"),
				Addr:                   viper.GetString("addr"),
				Port:                   viper.GetInt("port"),
				Data:                   viper.GetString("data"),
				Driver:                 viper.GetString("driver"),
				DSN:                    viper.GetString("dsn"),
				RequestTimeout:         viper.GetInt("request-timeout"),
				AgentStepLimit:         viper.GetInt("agent-step-limit"),
				QueueSize:              viper.GetInt("queue-size"),
				QueueWorkers:           viper.GetInt("queue-workers"),
				TaskTimeout:            viper.GetInt("task-timeout"),
				MaxConcurrentPipelines: viper.GetInt("max-concurrent-pipelines"),
				RateLimitPerMinute:     viper.GetInt("rate-limit-per-minute"),
				ToolCacheTTL:           viper.GetInt("tool-cache-ttl"),
				ReferenceDate:          viper.GetString("reference-date"),
				PromptDir:              viper.GetString("prompt-dir"),
				Version:                version.String(),
			}
			instanceProfile.FromEnv()
			if err := instanceProfile.Validate(); err != nil {
				panic(err)
			}
			slog.SetDefault(newLogger(instanceProfile))

			ctx, cancel := context.WithCancel(context.Background())
			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				cancel()
				slog.Error("failed to create db driver", "error", err)
				return
			}

			storeInstance := store.New(dbDriver, instanceProfile)
			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				cancel()
				slog.Error("failed to create server", "error", err)
				return
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			signal.Notify(c, terminationSignals...)

			if err := s.Start(ctx); err != nil {
				slog.Error("failed to start server", "error", err)
				cancel()
				return
			}

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.StringFull())
		},
	}
)

func init() {
	for _, f := range flags {
		switch v := f.value.(type) {
		case string:
			rootCmd.PersistentFlags().String(f.name, v, f.usage)
		case int:
			rootCmd.PersistentFlags().Int(f.name, v, f.usage)
		}
		viper.SetDefault(f.name, f.value)
		if err := viper.BindPFlag(f.name, rootCmd.PersistentFlags().Lookup(f.name)); err != nil {
			panic(err)
		}
	}

	// FITCOACH_REQUEST_TIMEOUT, FITCOACH_DSN, ...
	viper.SetEnvPrefix("fitcoach")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
}

// newLogger logs JSON at info level in prod and text at debug level otherwise.
func newLogger(p *profile.Profile) *slog.Logger {
	if p.Mode == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("FitCoach %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Reference date: %s\n", profile.ReferenceDate)
	if profile.IsAIEnabled() {
		fmt.Printf("LLM: %s (%s)\n", profile.LLMModel, profile.LLMProvider)
	} else {
		fmt.Println("LLM: not configured, /chat endpoints are disabled")
	}

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
