package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skilletai/skillet/internal/engine"
	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/repository"
	"github.com/skilletai/skillet/internal/server"
	"github.com/skilletai/skillet/internal/store"
	"github.com/skilletai/skillet/internal/style"
	"github.com/skilletai/skillet/internal/tools"
	"github.com/skilletai/skillet/internal/tools/builtin"
)

var (
	servePort        int
	serveHost        string
	serveConcurrency int
	serveTimeout     time.Duration
	serveSkillDir    string
	serveRepoDir     string
	serveStoreDir    string
	serveMetrics     bool
	serveCORS        bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [skill files...]",
	Short: "Start the HTTP server",
	Long: `Start an HTTP server that stores and executes skills via REST API.

The server provides:
- Skill CRUD over a versioned repository
- Async execution with resume and cancel for awaiting runs
- WebSocket streaming of execution events
- Prometheus metrics endpoint

Examples:
  skillet serve greet.skill.md                  # Serve a single skill
  skillet serve --skill-dir ./skills            # Serve a skill directory
  skillet serve --port 8080 --host 0.0.0.0      # Custom host and port
  skillet serve --concurrency 10                # Allow 10 concurrent executions`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "server port")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVar(&serveConcurrency, "concurrency", 5, "maximum concurrent executions")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 30*time.Minute, "default execution timeout")
	serveCmd.Flags().StringVar(&serveSkillDir, "skill-dir", "", "directory of skill documents to load at startup")
	serveCmd.Flags().StringVar(&serveRepoDir, "repo-dir", "", "versioned skill repository directory (served live)")
	serveCmd.Flags().StringVar(&serveStoreDir, "store-dir", "", "directory for paused execution snapshots (default in-memory)")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "enable Prometheus metrics endpoint")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", true, "enable CORS headers")
}

func startServer(cmd *cobra.Command, skillFiles []string) {
	errOut := cmd.ErrOrStderr()

	config := &server.Config{
		Host:          serveHost,
		Port:          servePort,
		Concurrency:   serveConcurrency,
		Timeout:       serveTimeout,
		EnableMetrics: serveMetrics,
		EnableCORS:    serveCORS,
		SkillFiles:    skillFiles,
		SkillDir:      serveSkillDir,
	}

	repo, err := buildServeRepository()
	if err != nil {
		style.Error(errOut, fmt.Sprintf("Failed to open skill repository: %v", err))
		os.Exit(1)
	}

	engineOpts, err := buildServeEngineOptions()
	if err != nil {
		style.Error(errOut, fmt.Sprintf("Failed to initialize engine: %v", err))
		os.Exit(1)
	}

	srv, err := server.New(config, repo, engineOpts...)
	if err != nil {
		style.Error(errOut, fmt.Sprintf("Failed to create server: %v", err))
		os.Exit(1)
	}

	if err := srv.LoadSkills(); err != nil {
		style.Error(errOut, fmt.Sprintf("Failed to load skills: %v", err))
		os.Exit(1)
	}

	if !viper.GetBool("quiet") {
		out := cmd.OutOrStdout()
		style.Success(out, fmt.Sprintf("Skillet server starting at http://%s", srv.GetAddr()))
		fmt.Fprintf(out, "  Loaded skills: %d\n", srv.SkillCount())
		fmt.Fprintf(out, "  API: http://%s/api/v1/skills\n", srv.GetAddr())
		if serveMetrics {
			fmt.Fprintf(out, "  Metrics: http://%s/metrics\n", srv.GetAddr())
		}
	}

	if err := srv.StartWithGracefulShutdown(); err != nil {
		style.Error(errOut, fmt.Sprintf("Server error: %v", err))
		os.Exit(1)
	}
}

// buildServeRepository picks the repository backing the API. --repo-dir
// serves a versioned directory repository live, so edits and API writes
// land on disk; otherwise skills live in memory, seeded from the command
// line arguments and --skill-dir.
func buildServeRepository() (repository.SkillRepository, error) {
	if serveRepoDir != "" {
		return repository.NewDirRepository(serveRepoDir)
	}
	return repository.NewMemoryRepository(), nil
}

func buildServeEngineOptions() ([]engine.Option, error) {
	toolRegistry := tools.NewRegistry()
	if err := builtin.Register(toolRegistry); err != nil {
		return nil, fmt.Errorf("registering builtin tools: %w", err)
	}

	providers := provider.NewRegistry()
	provider.RegisterFromEnv(providers)

	opts := []engine.Option{
		engine.WithToolRegistry(toolRegistry),
		engine.WithProviderRegistry(providers),
	}

	if serveStoreDir != "" {
		fileStore, err := store.NewFileStore(serveStoreDir)
		if err != nil {
			return nil, fmt.Errorf("opening execution store: %w", err)
		}
		opts = append(opts, engine.WithStore(fileStore))
	}

	return opts, nil
}
