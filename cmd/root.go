package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/hfmirror/internal/downloaders/gitsync"
	"github.com/tanq16/hfmirror/internal/output"
	"github.com/tanq16/hfmirror/internal/scheduler"
	"github.com/tanq16/hfmirror/internal/utils"
)

var HFMirrorVersion = "dev"

var (
	token     string
	endpoint  string
	origin    bool
	cacheDir  string
	workers   int
	retries   int
	timeout   time.Duration
	revision  string
	depth     int
	gitCLI    bool
	debug     bool
	fileLog   bool
	userAgent string
	proxyURL  string
	proxyUser string
	proxyPass string
	headers   []string
)

var rootCmd = &cobra.Command{
	Use:     "hfmirror MODEL_ID",
	Short:   "Resumable concurrent downloader for model weights from a HF mirror",
	Version: HFMirrorVersion,
	Args:    cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		entry := utils.RepoEntry{ID: args[0], Revision: revision}
		os.Exit(runModels([]utils.RepoEntry{entry}))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&token, "token", "T", "", "Access token (HF_TOKEN takes precedence)")
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "Hub endpoint (defaults to HF_ENDPOINT, then the mirror)")
	rootCmd.PersistentFlags().StringVarP(&cacheDir, "cache-dir", "d", "", "Download directory (defaults to the hub cache under hfd)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", utils.DefaultWorkers, "Number of files downloaded in parallel")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", utils.DefaultTimeout, "Idle timeout per request attempt (eg. 30s, 2m)")
	rootCmd.PersistentFlags().StringVarP(&revision, "revision", "r", utils.DefaultRevision, "Branch, tag or commit to download")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (defaults to HTTPS_PROXY/HTTP_PROXY)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Cookie: a=b'); can be specified multiple times")

	// flags without shorthand
	rootCmd.PersistentFlags().BoolVar(&origin, "origin", false, "Download from huggingface.co instead of the mirror")
	rootCmd.PersistentFlags().StringVar(&proxyUser, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPass, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", utils.DefaultRetries, "Retries per request on transient failures")
	rootCmd.PersistentFlags().IntVar(&depth, "depth", 0, "Clone depth (0 for full history)")
	rootCmd.PersistentFlags().BoolVar(&gitCLI, "git-cli", false, "Use the git and git-lfs binaries instead of the built-in client")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&fileLog, "log", false, "Write logs to "+utils.LogFile+" in the cache directory")

	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCheckCmd())
}

func resolvedCacheDir() (string, error) {
	if cacheDir != "" {
		return cacheDir, nil
	}
	return utils.DefaultCacheDir()
}

func setupLogging() error {
	if !fileLog {
		utils.InitLogger(debug, nil)
		return nil
	}
	dir, err := resolvedCacheDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating cache directory: %v", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, utils.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("error opening log file: %v", err)
	}
	utils.InitLogger(debug, f)
	return nil
}

func newSyncerFactory(repoToken, repoRevision string) scheduler.SyncerFactory {
	return func(stream func(string)) gitsync.Syncer {
		if gitCLI {
			return &gitsync.CLISyncer{Token: repoToken, Revision: repoRevision, Depth: depth, StreamFunc: stream}
		}
		return &gitsync.GoGitSyncer{Token: repoToken, Revision: repoRevision, Depth: depth, StreamFunc: stream}
	}
}

// runModels downloads each model in order and returns the process exit code.
// A fatal error stops the remaining models.
func runModels(entries []utils.RepoEntry) int {
	dir, err := resolvedCacheDir()
	if err != nil {
		output.PrintError(err.Error())
		return 1
	}
	if gitCLI {
		if err := gitsync.CheckTools("git", "git-lfs"); err != nil {
			output.PrintError(err.Error())
			return 1
		}
	}
	baseEndpoint := utils.ResolveEndpoint(endpoint, origin)
	output.PrintInfo(fmt.Sprintf("Using endpoint %s, saving to %s", baseEndpoint, dir))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outputMgr := output.NewManager()
	outputMgr.StartDisplay()
	failed := false
	var fatalErr error
	for _, entry := range entries {
		repoToken := utils.ResolveToken(entry.Token)
		if repoToken == "" {
			repoToken = utils.ResolveToken(token)
		}
		repoRevision := entry.Revision
		if repoRevision == "" {
			repoRevision = revision
		}
		clientConfig := utils.DefaultClientConfig()
		clientConfig.MaxRetries = retries
		clientConfig.Timeout = timeout
		clientConfig.AuthToken = repoToken
		clientConfig.UserAgent = userAgent
		clientConfig.ProxyURL = proxyURL
		clientConfig.ProxyUsername = proxyUser
		clientConfig.ProxyPassword = proxyPass
		clientConfig.Headers = utils.ParseHeaderArgs(headers)

		dctx, err := utils.NewDownloaderContext(utils.ContextOptions{
			Endpoint: baseEndpoint,
			CacheDir: dir,
			Workers:  workers,
			Client:   clientConfig,
			Output:   outputMgr,
		})
		if err != nil {
			fatalErr = err
			break
		}
		summary, err := scheduler.DownloadModel(ctx, dctx, newSyncerFactory(repoToken, repoRevision), scheduler.ModelSpec{ID: entry.ID, Revision: repoRevision})
		log.Info().Str("op", "cmd/root").Msgf("Model %s: %d done, %d skipped, %d failed", entry.ID,
			summary.Count(scheduler.StateDone), summary.Count(scheduler.StateSkipped), summary.Count(scheduler.StateFailed))
		modelFailed, fatal := classifyModel(summary, err)
		failed = failed || modelFailed
		if fatal {
			fatalErr = err
			break
		}
		if err != nil {
			log.Error().Str("op", "cmd/root").Err(err).Msgf("Model %s failed", entry.ID)
		}
	}
	outputMgr.StopDisplay()

	code := exitCode(failed, fatalErr)
	switch {
	case fatalErr != nil:
		output.PrintError(fatalErr.Error())
	case code != 0:
		output.PrintError("Encountered failed download(s)")
	}
	return code
}

// classifyModel reports whether a model had failures and whether its error
// must stop the remaining models (a FatalError or an interrupted run).
func classifyModel(summary scheduler.Summary, err error) (failed, fatal bool) {
	var fatalErr *utils.FatalError
	if errors.As(err, &fatalErr) || errors.Is(err, context.Canceled) {
		return true, true
	}
	return err != nil || summary.Count(scheduler.StateFailed) > 0, false
}

func exitCode(failed bool, fatalErr error) int {
	if fatalErr != nil || failed {
		return 1
	}
	return 0
}
