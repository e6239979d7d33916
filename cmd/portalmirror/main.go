package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	"github.com/PortalMirror/portalmirror/internal/progress"
	"github.com/PortalMirror/portalmirror/internal/shutdown"
	"github.com/PortalMirror/portalmirror/internal/state"
	"github.com/PortalMirror/portalmirror/internal/validate"
	"github.com/PortalMirror/portalmirror/pkg/mirror"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Mirror flags
	domain          string
	contentPath     string
	outputDir       string
	timeout         int
	retries         int
	rateLimit       float64
	respectRobots   bool
	excludePatterns []string
	reportFile      string
	stateFile       string
	validateAfter   bool
	showProgress    bool

	// Auth flags
	login    bool
	loginURL string
	username string
	password string
	cookies  []string
	headful  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portalmirror",
		Short: "portalmirror - offline mirror of portal documentation",
		Long: `portalmirror - crawls directories of a documentation portal and saves them
as a browsable offline tree.

Links and stylesheets, scripts and images are rewritten to relative paths so the
saved pages work from the local filesystem.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	mirrorCmd := &cobra.Command{
		Use:   "mirror [manifest]",
		Short: "Mirror every start URL listed in a manifest",
		Long:  "Mirror the directory of every start URL listed in a JSON or YAML manifest (default manual_urls.json).",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMirror,
	}

	validateCmd := &cobra.Command{
		Use:   "validate [root]",
		Short: "Check a mirror for broken local links",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last journaled run",
		RunE:  runStatus,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Mirror flags
	mirrorCmd.Flags().StringVar(&domain, "domain", "", "Portal origin, e.g. https://bid3.afry.com")
	mirrorCmd.Flags().StringVar(&contentPath, "content-path", "", "Content path every mirrored page lives under")
	mirrorCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default html)")
	mirrorCmd.Flags().IntVarP(&timeout, "timeout", "t", 15, "Request timeout in seconds")
	mirrorCmd.Flags().IntVar(&retries, "retries", 3, "Attempts per page or asset")
	mirrorCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 0, "Requests per second (0 = unlimited)")
	mirrorCmd.Flags().BoolVar(&respectRobots, "respect-robots", false, "Respect robots.txt")
	mirrorCmd.Flags().StringArrayVar(&excludePatterns, "exclude", nil, "URL patterns never to crawl (regex)")
	mirrorCmd.Flags().StringVar(&reportFile, "report", "", "Write a run report (.json or .yaml)")
	mirrorCmd.Flags().StringVar(&stateFile, "state-file", "", "Journal runs to this file")
	mirrorCmd.Flags().BoolVar(&validateAfter, "validate", false, "Check the mirror for broken links when done")
	mirrorCmd.Flags().BoolVar(&showProgress, "progress", true, "Show a progress spinner")

	// Auth flags
	mirrorCmd.Flags().BoolVar(&login, "login", false, "Log in through the portal login form first")
	mirrorCmd.Flags().StringVar(&loginURL, "login-url", "", "Login page (default <domain>/other/cloudlogin.html)")
	mirrorCmd.Flags().StringVarP(&username, "username", "u", "", "Portal username (or "+mirror.EnvUsername+")")
	mirrorCmd.Flags().StringVarP(&password, "password", "p", "", "Portal password (or "+mirror.EnvPassword+")")
	mirrorCmd.Flags().StringArrayVar(&cookies, "cookie", nil, "Session cookie name=value (repeatable)")
	mirrorCmd.Flags().BoolVar(&headful, "headful", false, "Show the login browser window")

	// Status flags
	statusCmd.Flags().StringVar(&stateFile, "state-file", "", "Journal file to read")
	statusCmd.MarkFlagRequired("state-file")

	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildConfig(cmd *cobra.Command) (*mirror.Config, error) {
	config := mirror.DefaultConfig()
	if configFile != "" {
		fileConfig, err := mirror.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	// Command-line flags take precedence over the config file
	flags := cmd.Flags()
	if flags.Changed("domain") {
		config.Portal.Domain = domain
	}
	if flags.Changed("content-path") {
		config.Portal.ContentPath = contentPath
	}
	if flags.Changed("output") {
		config.OutputDir = outputDir
	}
	if flags.Changed("timeout") {
		config.Timeout = time.Duration(timeout) * time.Second
	}
	if flags.Changed("retries") {
		config.Retry.MaxAttempts = retries
	}
	if flags.Changed("rate-limit") {
		config.RateLimit.RequestsPerSecond = rateLimit
	}
	if flags.Changed("respect-robots") {
		config.RateLimit.RespectRobotsTxt = respectRobots
	}
	if flags.Changed("report") {
		config.Report.FilePath = reportFile
	}
	if flags.Changed("state-file") {
		config.State.FilePath = stateFile
	}
	if flags.Changed("validate") {
		config.ValidateAfter = validateAfter
	}
	config.Portal.ExcludePatterns = append(config.Portal.ExcludePatterns, excludePatterns...)

	if len(cookies) > 0 {
		jar, err := parseCookies(cookies)
		if err != nil {
			return nil, err
		}
		config.Auth.Type = "session"
		config.Auth.Cookies = jar
	}
	if login {
		config.Auth.Type = "browser"
	}
	if loginURL != "" {
		config.Auth.LoginURL = loginURL
	}
	if username != "" {
		config.Auth.Username = username
	}
	if password != "" {
		config.Auth.Password = password
	}
	if headful {
		config.Browser.Headless = false
	}

	config.Verbose = config.Verbose || verbose
	config.Debug = config.Debug || debug
	config.Progress = showProgress && !config.Verbose && !config.Debug

	return config, nil
}

func parseCookies(pairs []string) (map[string]string, error) {
	jar := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid cookie %q, want name=value", pair)
		}
		jar[strings.TrimSpace(name)] = value
	}
	return jar, nil
}

func runMirror(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	opts := []mirror.Option{mirror.WithConfig(config)}
	if config.Progress {
		opts = append(opts, mirror.WithProgress(os.Stderr))
	}

	m, err := mirror.New(opts...)
	if err != nil {
		if crawlerrors.IsConfigError(err) {
			return fmt.Errorf("invalid configuration (see portalmirror mirror --help): %w", err)
		}
		return fmt.Errorf("failed to create mirror: %w", err)
	}

	// Setup signal handling
	sd := shutdown.New(context.Background(), shutdown.DefaultConfig())
	sd.RegisterCloser("mirror", m.Close)
	defer sd.Shutdown()

	manifestPath := ""
	if len(args) > 0 {
		manifestPath = args[0]
	}

	fmt.Println()
	fmt.Printf("portalmirror v%s - mirroring %s%s\n", version, config.Portal.Domain, config.Portal.ContentPath)
	fmt.Println()

	result, err := m.ScrapeFrom(sd.Context(), manifestPath)
	if sd.Interrupted() {
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, stopped")
	}
	if err != nil && !sd.Interrupted() {
		return fmt.Errorf("mirror failed: %w", err)
	}
	if result == nil {
		return err
	}

	if result.Record != nil {
		progress.PrintSummary(os.Stdout, *result.Record)
	}
	for _, u := range result.OutOfScope {
		fmt.Printf("Skipped (outside content path): %s\n", u)
	}
	for _, b := range result.BrokenLinks {
		fmt.Println(b.String())
	}
	if result.ReportPath != "" {
		fmt.Printf("Report written to %s\n", result.ReportPath)
	}

	fmt.Printf("Saved %d pages under %s\n", result.TotalSaved, result.OutputDir)
	if sd.Interrupted() {
		return fmt.Errorf("interrupted after %d pages", result.TotalSaved)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	root := mirror.DefaultConfig().OutputDir
	if len(args) > 0 {
		root = args[0]
	} else if configFile != "" {
		config, err := mirror.LoadFromFile(configFile)
		if err != nil {
			return err
		}
		root = config.OutputDir
	}

	broken, err := validate.LocalSite(root)
	if err != nil {
		return err
	}

	for _, b := range broken {
		fmt.Println(b.String())
	}
	if len(broken) > 0 {
		return fmt.Errorf("%d broken links under %s", len(broken), root)
	}

	fmt.Printf("No broken links under %s\n", root)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(stateFile); err != nil {
		return fmt.Errorf("no journal at %s: %w", stateFile, err)
	}

	store, err := state.NewBoltStore(stateFile)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()

	run, err := store.LastRun()
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if run == nil {
		fmt.Printf("No runs recorded in %s\n", stateFile)
		return nil
	}

	runs, _ := store.Runs()
	fmt.Printf("Journal:     %s (%d runs)\n", stateFile, len(runs))
	fmt.Printf("Last run:    %s\n", run.ID)
	fmt.Printf("Started:     %s\n", run.StartedAt.Local().Format(time.RFC1123))
	progress.PrintSummary(os.Stdout, *run)

	if len(run.Failures) > 0 {
		fmt.Println("Failed pages:")
		for _, f := range run.Failures {
			fmt.Printf("  [%s] %s\n", f.Kind, f.URL)
		}
		fmt.Println()
	}
	return nil
}
