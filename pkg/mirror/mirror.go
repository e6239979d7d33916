package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/PortalMirror/portalmirror/internal/auth"
	"github.com/PortalMirror/portalmirror/internal/browser"
	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	portalhttp "github.com/PortalMirror/portalmirror/internal/http"
	"github.com/PortalMirror/portalmirror/internal/localpath"
	"github.com/PortalMirror/portalmirror/internal/logger"
	"github.com/PortalMirror/portalmirror/internal/manifest"
	"github.com/PortalMirror/portalmirror/internal/metrics"
	"github.com/PortalMirror/portalmirror/internal/output"
	"github.com/PortalMirror/portalmirror/internal/progress"
	"github.com/PortalMirror/portalmirror/internal/ratelimit"
	"github.com/PortalMirror/portalmirror/internal/rewrite"
	"github.com/PortalMirror/portalmirror/internal/scope"
	"github.com/PortalMirror/portalmirror/internal/state"
	"github.com/PortalMirror/portalmirror/internal/validate"
)

// Mirror is the crawl session: one scope policy, one HTTP session, one asset
// store and one saved set shared by every crawl it runs.
type Mirror struct {
	config   *Config
	policy   *scope.Policy
	mapper   *localpath.Mapper
	client   *portalhttp.Client
	rewriter *rewrite.Rewriter
	assets   *rewrite.AssetStore
	auth     auth.Provider
	store    state.Store
	state    *state.Manager
	limiter  *ratelimit.Limiter
	robots   *ratelimit.RobotsManager
	logger   *logger.Logger
	metrics  *metrics.Collector

	progress    *progress.Display
	progressOut io.Writer

	ownsClient bool
	ownsStore  bool
	running    atomic.Bool
}

// New creates a mirror with the given options.
func New(opts ...Option) (*Mirror, error) {
	m := &Mirror{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	m.config.ApplyEnv()
	if err := m.config.Validate(); err != nil {
		return nil, err
	}

	if m.logger == nil {
		logLevel := logger.WarnLevel
		if m.config.Debug {
			logLevel = logger.DebugLevel
		} else if m.config.Verbose {
			logLevel = logger.InfoLevel
		}
		m.logger = logger.New(logger.Config{
			Level:     logLevel,
			Pretty:    true,
			Component: "mirror",
		})
	}

	if err := m.initialize(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) initialize() error {
	var err error

	m.policy, err = scope.NewPolicy(m.config.Portal.Domain, m.config.Portal.ContentPath, scope.Rules{
		ExcludePatterns: m.config.Portal.ExcludePatterns,
	})
	if err != nil {
		return crawlerrors.NewConfigError("portal", err.Error(), err)
	}

	m.mapper = localpath.New(m.config.OutputDir, m.policy)
	m.metrics = metrics.New()

	if m.client == nil {
		m.client = portalhttp.NewClient(portalhttp.Config{
			Timeout:   m.config.Timeout,
			UserAgent: m.config.UserAgent,
			Headers:   m.config.CustomHeaders,
			Retry: crawlerrors.RetryConfig{
				MaxAttempts: m.config.Retry.MaxAttempts,
				BackoffStep: m.config.Retry.BackoffStep,
			},
			SkipTLSVerify: m.config.SkipTLSVerify,
		})
		m.ownsClient = true
	}
	m.client.SetMetrics(m.metrics)
	m.client.SetLogger(m.logger.WithComponent("http"))

	m.limiter = ratelimit.NewLimiter(m.config.RateLimit.RequestsPerSecond, m.config.RateLimit.Burst)
	m.client.SetLimiter(m.limiter)

	if m.config.RateLimit.RespectRobotsTxt {
		m.robots = ratelimit.NewRobotsManager(m.client.HTTPClient(), m.client.UserAgent())
		m.client.SetRobots(m.robots)
	}

	m.assets = rewrite.NewAssetStore()
	m.rewriter = rewrite.New(rewrite.Config{
		Policy:     m.policy,
		Mapper:     m.mapper,
		Downloader: m.client,
		Assets:     m.assets,
		Metrics:    m.metrics,
		Logger:     m.logger.WithComponent("rewriter"),
	})

	if m.auth == nil {
		m.auth, err = auth.NewProvider(m.credentials(), auth.BrowserLauncher(m.browserConfig()))
		if err != nil {
			return err
		}
	}

	if m.store == nil && m.config.State.FilePath != "" {
		m.store, err = state.NewBoltStore(m.config.State.FilePath)
		if err != nil {
			return crawlerrors.NewIOError(m.config.State.FilePath, "open_journal", err)
		}
		m.ownsStore = true
	}
	m.state = state.NewManager(m.store, 10000)

	return nil
}

func (m *Mirror) credentials() auth.Credentials {
	names := make([]string, 0, len(m.config.Auth.Cookies))
	for name := range m.config.Auth.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: m.config.Auth.Cookies[name], Path: "/"})
	}

	return auth.Credentials{
		Type:          auth.AuthType(m.config.Auth.Type),
		PortalURL:     m.policy.Domain(),
		LoginURL:      m.config.Auth.LoginURL,
		Username:      m.config.Auth.Username,
		Password:      m.config.Auth.Password,
		UsernameField: m.config.Auth.UsernameField,
		PasswordField: m.config.Auth.PasswordField,
		SubmitButton:  m.config.Auth.SubmitButton,
		Headers:       m.config.Auth.Headers,
		Cookies:       cookies,
	}
}

func (m *Mirror) browserConfig() browser.Config {
	cfg := m.config.Browser
	if cfg.UserAgent == "" {
		cfg.UserAgent = m.config.UserAgent
	}
	if m.config.SkipTLSVerify {
		cfg.IgnoreHTTPSErrors = true
	}
	return cfg
}

// ScrapeFrom mirrors every in-scope start URL listed in the manifest at
// manifestPath (the configured manifest when empty). A missing or malformed
// manifest fails before any network I/O. Per-page failures never abort the
// run; they are reported in the result.
func (m *Mirror) ScrapeFrom(ctx context.Context, manifestPath string) (*RunResult, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("mirror is already running")
	}
	defer m.running.Store(false)

	if manifestPath == "" {
		manifestPath = m.config.Manifest
	}

	startURLs, err := manifest.LoadStartURLs(manifestPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RunResult{OutputDir: m.config.OutputDir}

	for _, u := range startURLs {
		if m.policy.Allowed(u) {
			result.StartURLs = append(result.StartURLs, u)
			continue
		}
		m.logger.WithURL(u).Warn("Skipping start URL outside the content path")
		result.OutOfScope = append(result.OutOfScope, u)
	}

	m.state.Start(m.policy.ContentPrefix(), m.config.OutputDir, result.StartURLs)

	if err := m.auth.Authenticate(ctx, m.client); err != nil {
		return nil, err
	}
	if m.auth.Type() != auth.AuthTypeNone {
		m.logger.Infof("Authenticated via %s", m.auth.Type())
	}

	if m.config.Progress {
		m.progress = progress.New(m.progressOut)
		m.progress.Start(m.policy.ContentPrefix())
		defer m.progress.Stop()
	}

	var runErr error
	for _, u := range result.StartURLs {
		crawl, err := m.CrawlDirectory(ctx, u)
		if crawl != nil {
			result.Crawls = append(result.Crawls, crawl)
			result.TotalSaved += crawl.Saved
			m.state.RecordCrawl(state.CrawlRecord{StartURL: u, Saved: crawl.Saved, Failed: crawl.Failed})
		}
		if err != nil {
			runErr = err
			break
		}
	}

	saved, failed := m.assets.Len()
	m.state.RecordAssets(saved, failed)

	if m.config.ValidateAfter && runErr == nil {
		broken, err := validate.LocalSite(m.config.OutputDir)
		if err != nil {
			m.logger.ErrorEvent(err, m.config.OutputDir, "validate")
		}
		result.BrokenLinks = broken
		m.state.SetBrokenLinks(validate.Strings(broken))
		for _, b := range broken {
			m.logger.Warn(b.String())
		}
	}

	record, err := m.state.Finish()
	if err != nil {
		m.logger.ErrorEvent(err, m.config.State.FilePath, "journal")
	}
	result.Record = record
	result.UniquePages = record.Stats.UniquePages
	result.Metrics = m.metrics.Snapshot()
	result.Duration = time.Since(start)

	if m.config.Report.FilePath != "" {
		report := output.NewReport(*record, result.Metrics)
		err := output.WriteFile(report, output.Config{
			Format:   m.config.Report.Format,
			Pretty:   m.config.Report.Pretty,
			FilePath: m.config.Report.FilePath,
		})
		if err != nil {
			m.logger.ErrorEvent(err, m.config.Report.FilePath, "report")
		} else {
			result.ReportPath = m.config.Report.FilePath
		}
	}

	m.logger.StatsEvent(result.Metrics.Summary())

	return result, runErr
}

// Policy returns the scope policy.
func (m *Mirror) Policy() *scope.Policy {
	return m.policy
}

// Client returns the shared HTTP session.
func (m *Mirror) Client() *portalhttp.Client {
	return m.client
}

// Metrics returns the metrics collector.
func (m *Mirror) Metrics() *metrics.Collector {
	return m.metrics
}

// Assets returns the run-wide asset store.
func (m *Mirror) Assets() *rewrite.AssetStore {
	return m.assets
}

// Config returns a copy of the configuration.
func (m *Mirror) Config() *Config {
	return m.config.Clone()
}

// IsRunning reports whether ScrapeFrom is in progress.
func (m *Mirror) IsRunning() bool {
	return m.running.Load()
}

// Close releases the journal and the HTTP session if the mirror created them.
func (m *Mirror) Close() error {
	var err error
	if m.ownsStore && m.store != nil {
		err = m.store.Close()
	}
	if m.ownsClient && m.client != nil {
		m.client.Close()
	}
	return err
}
