package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go-webring/internal/audit"
	"go-webring/internal/config"
	"go-webring/internal/fetch"
	"go-webring/internal/logx"
	"go-webring/internal/model"
	"go-webring/internal/pipeline"
	"go-webring/internal/render"
	"go-webring/internal/sources"
	"go-webring/internal/store"
)

// flags 为命令行覆盖项；只有显式给出的 flag 才会覆盖配置文件。
type flags struct {
	configPath string
	lists      []string
	verbose    bool
	dryRun     bool
	skipVerify bool
	shuffle    bool
	noSlug     bool
	audit      bool
	// forceAudit 由 audit 子命令设置，忽略 --audit 与配置文件
	forceAudit bool
	baseURL    string
	output     string
	templates  string
	assets     string
	skipMinify bool
	db         string
}

// defaultConfigFiles 为未指定 --config 时依次尝试的配置文件。
var defaultConfigFiles = []string{"settings.yaml", "settings.yml", "settings.toml"}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "webring",
		Short:         "Build a static webring from a list of member sites",
		Long:          "webring verifies a member list, optionally audits that every member links back to the ring, and generates the static redirect pages, index pages, OPML and JSON export.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "settings file (.yaml or .toml); defaults to ./settings.yaml if present")
	pf.StringSliceVarP(&f.lists, "list", "l", nil, "member list file or URL (repeatable; .json/.toml/.yaml/.csv)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&f.skipVerify, "skip-verification", false, "skip member list verification")
	pf.BoolVar(&f.audit, "audit", false, "fetch every member site and drop those without ring links")
	pf.StringVar(&f.baseURL, "base-url", "", "public base URL of the ring (required for --audit)")
	pf.StringVar(&f.db, "db", "", "sqlite path for audit history")
	pf.BoolVar(&f.dryRun, "dry-run", false, "build the ring without writing any output")
	pf.BoolVar(&f.shuffle, "shuffle", false, "shuffle member order")
	pf.BoolVar(&f.noSlug, "no-slug", false, "use numeric slugs 1..N")
	pf.StringVarP(&f.output, "output", "o", "", "output directory")
	pf.StringVar(&f.templates, "templates", "", "templates directory")
	pf.StringVar(&f.assets, "assets", "", "assets directory")
	pf.BoolVar(&f.skipMinify, "skip-minify", false, "write HTML without minification")

	root.AddCommand(newGenerateCmd(f), newAuditCmd(f), newHistoryCmd(f), newVersionCmd())
	return root
}

func newGenerateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Verify, audit and render the ring (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, f)
		},
	}
}

func newAuditCmd(f *flags) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check that every member links back to the ring and print a report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.forceAudit = true
			cfg, err := setup(cmd, f)
			if err != nil {
				return err
			}
			cl := newClient(cfg)
			sites, err := sources.Load(cmd.Context(), cl, cfg)
			if err != nil {
				return err
			}
			res := newAuditor(cfg, cl).Audit(cmd.Context(), sites)
			if err := printReport(cmd.OutOrStdout(), res.Outcomes); err != nil {
				return err
			}
			if n := len(res.Failed()); strict && n > 0 {
				return fmt.Errorf("%d of %d sites failed the audit", n, len(sites))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any site fails")
	return cmd
}

func newHistoryCmd(f *flags) *cobra.Command {
	var (
		limit     int
		reset     bool
		pruneDays int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded audit runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, f)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("no history database configured (set DATABASE.dsn or --db)")
			}
			st, err := store.OpenSQLite(cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer st.Close()
			if reset {
				if err := st.Reset(cmd.Context()); err != nil {
					return err
				}
				logx.Infof("已清空审计历史：%s", cfg.Database.DSN)
				fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
				return nil
			}
			if pruneDays > 0 {
				if err := st.CleanOldRuns(cmd.Context(), pruneDays); err != nil {
					return err
				}
				logx.Infof("已清理 %d 天前的审计记录", pruneDays)
			}
			return printHistory(cmd, st, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to list")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete all recorded runs and exit")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "delete runs older than N days before listing")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "webring version %s\n", version)
		},
	}
}

// setup 读取配置、应用 flag 覆盖并初始化日志。
func setup(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, f, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	logx.Init(logx.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Locale: cfg.LogLocale,
		Color:  cfg.LogColor,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, nil
}

// loadConfig 优先读取 --config；未指定时尝试默认文件，都不存在则使用默认配置。
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, p := range defaultConfigFiles {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.Default(), nil
}

func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		if fl == nil {
			fl = cmd.InheritedFlags().Lookup(name)
		}
		return fl != nil && fl.Changed
	}
	if changed("list") {
		cfg.ListPaths = f.lists
	}
	if changed("verbose") {
		if f.verbose {
			cfg.LogLevel = "debug"
		} else if cfg.LogLevel == "debug" {
			cfg.LogLevel = "info"
		}
	}
	if changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
	if changed("skip-verification") {
		cfg.SkipVerify = f.skipVerify
	}
	if changed("shuffle") {
		cfg.Shuffle = f.shuffle
	}
	if changed("no-slug") {
		cfg.NoSlug = f.noSlug
	}
	if changed("audit") {
		cfg.Audit = f.audit
	}
	if f.forceAudit {
		cfg.Audit = true
	}
	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if changed("output") {
		cfg.PathOutput = f.output
	}
	if changed("templates") {
		cfg.PathTemplates = f.templates
	}
	if changed("assets") {
		cfg.PathAssets = f.assets
	}
	if changed("skip-minify") {
		cfg.SkipMinify = f.skipMinify
	}
	if changed("db") {
		cfg.Database.DSN = f.db
	}
}

func newClient(cfg *config.Config) *fetch.Client {
	return fetch.New(fetch.Options{
		UserAgent: cfg.ClientUserAgent,
		Accept:    cfg.ClientHeader,
		Attempts:  cfg.AuditRetriesMax,
		Delay:     time.Duration(cfg.AuditRetriesDelay) * time.Millisecond,
	})
}

func newAuditor(cfg *config.Config, cl *fetch.Client) *audit.Auditor {
	return audit.New(cl, audit.Settings{
		BaseURL:       cfg.BaseURL,
		NextText:      cfg.NextURLText,
		PrevText:      cfg.PrevURLText,
		Concurrency:   cfg.AuditConcurrency,
		CheckFeeds:    cfg.AuditFeeds,
		DiscoverFeeds: cfg.DiscoverFeeds,
	})
}

func runGenerate(cmd *cobra.Command, f *flags) error {
	cfg, err := setup(cmd, f)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cl := newClient(cfg)

	sites, err := sources.Load(ctx, cl, cfg)
	if err != nil {
		return err
	}
	logx.Infof("已加载 %d 个成员站点", len(sites))

	var aud *audit.Auditor
	if cfg.Audit {
		aud = newAuditor(cfg, cl)
	}

	var rend pipeline.Renderer
	if !cfg.DryRun {
		r, err := render.New(cfg)
		if err != nil {
			return err
		}
		if cfg.AuditFeeds {
			r.WithFeedTitles(cl)
		}
		rend = r
	}

	var rec pipeline.Recorder
	if cfg.Database.DSN != "" && !cfg.DryRun {
		st, err := store.OpenSQLite(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer st.Close()
		rec = st
	}

	rg, err := pipeline.New(cfg, aud, rend, rec).Run(ctx, sites)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		for i, e := range rg.Entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tprev=%s\tnext=%s\n", e.Site.Slug, e.Site.URL, rg.PrevOf(i).Slug, rg.NextOf(i).Slug)
		}
		return nil
	}
	logx.Infof("环已生成：%d 个站点，%d 个未通过审计，输出目录 %s", rg.Len(), len(rg.Failed), cfg.PathOutput)
	return nil
}

func printReport(w io.Writer, outcomes []model.AuditOutcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tURL\tSTATUS\tREASON")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Site.Slug, o.Site.URL, o.Status, o.Reason)
	}
	return tw.Flush()
}

func printHistory(cmd *cobra.Command, st *store.SQLite, limit int) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tTOTAL\tIN RING")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", r.ID, r.StartedAt.Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.SitesTotal, len(r.RingSlugs))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	last, err := st.LastRun(ctx)
	if err != nil {
		return err
	}
	counts, err := st.FailureCounts(ctx)
	if err != nil {
		return err
	}
	var failed []model.AuditOutcome
	for _, o := range last.Outcomes {
		if !o.Passed() {
			failed = append(failed, o)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nfailures in run %d:\n", last.ID)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tURL\tSTATUS\tREASON\tTOTAL FAILURES")
	for _, o := range failed {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", o.Site.Slug, o.Site.URL, o.Status, o.Reason, counts[o.Site.URL])
	}
	return tw.Flush()
}
