package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/romtool/collator/pkg/cache"
	"github.com/romtool/collator/pkg/cache/blobmirror"
	"github.com/romtool/collator/pkg/catalog"
	"github.com/romtool/collator/pkg/config"
	"github.com/romtool/collator/pkg/enrichment"
	"github.com/romtool/collator/pkg/enrichment/credentials"
	"github.com/romtool/collator/pkg/enrichment/sourceh"
	"github.com/romtool/collator/pkg/enrichment/sourcei"
	"github.com/romtool/collator/pkg/executor"
	"github.com/romtool/collator/pkg/lock"
	lockredis "github.com/romtool/collator/pkg/lock/redis"
	"github.com/romtool/collator/pkg/match"
	"github.com/romtool/collator/pkg/plan"
	"github.com/romtool/collator/pkg/progress"
	"github.com/romtool/collator/pkg/prometheus"
	"github.com/romtool/collator/pkg/romset"
	"github.com/romtool/collator/pkg/scanner"
	"github.com/romtool/collator/pkg/selector"
	"github.com/romtool/collator/pkg/token"
)

// Run drives one or, under --watch, repeated cycles of the scan → match →
// select → plan → execute pipeline.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Watch == "" {
		return runOnce(ctx, cfg)
	}

	schedule, err := cron.ParseStandard(cfg.Watch)
	if err != nil {
		return fmt.Errorf("parsing --watch schedule %q: %w", cfg.Watch, err)
	}

	c := cron.New()
	c.Schedule(schedule, cron.FuncJob(func() {
		if err := runOnce(ctx, cfg); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("watched run failed")
		}
	}))
	c.Start()
	defer c.Stop()

	zerolog.Ctx(ctx).Info().Str("schedule", cfg.Watch).Msg("watching")

	<-ctx.Done()

	return nil
}

// runOnce executes exactly one scan/match/select/plan/execute cycle.
func runOnce(ctx context.Context, cfg *config.Config) error {
	runID := uuid.New().String()
	logger := zerolog.Ctx(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)
	log := &logger

	scratchDir, err := os.MkdirTemp("", "collator-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	bus, stopBus, err := startProgressBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopBus()

	c := cache.OpenOrDegrade(ctx, cfg.CacheDB, cache.Options{
		NegativeCache: true,
		Mirror:        parseBlobMirror(cfg.CacheBlobStore),
		Locker:        buildCacheLocker(ctx),
	})
	defer c.Close()

	enricher := buildEnricher(cfg)

	idx, warns, err := loadCatalogs(ctx, cfg.Catalogs)
	if err != nil {
		return fmt.Errorf("loading catalogs: %w", err)
	}

	for _, w := range warns {
		log.Warn().Err(w).Msg("catalog warning")
	}

	records, err := scanInputs(ctx, cfg)
	if err != nil {
		return fmt.Errorf("scanning inputs: %w", err)
	}

	concurrency := cfg.HashThreads
	if cfg.ScanThreads > concurrency {
		concurrency = cfg.ScanThreads
	}

	result := match.Parallel(ctx, idx, records, concurrency)

	cacheChecksums(ctx, c, result)

	enrichUnmatched(ctx, c, enricher, result.Unmatched, idx)

	candidates := make([]romset.Candidate, 0, len(result.Matched))
	for _, m := range result.Matched {
		candidates = append(candidates, romset.Candidate{
			Entry:          m.Entry,
			Record:         m.Record,
			Transformation: romset.AsIs,
		})
	}

	candidates = selector.Apply(cfg.Filters, candidates)
	candidates = selector.Select(cfg.Preferences, candidates)

	p, claimed := buildPlan(cfg, candidates)

	if cfg.Commands[romset.ActionCleanDelete] {
		cleanPlan, err := buildCleanPlan(cfg, claimed)
		if err != nil {
			log.Warn().Err(err).Msg("clean: could not enumerate output tree")
		} else {
			p = plan.Merge(p, cleanPlan)
		}
	}

	if cfg.PrintPlan {
		printPlan(p)
	}

	if cfg.Diag != "" {
		if err := writeDiag(p, cfg.Diag); err != nil {
			log.Warn().Err(err).Msg("writing diagnostics artifact")
		}
	}

	ex := executor.New(bus, scratchDir, concurrency)

	execResult := ex.Run(ctx, p)

	log.Info().
		Int("succeeded", execResult.Succeeded).
		Int("failed", execResult.Failed).
		Int("skipped", execResult.Skipped).
		Msg("run complete")

	for _, e := range execResult.Errors {
		log.Error().Err(e).Msg("action failed")
	}

	if execResult.Failed > 0 {
		return fmt.Errorf("executor: %d action(s) failed", execResult.Failed)
	}

	return nil
}

func loadCatalogs(ctx context.Context, globs []string) (*catalog.Index, []error, error) {
	paths, err := expandGlobs(globs)
	if err != nil {
		return nil, nil, err
	}

	return catalog.Load(ctx, paths)
}

func scanInputs(ctx context.Context, cfg *config.Config) ([]romset.RawRecord, error) {
	roots, err := expandGlobs(cfg.Inputs)
	if err != nil {
		return nil, err
	}

	return scanner.Scan(ctx, roots, scanner.Options{
		ScanThreads: cfg.ScanThreads,
		HashThreads: cfg.HashThreads,
	})
}

// expandGlobs resolves each pattern independently; a pattern with no
// glob metacharacters that also names a real path passes through as-is.
func expandGlobs(patterns []string) ([]string, error) {
	var out []string

	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pat, err)
		}

		if len(matches) == 0 {
			out = append(out, pat)

			continue
		}

		out = append(out, matches...)
	}

	return out, nil
}

func cacheChecksums(ctx context.Context, c *cache.Cache, result match.Result) {
	store := func(r romset.RawRecord) {
		if r.Digest.Empty() {
			return
		}

		_ = c.PutChecksums(ctx, cache.DigestRow{
			Source: "scan",
			Size:   r.Size,
			Digest: r.Digest,
		})
	}

	for _, m := range result.Matched {
		store(m.Record)
	}

	for _, r := range result.Unmatched {
		store(r)
	}
}

func buildEnricher(cfg *config.Config) *enrichment.Enricher {
	if cfg.IMode == enrichment.ModeOff {
		return nil
	}

	var h enrichment.SourceH

	var i enrichment.SourceI

	if cfg.EnableH {
		if baseURL := os.Getenv("COLLATOR_SOURCE_H_URL"); baseURL != "" {
			h = sourceh.New(baseURL, authenticatedClient(cfg.IClientID, cfg.IToken, "source-h"))
		}
	}

	if baseURL := os.Getenv("COLLATOR_SOURCE_I_URL"); baseURL != "" {
		i = sourcei.New(baseURL, authenticatedClient(cfg.IClientID, cfg.IToken, "source-i"))
	}

	if h == nil && i == nil {
		return nil
	}

	return enrichment.New(h, i, cfg.CacheOnly, cfg.IMode)
}

// authenticatedClient wraps http.DefaultClient so every request carries
// the bearer token, falling back to the per-user netrc-shaped
// credentials file when --I-client-id/--I-token were not given.
func authenticatedClient(clientID, apiToken, machine string) *http.Client {
	if clientID == "" || apiToken == "" {
		if path := credentialsPath(); path != "" {
			if creds, ok, err := credentials.Load(path, machine); err == nil && ok {
				clientID, apiToken = creds.ClientID, creds.Token
			}
		}
	}

	return &http.Client{Transport: &bearerRoundTripper{
		clientID: clientID,
		token:    apiToken,
		next:     otelhttp.NewTransport(http.DefaultTransport),
	}}
}

func credentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "collator", "credentials")
}

type bearerRoundTripper struct {
	clientID string
	token    string
	next     http.RoundTripper
}

func (t *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)

		if t.clientID != "" {
			req.Header.Set("X-Client-ID", t.clientID)
		}
	}

	return t.next.RoundTrip(req)
}

func enrichUnmatched(
	ctx context.Context,
	c *cache.Cache,
	enricher *enrichment.Enricher,
	records []romset.RawRecord,
	idx *catalog.Index,
) {
	if enricher == nil {
		return
	}

	log := zerolog.Ctx(ctx)

	for _, r := range records {
		platformHint := platformHintFor(idx)

		if !r.Digest.Empty() && c != nil {
			if payload, ok, err := c.GetEnrichment(ctx, r.Digest.SHA256, "enrichment"); err == nil && ok {
				var md enrichment.Metadata
				if json.Unmarshal(payload, &md) == nil {
					continue
				}
			}
		}

		md, err := enricher.Lookup(ctx, r, platformHint)
		if err != nil {
			log.Warn().Err(err).Str("record", r.DisplayName()).Msg("enrichment miss")

			continue
		}

		if !r.Digest.Empty() && c != nil {
			if payload, err := json.Marshal(md); err == nil {
				_ = c.PutEnrichment(ctx, r.Digest.SHA256, "enrichment", payload)
			}
		}
	}
}

// platformHintFor derives a coarse platform hint from the first loaded
// catalog entry's category; good enough for Source I's query ladder,
// which tolerates an empty hint.
func platformHintFor(idx *catalog.Index) string {
	entries := idx.Entries()
	if len(entries) == 0 {
		return ""
	}

	return entries[0].Category
}

// writeCommandKinds are the commands that produce write-style plan.Items
// (as opposed to trailing document/playlist/clean actions).
var writeCommandKinds = []romset.Kind{
	romset.ActionCopy, romset.ActionMove, romset.ActionLink, romset.ActionExtract,
}

func buildPlan(cfg *config.Config, candidates []romset.Candidate) (*plan.Plan, map[string]bool) {
	var plans []*plan.Plan

	claimed := make(map[string]bool)

	for _, kind := range writeCommandKinds {
		if !cfg.Commands[kind] {
			continue
		}

		items := resolveItems(cfg, candidates)
		plan.CanonicalOrder(items)

		sub := plan.BuildWrite(items, kind, cfg.LinkMode)
		plans = append(plans, sub)

		for _, it := range items {
			claimed[it.Destination] = true
		}
	}

	if cfg.Commands[romset.ActionZipInto] {
		items := resolveItems(cfg, candidates)
		plan.CanonicalOrder(items)

		sub := plan.BuildZip(items)
		plans = append(plans, sub)

		for _, it := range items {
			claimed[it.Destination] = true
		}
	}

	merged := plan.Merge(plans...)

	trailing := buildTrailingActions(cfg, candidates)
	plan.AppendTrailing(merged, trailing...)

	return merged, claimed
}

func resolveItems(cfg *config.Config, candidates []romset.Candidate) []plan.Item {
	var items []plan.Item

	for _, cand := range candidates {
		tctx := tokenContextFor(cand)

		// Unknown tokens resolve verbatim into the path itself; the
		// warnings are surfaced only via --print-plan diagnostics.
		paths, _ := token.Resolve(cfg.OutputTemplate, tctx)

		for _, dest := range paths {
			items = append(items, plan.Item{Candidate: cand, Destination: dest})
		}
	}

	return items
}

func tokenContextFor(cand romset.Candidate) token.Context {
	ext := strings.TrimPrefix(filepath.Ext(cand.Record.DisplayName()), ".")

	return token.Context{
		DatName:        cand.Entry.CatalogName,
		DatDescription: cand.Entry.Description,
		EntryName:      cand.Entry.Name,
		Regions:        cand.Entry.Regions,
		Languages:      cand.Entry.Languages,
		Types:          cand.Entry.Types,
		Category:       cand.Entry.Category,
		InputPath:      cand.Record.SourcePath,
		OutputBase:     cand.Entry.NormalizedName(),
		OutputExt:      ext,
	}
}

func buildTrailingActions(cfg *config.Config, candidates []romset.Candidate) []romset.Action {
	var actions []romset.Action

	if cfg.Commands[romset.ActionTestOnly] {
		for _, cand := range candidates {
			actions = append(actions, romset.Action{
				Kind:        romset.ActionTestOnly,
				Source:      cand.Record,
				Destination: cand.Record.DisplayName(),
			})
		}
	}

	if cfg.Commands[romset.ActionEmitReport] {
		actions = append(actions, romset.Action{
			Kind:        romset.ActionEmitReport,
			Destination: reportPath(cfg, "report.json"),
			Format:      "json",
		})
	}

	if cfg.Dir2Dat {
		actions = append(actions, romset.Action{
			Kind:        romset.ActionEmitCatalog,
			Destination: reportPath(cfg, "dir2dat.json"),
			Format:      "json",
			CatalogKind: romset.CatalogDir2Dat,
		})
	}

	if cfg.Fixdat {
		actions = append(actions, romset.Action{
			Kind:        romset.ActionEmitCatalog,
			Destination: reportPath(cfg, "fixdat.json"),
			Format:      "json",
			CatalogKind: romset.CatalogFixdat,
		})
	}

	if cfg.Commands[romset.ActionEmitPlaylist] {
		entries := make([]string, 0, len(candidates))
		for _, cand := range candidates {
			entries = append(entries, cand.Record.DisplayName())
		}

		actions = append(actions, romset.Action{
			Kind:            romset.ActionEmitPlaylist,
			Destination:     reportPath(cfg, "playlist.m3u"),
			PlaylistEntries: entries,
		})
	}

	return actions
}

// reportPath places generated artifacts next to the output template's
// static root, or the current directory when the template is entirely
// token-driven.
func reportPath(cfg *config.Config, name string) string {
	root := outputRoot(cfg.OutputTemplate)
	if root == "" {
		return name
	}

	return filepath.Join(root, name)
}

// outputRoot returns the static directory prefix of template, up to the
// first path segment containing a `{token}`.
func outputRoot(template string) string {
	segments := strings.Split(filepath.ToSlash(template), "/")

	var kept []string

	for _, seg := range segments {
		if strings.Contains(seg, "{") {
			break
		}

		kept = append(kept, seg)
	}

	return filepath.Join(kept...)
}

// buildCleanPlan walks the output template's static root and emits a
// CleanDelete action for every regular file not claimed by this run's
// write plan. Protected paths are empty for now: no CLI flag names them
// yet, so everything under root outside the claimed set is a candidate.
func buildCleanPlan(cfg *config.Config, claimed map[string]bool) (*plan.Plan, error) {
	root := outputRoot(cfg.OutputTemplate)
	if root == "" {
		return &plan.Plan{}, nil
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return &plan.Plan{}, nil
	}

	actions, err := plan.Clean(root, claimed, nil)
	if err != nil {
		return nil, err
	}

	return &plan.Plan{Actions: actions}, nil
}

func printPlan(p *plan.Plan) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(p)
}

func writeDiag(p *plan.Plan, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(p)
}

func parseBlobMirror(raw string) *blobmirror.Config {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}

	return &blobmirror.Config{
		Bucket:          u.Host,
		Prefix:          strings.TrimPrefix(u.Path, "/"),
		Endpoint:        os.Getenv("COLLATOR_CACHE_BLOB_ENDPOINT"),
		Region:          os.Getenv("COLLATOR_CACHE_BLOB_REGION"),
		AccessKeyID:     os.Getenv("COLLATOR_CACHE_BLOB_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("COLLATOR_CACHE_BLOB_SECRET_ACCESS_KEY"),
		ForcePathStyle:  os.Getenv("COLLATOR_CACHE_BLOB_FORCE_PATH_STYLE") == "true",
	}
}

// buildCacheLocker returns a distributed Redis-backed write lock for the
// cache store when COLLATOR_CACHE_LOCK_REDIS_ADDRS names at least one
// address (comma-separated), so multiple collator processes can safely
// share one postgres/mysql cache database. Nil falls back to the store's
// own in-process locker, which is all a single-process SQLite cache needs.
func buildCacheLocker(ctx context.Context) lock.Locker {
	raw := os.Getenv("COLLATOR_CACHE_LOCK_REDIS_ADDRS")
	if raw == "" {
		return nil
	}

	l, err := lockredis.NewLocker(ctx, lockredis.Config{
		Addrs:    strings.Split(raw, ","),
		Username: os.Getenv("COLLATOR_CACHE_LOCK_REDIS_USERNAME"),
		Password: os.Getenv("COLLATOR_CACHE_LOCK_REDIS_PASSWORD"),
	}, lockredis.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Jitter:       true,
	}, true)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("cache write lock: redis unavailable, falling back to a local lock")

		return nil
	}

	return l
}

func startProgressBus(ctx context.Context, cfg *config.Config) (*progress.Bus, func(), error) {
	var sinks []progress.Sink

	if !cfg.Quiet {
		sinks = append(sinks, progress.LogSink{Logger: *zerolog.Ctx(ctx)})
	}

	bus := progress.New(256, sinks...)

	busCtx, cancel := context.WithCancel(ctx)

	go bus.Run(busCtx)

	var srv *http.Server

	var metricsShutdown func(context.Context) error

	if cfg.StatusAddr != "" {
		ring := progress.NewRingSink(256)
		bus.AddSink(ring)

		gatherer, shutdown, err := prometheus.SetupPrometheusMetrics(ctx, "collator", Version)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("prometheus metrics unavailable, falling back to the default registry")
		} else {
			metricsShutdown = shutdown
		}

		srv = &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           progress.NewServer(*zerolog.Ctx(ctx), ring, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("status server stopped")
			}
		}()
	}

	stop := func() {
		if srv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			_ = srv.Shutdown(shutdownCtx)

			if metricsShutdown != nil {
				_ = metricsShutdown(shutdownCtx)
			}
		}

		bus.Close()
		cancel()
	}

	return bus, stop, nil
}
