// Package config resolves a run's flags, environment variables and
// config-file values into a single typed Config, using a layered
// cli.ValueSourceChain — file source (toml/yaml/json) under an env var,
// the flag itself on top. Config is a static snapshot resolved once at
// startup: a batch run has no persistent cluster identity to read back.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/urfave/cli/v3"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/json"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli-altsrc/v3/yaml"

	"github.com/romtool/collator/pkg/enrichment"
	"github.com/romtool/collator/pkg/romset"
	"github.com/romtool/collator/pkg/selector"
)

// Error wraps a configuration validation failure: always fatal before
// scanning ever starts.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("config: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

var (
	errNoInputs          = errors.New("at least one input path or glob is required")
	errNoCatalogs        = errors.New("at least one catalog file or glob is required")
	errNoOutputTemplate  = errors.New("an output path template is required")
	errNoCommands        = errors.New("at least one command is required")
	errUnknownCommand    = errors.New("unknown command")
	errUnknownLinkMode   = errors.New("unknown link mode")
	errUnknownRevision   = errors.New("unknown revision preference")
	errUnknownEnrichMode = errors.New("unknown enrichment mode")
)

var commandKinds = map[string]romset.Kind{
	"copy":     romset.ActionCopy,
	"move":     romset.ActionMove,
	"link":     romset.ActionLink,
	"extract":  romset.ActionExtract,
	"zip":      romset.ActionZipInto,
	"playlist": romset.ActionEmitPlaylist,
	"test":     romset.ActionTestOnly,
	"clean":    romset.ActionCleanDelete,
	"report":   romset.ActionEmitReport,

	// dir2dat/fixdat share ActionEmitCatalog; CatalogKind distinguishes them.
	"dir2dat": romset.ActionEmitCatalog,
	"fixdat":  romset.ActionEmitCatalog,
}

// Config is the fully resolved, validated set of options for one run.
type Config struct {
	Inputs         []string
	Catalogs       []string
	OutputTemplate string
	Commands       map[romset.Kind]bool
	Dir2Dat        bool
	Fixdat         bool

	LinkMode romset.LinkMode

	Filters     selector.Filters
	Preferences romset.PreferenceVector

	ScanThreads int
	HashThreads int

	CacheDB        string
	CacheOnly      bool
	CacheBlobStore string

	EnableH  bool
	IClientID string
	IToken    string
	IMode     enrichment.Mode

	Verbosity int
	Quiet     bool

	PrintPlan bool
	Diag      string

	// Watch, when non-empty, is a five-field cron expression; cmd/collator
	// re-runs the plan/execute cycle on that schedule instead of once.
	Watch string

	// StatusAddr, when non-empty, serves /status and /metrics for the
	// progress bus. Empty keeps the run headless.
	StatusAddr string
}

// FromCommand resolves cmd's parsed flags into a validated Config.
func FromCommand(cmd *cli.Command) (*Config, error) {
	cfg := &Config{
		Inputs:         cmd.StringSlice("input"),
		Catalogs:       cmd.StringSlice("catalog"),
		OutputTemplate: cmd.String("output"),
		Commands:       make(map[romset.Kind]bool),

		ScanThreads: int(cmd.Int("scan-threads")),
		HashThreads: int(cmd.Int("hash-threads")),

		CacheDB:        cmd.String("cache-db"),
		CacheOnly:      cmd.Bool("cache-only"),
		CacheBlobStore: cmd.String("cache-blob-store"),

		EnableH:   cmd.Bool("enable-H"),
		IClientID: cmd.String("I-client-id"),
		IToken:    cmd.String("I-token"),

		Verbosity: int(cmd.Int("verbosity")),
		Quiet:     cmd.Bool("quiet"),

		PrintPlan: cmd.Bool("print-plan"),
		Diag:      cmd.String("diag"),
		Watch:     cmd.String("watch"),

		StatusAddr: cmd.String("status-addr"),
	}

	if err := cfg.parseCommands(cmd.StringSlice("command")); err != nil {
		return nil, &Error{Err: err}
	}

	if err := cfg.parseLinkMode(cmd.String("link-mode")); err != nil {
		return nil, &Error{Err: err}
	}

	if err := cfg.parseFilters(cmd); err != nil {
		return nil, &Error{Err: err}
	}

	if err := cfg.parsePreferences(cmd); err != nil {
		return nil, &Error{Err: err}
	}

	if err := cfg.parseEnrichMode(cmd.String("I-mode")); err != nil {
		return nil, &Error{Err: err}
	}

	if err := cfg.validate(); err != nil {
		return nil, &Error{Err: err}
	}

	return cfg, nil
}

func (c *Config) parseCommands(names []string) error {
	for _, name := range names {
		kind, ok := commandKinds[name]
		if !ok {
			return fmt.Errorf("%w: %q", errUnknownCommand, name)
		}

		c.Commands[kind] = true

		switch name {
		case "dir2dat":
			c.Dir2Dat = true
		case "fixdat":
			c.Fixdat = true
		}
	}

	return nil
}

func (c *Config) parseLinkMode(mode string) error {
	switch strings.ToLower(mode) {
	case "", "hard":
		c.LinkMode = romset.LinkHard
	case "symbolic", "symlink":
		c.LinkMode = romset.LinkSymbolic
	case "reflink":
		c.LinkMode = romset.LinkReflink
	default:
		return fmt.Errorf("%w: %q", errUnknownLinkMode, mode)
	}

	return nil
}

func (c *Config) parseFilters(cmd *cli.Command) error {
	f := selector.Filters{
		BIOSOnly:     cmd.Bool("bios-only"),
		DeviceOnly:   cmd.Bool("device-only"),
		UnlicensedOn: cmd.Bool("unlicensed"),
		BadDumpOn:    cmd.Bool("bad-dump"),
	}

	if pat := cmd.String("include"); pat != "" {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("invalid --include pattern %q: %w", pat, err)
		}

		f.Include = re
	}

	if pat := cmd.String("exclude"); pat != "" {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("invalid --exclude pattern %q: %w", pat, err)
		}

		f.Exclude = re
	}

	c.Filters = f

	return nil
}

func (c *Config) parsePreferences(cmd *cli.Command) error {
	v := romset.PreferenceVector{
		Regions:        cmd.StringSlice("region"),
		Languages:      cmd.StringSlice("language"),
		OnlyRetail:     cmd.Bool("prefer-retail"),
		PreferVerified: cmd.Bool("prefer-verified"),
		Single:         cmd.Bool("single"),
	}

	switch strings.ToLower(cmd.String("prefer-revision")) {
	case "", "newest":
		v.Revision = romset.PreferNewest
	case "oldest":
		v.Revision = romset.PreferOldest
	default:
		return fmt.Errorf("%w: %q", errUnknownRevision, cmd.String("prefer-revision"))
	}

	c.Preferences = v

	return nil
}

func (c *Config) parseEnrichMode(mode string) error {
	switch enrichment.Mode(mode) {
	case "":
		c.IMode = enrichment.ModeBestEffort
	case enrichment.ModeBestEffort, enrichment.ModeAlways, enrichment.ModeOff:
		c.IMode = enrichment.Mode(mode)
	default:
		return fmt.Errorf("%w: %q", errUnknownEnrichMode, mode)
	}

	return nil
}

func (c *Config) validate() error {
	if len(c.Inputs) == 0 {
		return errNoInputs
	}

	if len(c.Catalogs) == 0 {
		return errNoCatalogs
	}

	if c.OutputTemplate == "" {
		return errNoOutputTemplate
	}

	if len(c.Commands) == 0 {
		return errNoCommands
	}

	if c.ScanThreads < 1 {
		c.ScanThreads = 1
	}

	if c.HashThreads < 1 {
		c.HashThreads = 1
	}

	return nil
}

// flagSourcesFn builds the layered env-var-then-toml/yaml/json value
// source chain (the first source holding a value wins), parameterized by
// the resolved config file path.
type flagSourcesFn func(configFileKey, envVar string) cli.ValueSourceChain

// NewFlagSources returns a flagSourcesFn bound to configPath, the way
// cmd/cmd.go's New closes over its own *configPath string.
func NewFlagSources(configPath *string) flagSourcesFn {
	return func(configFileKey, envVar string) cli.ValueSourceChain {
		return cli.NewValueSourceChain(
			cli.EnvVar(envVar),
			toml.TOML(configFileKey, altsrc.NewStringPtrSourcer(configPath)),
			yaml.YAML(configFileKey, altsrc.NewStringPtrSourcer(configPath)),
			json.JSON(configFileKey, altsrc.NewStringPtrSourcer(configPath)),
		)
	}
}

// Flags returns the domain flag set, layered through flagSources the
// same way the command's own ambient flags are layered.
func Flags(flagSources flagSourcesFn) []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "input",
			Usage:   "Input path or glob; repeatable",
			Sources: flagSources("inputs", "COLLATOR_INPUTS"),
		},
		&cli.StringSliceFlag{
			Name:    "catalog",
			Usage:   "Catalog (DAT) file or glob; repeatable",
			Sources: flagSources("catalogs", "COLLATOR_CATALOGS"),
		},
		&cli.StringFlag{
			Name:    "output",
			Usage:   "Output path template over the {token} grammar",
			Sources: flagSources("output", "COLLATOR_OUTPUT"),
		},
		&cli.StringSliceFlag{
			Name: "command",
			Usage: "Commands to run: copy, move, link, extract, zip, playlist, " +
				"test, dir2dat, fixdat, clean, report; repeatable",
			Sources: flagSources("commands", "COLLATOR_COMMANDS"),
		},
		&cli.StringFlag{
			Name:    "link-mode",
			Usage:   "Link mode for the link command: hard, symbolic, reflink",
			Sources: flagSources("link-mode", "COLLATOR_LINK_MODE"),
			Value:   "hard",
		},
		&cli.StringFlag{
			Name:    "include",
			Usage:   "Regex of names to include",
			Sources: flagSources("filters.include", "COLLATOR_INCLUDE"),
		},
		&cli.StringFlag{
			Name:    "exclude",
			Usage:   "Regex of names to exclude",
			Sources: flagSources("filters.exclude", "COLLATOR_EXCLUDE"),
		},
		&cli.BoolFlag{
			Name:    "bios-only",
			Usage:   "Keep only BIOS-tagged entries",
			Sources: flagSources("filters.bios-only", "COLLATOR_BIOS_ONLY"),
		},
		&cli.BoolFlag{
			Name:    "device-only",
			Usage:   "Keep only device-tagged entries",
			Sources: flagSources("filters.device-only", "COLLATOR_DEVICE_ONLY"),
		},
		&cli.BoolFlag{
			Name:    "unlicensed",
			Usage:   "Include unlicensed entries",
			Sources: flagSources("filters.unlicensed", "COLLATOR_UNLICENSED"),
		},
		&cli.BoolFlag{
			Name:    "bad-dump",
			Usage:   "Include entries flagged as bad dumps",
			Sources: flagSources("filters.bad-dump", "COLLATOR_BAD_DUMP"),
		},
		&cli.StringSliceFlag{
			Name:    "region",
			Usage:   "Preferred regions in priority order; repeatable",
			Sources: flagSources("preferences.regions", "COLLATOR_REGIONS"),
		},
		&cli.StringSliceFlag{
			Name:    "language",
			Usage:   "Preferred languages in priority order; repeatable",
			Sources: flagSources("preferences.languages", "COLLATOR_LANGUAGES"),
		},
		&cli.BoolFlag{
			Name:    "prefer-retail",
			Usage:   "Prefer retail over other entry types",
			Sources: flagSources("preferences.prefer-retail", "COLLATOR_PREFER_RETAIL"),
		},
		&cli.BoolFlag{
			Name:    "prefer-verified",
			Usage:   "Prefer verified-dump entries",
			Sources: flagSources("preferences.prefer-verified", "COLLATOR_PREFER_VERIFIED"),
		},
		&cli.StringFlag{
			Name:    "prefer-revision",
			Usage:   "Revision preference among tied candidates: newest, oldest",
			Sources: flagSources("preferences.prefer-revision", "COLLATOR_PREFER_REVISION"),
			Value:   "newest",
		},
		&cli.BoolFlag{
			Name:    "single",
			Usage:   "Enable 1-game-1-ROM selection",
			Sources: flagSources("preferences.single", "COLLATOR_SINGLE"),
		},
		&cli.IntFlag{
			Name:    "scan-threads",
			Usage:   "Number of directory-scan workers",
			Sources: flagSources("threading.scan-threads", "COLLATOR_SCAN_THREADS"),
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "hash-threads",
			Usage:   "Number of hashing workers",
			Sources: flagSources("threading.hash-threads", "COLLATOR_HASH_THREADS"),
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "cache-db",
			Usage:   "Cache database URL (sqlite://, postgres://, mysql://)",
			Sources: flagSources("cache.db", "COLLATOR_CACHE_DB"),
		},
		&cli.BoolFlag{
			Name:    "cache-only",
			Usage:   "Forbid network enrichment calls",
			Sources: flagSources("cache.only", "COLLATOR_CACHE_ONLY"),
		},
		&cli.StringFlag{
			Name:    "cache-blob-store",
			Usage:   "Optional s3:// blob mirror prefix for enrichment payloads",
			Sources: flagSources("cache.blob-store", "COLLATOR_CACHE_BLOB_STORE"),
		},
		&cli.BoolFlag{
			Name:    "enable-H",
			Usage:   "Enable the checksum-lookup enrichment source",
			Sources: flagSources("enrichment.enable-h", "COLLATOR_ENABLE_H"),
		},
		&cli.StringFlag{
			Name:    "I-client-id",
			Usage:   "Client ID for the name-lookup enrichment source",
			Sources: flagSources("enrichment.i-client-id", "COLLATOR_I_CLIENT_ID"),
		},
		&cli.StringFlag{
			Name:    "I-token",
			Usage:   "Bearer token for the name-lookup enrichment source",
			Sources: flagSources("enrichment.i-token", "COLLATOR_I_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "I-mode",
			Usage:   "Enrichment eagerness: best-effort, always, off",
			Sources: flagSources("enrichment.i-mode", "COLLATOR_I_MODE"),
			Value:   "best-effort",
		},
		&cli.IntFlag{
			Name:    "verbosity",
			Usage:   "Verbosity level, 0-3",
			Sources: flagSources("verbosity", "COLLATOR_VERBOSITY"),
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Usage:   "Suppress progress output entirely",
			Sources: flagSources("quiet", "COLLATOR_QUIET"),
		},
		&cli.BoolFlag{
			Name:    "print-plan",
			Usage:   "Print the execution plan as JSON on stdout",
			Sources: flagSources("print-plan", "COLLATOR_PRINT_PLAN"),
		},
		&cli.StringFlag{
			Name:    "diag",
			Usage:   "Write a diagnostics artifact to this path",
			Sources: flagSources("diag", "COLLATOR_DIAG"),
		},
		&cli.StringFlag{
			Name:    "watch",
			Usage:   "Re-run the plan/execute cycle on this cron schedule instead of once",
			Sources: flagSources("watch", "COLLATOR_WATCH"),
		},
		&cli.StringFlag{
			Name:    "status-addr",
			Usage:   "Serve /status and /metrics on this address; empty keeps the run headless",
			Sources: flagSources("status-addr", "COLLATOR_STATUS_ADDR"),
		},
	}
}
