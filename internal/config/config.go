// Package config loads the archiver's settings from flags, the environment
// and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/renderinc/fanbox-archive/internal/creator"
	"github.com/renderinc/fanbox-archive/internal/fanbox"
)

// ErrNoSession is returned when a command needs the API but no session cookie is set
var ErrNoSession = errors.New("no FANBOXSESSID session configured")

const sessionPrefix = "FANBOXSESSID="

// SaveType selects which creator listings are archived
type SaveType string

const (
	SaveFollowing  SaveType = "following"
	SaveSupporting SaveType = "supporting"
	SaveAll        SaveType = "all"
)

func ParseSaveType(s string) (SaveType, error) {
	switch t := SaveType(strings.ToLower(strings.TrimSpace(s))); t {
	case SaveFollowing, SaveSupporting, SaveAll:
		return t, nil
	default:
		return "", fmt.Errorf("invalid save type %q (want following, supporting or all)", s)
	}
}

func (t SaveType) Following() bool {
	return t == SaveFollowing || t == SaveAll
}

func (t SaveType) Supporting() bool {
	return t == SaveSupporting || t == SaveAll
}

// List names the listings t accepts
func (t SaveType) List() []string {
	var out []string
	if t.Following() {
		out = append(out, string(SaveFollowing))
	}
	if t.Supporting() {
		out = append(out, string(SaveSupporting))
	}
	return out
}

// Config holds every setting of a run
type Config struct {
	Session   string
	Output    string
	Save      SaveType
	Force     bool // refetch posts even when the listing says they are unchanged
	Overwrite bool // rewrite stored posts even when their content is unchanged
	Whitelist []string
	Blacklist []string
	Limit     int
	SkipFree  bool
	UserAgent string
	BaseURL   string
	LogLevel  slog.Level
	LogJSON   bool

	// Args are the positional arguments left after the flags.
	Args []string
}

// Load reads .env (if present) and parses args. Environment variables
// FANBOXSESSID, OUTPUT and SAVE provide the defaults of their flags.
func Load(args []string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	fs := flag.NewFlagSet("fanbox-archive", flag.ContinueOnError)

	save := getEnv("SAVE", string(SaveSupporting))
	logLevel := getEnv("LOG_LEVEL", "info")
	var verbose, quiet bool

	fs.StringVar(&cfg.Session, "session", os.Getenv("FANBOXSESSID"), "your FANBOXSESSID cookie")
	fs.StringVar(&cfg.Output, "output", getEnv("OUTPUT", "./archive"), "archive directory")
	fs.StringVar(&save, "save", save, "creators to archive: following, supporting or all")
	fs.StringVar(&save, "s", save, "shorthand for -save")
	fs.BoolVar(&cfg.Force, "force", false, "refetch posts even if unchanged")
	fs.BoolVar(&cfg.Force, "f", false, "shorthand for -force")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "rewrite stored posts even if unchanged")
	fs.BoolVar(&cfg.Overwrite, "o", false, "shorthand for -overwrite")
	fs.Var((*listFlag)(&cfg.Whitelist), "whitelist", "creator ids to include (repeatable, comma separated)")
	fs.Var((*listFlag)(&cfg.Whitelist), "w", "shorthand for -whitelist")
	fs.Var((*listFlag)(&cfg.Blacklist), "blacklist", "creator ids to exclude (repeatable, comma separated)")
	fs.Var((*listFlag)(&cfg.Blacklist), "b", "shorthand for -blacklist")
	fs.IntVar(&cfg.Limit, "limit", getEnvInt("LIMIT", 5), "concurrent post fetches")
	fs.BoolVar(&cfg.SkipFree, "skip-free", false, "skip free creators and posts")
	fs.StringVar(&cfg.UserAgent, "user-agent", os.Getenv("USER_AGENT"), "user agent (generated when empty)")
	fs.StringVar(&cfg.BaseURL, "api", getEnv("FANBOX_API", fanbox.DefaultBaseURL), "fanbox API base URL")
	fs.StringVar(&logLevel, "log-level", logLevel, "log level: debug, info, warn or error")
	fs.BoolVar(&verbose, "v", false, "debug logging")
	fs.BoolVar(&quiet, "q", false, "only log warnings and errors")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "log as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Args = fs.Args()

	var err error
	if cfg.Save, err = ParseSaveType(save); err != nil {
		return nil, err
	}
	if cfg.Limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", cfg.Limit)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	switch {
	case verbose:
		cfg.LogLevel = slog.LevelDebug
	case quiet:
		cfg.LogLevel = slog.LevelWarn
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent(time.Now())
	}

	return cfg, nil
}

// UserAgent builds a desktop Chrome user agent whose version numbers drift
// with t.
func UserAgent(t time.Time) string {
	secs := uint64(t.Unix())
	major := secs%2 + 4
	webkit := secs / 2 % 64
	chrome := secs/128%5 + 132
	return fmt.Sprintf(
		"Mozilla/%d.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.%d (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.%d",
		major, webkit, chrome, webkit,
	)
}

// SessionCookie returns the session as a Cookie header value
func (c *Config) SessionCookie() string {
	if strings.HasPrefix(c.Session, sessionPrefix) {
		return c.Session
	}
	return sessionPrefix + c.Session
}

// RequireSession fails when no session is configured
func (c *Config) RequireSession() error {
	if strings.TrimPrefix(c.Session, sessionPrefix) == "" {
		return ErrNoSession
	}
	return nil
}

func (c *Config) Accepts() SaveType {
	return c.Save
}

// Policy is the creator filter of this run
func (c *Config) Policy() creator.FilterPolicy {
	return creator.FilterPolicy{
		SkipFree: c.SkipFree,
		Allow:    c.Whitelist,
		Deny:     c.Blacklist,
	}
}

// FilterPost reports whether a listed post should be archived. Free posts
// are dropped under skip-free; restricted posts are always dropped since
// their body is withheld.
func (c *Config) FilterPost(post fanbox.PostListItem) bool {
	free := c.SkipFree && post.FeeRequired == 0
	return !free && !post.IsRestricted
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Output, "archive.db")
}

func (c *Config) IndexPath() string {
	return filepath.Join(c.Output, "index")
}

// Logger builds the run's logger writing to w
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// listFlag collects repeated, comma separated values
type listFlag []string

func (l *listFlag) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, v)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
