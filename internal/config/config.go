// Package config loads daemon settings from the environment and command
// line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

const (
	DefaultInterval     = 1000 * time.Millisecond
	DefaultListenAddr   = ":8088"
	DefaultPushInterval = 5 * time.Second
)

type Config struct {
	Interval time.Duration

	Serve      bool
	ListenAddr string

	// CoresOnly prints per-core usage and tracks no processes.
	CoresOnly bool

	PIDs  []int
	Names []string

	PushURL      string
	PushInterval time.Duration

	UpdateCores bool
	AllCores    bool

	LogLevel string
	LogJSON  bool

	Hostname string
}

func Default() Config {
	host, _ := os.Hostname()
	return Config{
		Interval:     DefaultInterval,
		ListenAddr:   DefaultListenAddr,
		PushInterval: DefaultPushInterval,
		UpdateCores:  true,
		LogLevel:     "info",
		Hostname:     host,
	}
}

// Load starts from Default, applies THREADMON_* environment variables via
// getenv, then parses args.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}

	fs := flag.NewFlagSet("threadmon", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var result *multierror.Error

	if v := getenv("THREADMON_INTERVAL"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("THREADMON_INTERVAL: %w", err))
		} else {
			c.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := getenv("THREADMON_LISTEN"); v != "" {
		c.ListenAddr = v
	}
	if v := getenv("THREADMON_PIDS"); v != "" {
		pids, err := ParsePIDList(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("THREADMON_PIDS: %w", err))
		}
		c.PIDs = pids
	}
	if v := getenv("THREADMON_NAMES"); v != "" {
		c.Names = ParseNameList(v)
	}
	if v := getenv("THREADMON_PUSH_URL"); v != "" {
		c.PushURL = strings.TrimSuffix(v, "/")
	}
	if v := getenv("THREADMON_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	return result.ErrorOrNil()
}

// RegisterFlags binds the command line flags to c. Current values become
// the defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Var((*millis)(&c.Interval), "d", "update interval in milliseconds")
	fs.BoolVar(&c.Serve, "s", c.Serve, "serve the command API and snapshot stream")
	fs.Var((*port)(&c.ListenAddr), "p", "port to serve on")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "address to serve on")
	fs.BoolVar(&c.CoresOnly, "c", c.CoresOnly, "only print cpu core usage")
	fs.Var((*pidList)(&c.PIDs), "i", "comma separated pids to monitor")
	fs.Var((*nameList)(&c.Names), "n", "comma separated process names to monitor")
	fs.StringVar(&c.PushURL, "push", c.PushURL, "URL to push snapshot batches to")
	fs.DurationVar(&c.PushInterval, "push-interval", c.PushInterval, "maximum time between pushes")
	fs.BoolVar(&c.UpdateCores, "cores", c.UpdateCores, "sample every core on each tick")
	fs.BoolVar(&c.AllCores, "all-cores", c.AllCores, "report thread usage as a share of all cores")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "emit logs as JSON")
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Interval <= 0 {
		result = multierror.Append(result, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.Serve && c.ListenAddr == "" {
		result = multierror.Append(result, errors.New("listen address required when serving"))
	}
	for _, pid := range c.PIDs {
		if pid <= 0 {
			result = multierror.Append(result, fmt.Errorf("invalid pid %d", pid))
		}
	}
	if c.PushURL != "" {
		if u, err := url.ParseRequestURI(c.PushURL); err != nil || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("invalid push url %q", c.PushURL))
		}
		if c.PushInterval <= 0 {
			result = multierror.Append(result, fmt.Errorf("push interval must be positive, got %v", c.PushInterval))
		}
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	return result.ErrorOrNil()
}

// ParsePIDList parses "12,34, 56". Empty items are skipped.
func ParsePIDList(s string) ([]int, error) {
	var pids []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pid, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("invalid pid %q", item)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func ParseNameList(s string) []string {
	var names []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			names = append(names, item)
		}
	}
	return names
}

type millis time.Duration

func (m *millis) String() string {
	return strconv.FormatInt(time.Duration(*m).Milliseconds(), 10)
}

func (m *millis) Set(s string) error {
	ms, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*m = millis(time.Duration(ms) * time.Millisecond)
	return nil
}

type port string

func (p *port) String() string { return string(*p) }

func (p *port) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = port(":" + s)
	return nil
}

type pidList []int

func (l *pidList) String() string {
	parts := make([]string, len(*l))
	for i, pid := range *l {
		parts[i] = strconv.Itoa(pid)
	}
	return strings.Join(parts, ",")
}

func (l *pidList) Set(s string) error {
	pids, err := ParsePIDList(s)
	if err != nil {
		return err
	}
	*l = append(*l, pids...)
	return nil
}

type nameList []string

func (l *nameList) String() string { return strings.Join(*l, ",") }

func (l *nameList) Set(s string) error {
	*l = append(*l, ParseNameList(s)...)
	return nil
}
