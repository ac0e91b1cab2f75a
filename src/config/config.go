// Package config loads and validates the pvtools configuration file.
// The loaded Config is an immutable value handed to the orchestrators;
// nothing here is consulted as global state at run time.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/steplov/pvtools/src/routing"
	"github.com/steplov/pvtools/src/storage"
)

// DefaultPath is where the CLI looks when --config is not given.
const DefaultPath = "/etc/pvtools/config.toml"

// Repository describes one remote restic repository.
type Repository struct {
	URL          string `mapstructure:"url" json:"url"`
	PasswordFile string `mapstructure:"password_file" json:"password_file,omitempty"`
}

// Backup holds backup-run behavior switches.
type Backup struct {
	// FailFast stops the run at the first failed volume instead of
	// continuing with the remaining ones.
	FailFast bool `mapstructure:"fail_fast" json:"fail_fast"`
}

// Filter is the volume selection policy (leaf names).
type Filter struct {
	Prefixes []string `mapstructure:"prefixes" json:"prefixes,omitempty"`
	Exclude  string   `mapstructure:"exclude" json:"exclude,omitempty"`

	exclude *regexp.Regexp
}

// Pattern returns the compiled exclude regex, nil when unset.
// Valid only after the Config has passed Validate.
func (f Filter) Pattern() *regexp.Regexp { return f.exclude }

// ZFS lists the ZFS discovery sources.
type ZFS struct {
	Pools []string `mapstructure:"pools" json:"pools,omitempty"`
}

// LVMThin lists the LVM thin discovery sources.
type LVMThin struct {
	VolumeGroups []string `mapstructure:"volume_groups" json:"volume_groups,omitempty"`
}

// RestoreTarget is a named restore destination. Declaration order in the
// config file is significant: same-type defaulting picks the first target
// of a matching type.
type RestoreTarget struct {
	Name        string `mapstructure:"name" json:"name"`
	Type        string `mapstructure:"type" json:"type"`
	Dataset     string `mapstructure:"dataset" json:"dataset,omitempty"`
	VolumeGroup string `mapstructure:"volume_group" json:"volume_group,omitempty"`
	Thinpool    string `mapstructure:"thinpool" json:"thinpool,omitempty"`
}

// Destination converts the target into provider parameters.
func (t RestoreTarget) Destination() storage.Destination {
	return storage.Destination{
		Dataset:     t.Dataset,
		VolumeGroup: t.VolumeGroup,
		Thinpool:    t.Thinpool,
	}
}

// RestoreRule routes archives to a target. Rules are evaluated in
// declaration order, first match wins.
type RestoreRule struct {
	Provider string `mapstructure:"provider" json:"provider"`
	Archive  string `mapstructure:"archive" json:"archive,omitempty"`
	Target   string `mapstructure:"target" json:"target"`

	pattern *regexp.Regexp
}

// Pattern returns the compiled archive regex, nil when the rule matches
// on provider alone. Valid only after Validate.
func (r RestoreRule) Pattern() *regexp.Regexp { return r.pattern }

// Restore groups the routing policy.
type Restore struct {
	DefaultTarget string          `mapstructure:"default_target" json:"default_target,omitempty"`
	Targets       []RestoreTarget `mapstructure:"targets" json:"targets,omitempty"`
	Rules         []RestoreRule   `mapstructure:"rules" json:"rules,omitempty"`
}

// TargetByName looks a target up by its configured name.
func (r Restore) TargetByName(name string) (RestoreTarget, bool) {
	for _, t := range r.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return RestoreTarget{}, false
}

// RoutingRules projects the rules into the resolver's input form.
func (r Restore) RoutingRules() []routing.Rule {
	out := make([]routing.Rule, 0, len(r.Rules))
	for _, rule := range r.Rules {
		out = append(out, routing.Rule{
			Provider: rule.Provider,
			Pattern:  rule.pattern,
			Target:   rule.Target,
		})
	}
	return out
}

// RoutingTargets projects the targets, preserving declaration order.
func (r Restore) RoutingTargets() []routing.Target {
	out := make([]routing.Target, 0, len(r.Targets))
	for _, t := range r.Targets {
		out = append(out, routing.Target{Name: t.Name, Type: t.Type})
	}
	return out
}

// Config is the full pvtools configuration.
type Config struct {
	DefaultRepo string                `mapstructure:"default_repo" json:"default_repo,omitempty"`
	BackupID    string                `mapstructure:"backup_id" json:"backup_id"`
	LockDir     string                `mapstructure:"lock_dir" json:"lock_dir"`
	Repos       map[string]Repository `mapstructure:"repos" json:"repos"`
	Backup      Backup                `mapstructure:"backup" json:"backup"`
	Filter      Filter                `mapstructure:"filter" json:"filter"`
	ZFS         ZFS                   `mapstructure:"zfs" json:"zfs"`
	LVMThin     LVMThin               `mapstructure:"lvmthin" json:"lvmthin"`
	Restore     Restore               `mapstructure:"restore" json:"restore"`
}

// ValidationError reports a single invalid configuration field. The first
// problem found aborts loading; configuration problems are never deferred
// to run time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// UnknownRepoError reports a repository alias that cannot be resolved.
type UnknownRepoError struct {
	Alias string
	Known []string
}

func (e *UnknownRepoError) Error() string {
	known := strings.Join(e.Known, ", ")
	if known == "" {
		known = "none"
	}
	if e.Alias == "" {
		return fmt.Sprintf("no repository selected; pass --repo or set default_repo (known: %s)", known)
	}
	return fmt.Sprintf("unknown repository %q (known: %s)", e.Alias, known)
}

// Test seam for hostname-derived defaults.
var hostname = os.Hostname

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	v.SetDefault("lock_dir", os.TempDir())
	v.SetDefault("backup.fail_fast", false)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.BackupID == "" {
		host, err := hostname()
		if err != nil {
			return fmt.Errorf("config: backup_id unset and hostname lookup failed: %w", err)
		}
		c.BackupID = host + "-pv"
	}
	if c.LockDir == "" {
		c.LockDir = os.TempDir()
	}
	return nil
}

var targetNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Validate checks the whole configuration and compiles its regexes.
func (c *Config) Validate() error {
	if len(c.Repos) == 0 {
		return &ValidationError{Field: "repos", Reason: "at least one repository must be defined"}
	}
	for alias, repo := range c.Repos {
		if strings.TrimSpace(repo.URL) == "" {
			return &ValidationError{Field: "repos." + alias + ".url", Reason: "must not be empty"}
		}
	}
	if c.DefaultRepo != "" {
		if _, ok := c.Repos[strings.ToLower(c.DefaultRepo)]; !ok {
			return &ValidationError{Field: "default_repo", Reason: fmt.Sprintf("unknown repository %q", c.DefaultRepo)}
		}
	}

	if c.Filter.Exclude != "" {
		re, err := regexp.Compile(c.Filter.Exclude)
		if err != nil {
			return &ValidationError{Field: "filter.exclude", Reason: err.Error()}
		}
		c.Filter.exclude = re
	}

	seen := map[string]struct{}{}
	for i := range c.Restore.Targets {
		t := &c.Restore.Targets[i]
		field := fmt.Sprintf("restore.targets[%d]", i)
		if !targetNameRe.MatchString(t.Name) {
			return &ValidationError{Field: field + ".name", Reason: "must match [A-Za-z0-9_-]{1,32}"}
		}
		if _, dup := seen[t.Name]; dup {
			return &ValidationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate target %q", t.Name)}
		}
		seen[t.Name] = struct{}{}
		switch t.Type {
		case storage.TypeZFS:
			if t.Dataset == "" {
				return &ValidationError{Field: field + ".dataset", Reason: "required for type zfs"}
			}
		case storage.TypeLVMThin:
			if t.VolumeGroup == "" || t.Thinpool == "" {
				return &ValidationError{Field: field, Reason: "volume_group and thinpool required for type lvmthin"}
			}
		default:
			return &ValidationError{Field: field + ".type", Reason: fmt.Sprintf("unknown provider type %q", t.Type)}
		}
	}

	for i := range c.Restore.Rules {
		r := &c.Restore.Rules[i]
		field := fmt.Sprintf("restore.rules[%d]", i)
		if r.Provider != storage.TypeZFS && r.Provider != storage.TypeLVMThin {
			return &ValidationError{Field: field + ".provider", Reason: fmt.Sprintf("unknown provider type %q", r.Provider)}
		}
		if _, ok := c.Restore.TargetByName(r.Target); !ok {
			return &ValidationError{Field: field + ".target", Reason: fmt.Sprintf("unknown target %q", r.Target)}
		}
		if r.Archive != "" {
			re, err := regexp.Compile(r.Archive)
			if err != nil {
				return &ValidationError{Field: field + ".archive", Reason: err.Error()}
			}
			r.pattern = re
		}
	}

	if c.Restore.DefaultTarget != "" {
		if _, ok := c.Restore.TargetByName(c.Restore.DefaultTarget); !ok {
			return &ValidationError{Field: "restore.default_target", Reason: fmt.Sprintf("unknown target %q", c.Restore.DefaultTarget)}
		}
	}
	return nil
}

// ResolveRepo picks a repository: the explicit alias if given, otherwise
// default_repo, otherwise the sole configured entry. Aliases are
// case-insensitive (the TOML loader lowercases table keys).
func (c *Config) ResolveRepo(alias string) (string, Repository, error) {
	lookup := strings.ToLower(strings.TrimSpace(alias))
	if lookup == "" {
		lookup = strings.ToLower(c.DefaultRepo)
	}
	if lookup == "" && len(c.Repos) == 1 {
		for name, repo := range c.Repos {
			return name, repo, nil
		}
	}
	if lookup == "" {
		return "", Repository{}, &UnknownRepoError{Known: c.repoNames()}
	}
	repo, ok := c.Repos[lookup]
	if !ok {
		return "", Repository{}, &UnknownRepoError{Alias: alias, Known: c.repoNames()}
	}
	return lookup, repo, nil
}

func (c *Config) repoNames() []string {
	names := make([]string, 0, len(c.Repos))
	for name := range c.Repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Redacted returns a copy safe for printing: credentials embedded in
// repository URLs are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Repos = make(map[string]Repository, len(c.Repos))
	for alias, repo := range c.Repos {
		repo.URL = redactURL(repo.URL)
		out.Repos[alias] = repo
	}
	return out
}

func redactURL(s string) string {
	// restic URLs are scheme-prefixed but only rest:/s3-over-http forms
	// can embed a password; those parse as standard URLs.
	raw := s
	if rest, ok := strings.CutPrefix(raw, "rest:"); ok {
		if u, err := url.Parse(rest); err == nil && u.User != nil {
			if _, has := u.User.Password(); has {
				return "rest:" + u.Redacted()
			}
		}
		return s
	}
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			return u.Redacted()
		}
	}
	return s
}
