// Package config resolves the store root, the optional config file and the
// newsgroup catalog shared by all three programs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the release string reported by -v, the NNTP greeting and the
// HTTP User-Agent. Overridable via ldflags.
var Version = "2.0.0"

const (
	// DefaultPort is the NNTP listen port of lord.
	DefaultPort = 5119
	// DefaultTimeout is the forum HTTP timeout.
	DefaultTimeout = 20 * time.Second
	// DefaultBaseURL is the forum base URL.
	DefaultBaseURL = "http://www.linux.org.ru"
)

// Config is the optional file configuration loaded from <root>/config.yml.
// Flags win over file values, file values win over defaults.
type Config struct {
	Server struct {
		Port    int    `yaml:"port"`
		Metrics string `yaml:"metrics"`
		PostCmd string `yaml:"post_cmd"`
	} `yaml:"server"`
	Forum struct {
		BaseURL string `yaml:"base_url"`
		Timeout int    `yaml:"timeout"`
	} `yaml:"forum"`
	Pull struct {
		Days       int    `yaml:"days"`
		ExpireDays int    `yaml:"expire_days"`
		Cron       string `yaml:"cron"`
	} `yaml:"pull"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads the config file under root if present and applies defaults.
// A missing file is not an error.
func Load(root string) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Port = DefaultPort
	cfg.Server.PostCmd = "lorpost"
	cfg.Forum.BaseURL = DefaultBaseURL
	cfg.Forum.Timeout = int(DefaultTimeout / time.Second)
	cfg.Pull.Days = 1
	cfg.Pull.ExpireDays = -1

	path := filepath.Join(root, "config.yml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Root resolves the store root directory. LORNEWS_ROOT wins; otherwise
// $HOME/.lornews. A missing HOME is fatal for every program, per the
// external contract.
func Root() (string, error) {
	if r := os.Getenv("LORNEWS_ROOT"); r != "" {
		return r, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("HOME is not set")
	}
	return filepath.Join(home, ".lornews"), nil
}

// EnsureRoot creates the store skeleton under root with user-private
// permissions and rejects symlinked or group/other-writable paths.
func EnsureRoot(root string) error {
	paths := []string{
		root,
		filepath.Join(root, "news"),
		filepath.Join(root, "users"),
	}
	for _, p := range paths {
		if err := os.MkdirAll(p, 0o700); err != nil {
			return fmt.Errorf("cannot create %s: %w", p, err)
		}
		fi, err := os.Lstat(p)
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path is a symlink: %s", p)
		}
		if fi.Mode().Perm()&0o022 != 0 {
			return fmt.Errorf("path has permissive mode (group/other write): %s", p)
		}
	}
	return nil
}

// NewsDir returns the article tree root.
func NewsDir(root string) string { return filepath.Join(root, "news") }

// GroupDir returns the directory of a group: the dot-split group name
// under the news tree.
func GroupDir(root, group string) string {
	return filepath.Join(append([]string{NewsDir(root)}, strings.Split(group, ".")...)...)
}

// UserDir returns the per-user directory holding passwd and cookies.
func UserDir(root, nick string) string {
	return filepath.Join(root, "users", nick)
}

// ReadPassword reads the cleartext password of a user. Missing password
// file is a configuration error.
func ReadPassword(root, nick string) (string, error) {
	p := filepath.Join(UserDir(root, nick), "passwd")
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read password %s: %w", p, err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// CookiesFile returns the persistent cookie jar path of a user.
func CookiesFile(root, nick string) string {
	return filepath.Join(UserDir(root, nick), "cookies")
}
