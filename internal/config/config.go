package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/enginectl/internal/logger"
)

// Config describes one engine package and the hosts it is shipped to.
type Config struct {
	// Namespace is the top-level directory under /opt, /var/log and /var/run.
	Namespace string `yaml:"namespace"`
	// Package is the engine package name; required.
	Package string `yaml:"package"`
	// SourceDir is the project tree that gets packaged.
	SourceDir string `yaml:"source_dir"`
	// StagingDir receives built archives and manifests.
	StagingDir string `yaml:"staging_dir"`
	// Exclude lists filepath.Match patterns left out of archives.
	Exclude []string `yaml:"exclude"`
	// Hosts is the fleet the host-targeted commands operate on.
	Hosts []Host `yaml:"hosts"`
	// Parallelism bounds how many hosts are handled at once.
	Parallelism int `yaml:"parallelism"`
	// FailFast stops scheduling further hosts after the first failure.
	FailFast bool `yaml:"fail_fast"`
	// HistoryFile is the SQLite ledger path; "-" disables recording.
	HistoryFile string `yaml:"history_file"`
	// Executor is the engine executor path passed to the launch command.
	Executor string `yaml:"executor"`
	// Launch is the engine command line, rendered per start.
	Launch Launch `yaml:"launch"`
	// Build is the environment build command run inside the active release.
	Build []string `yaml:"build"`
	// StopScope selects which processes stop signals: "tree" or "children".
	StopScope string `yaml:"stop_scope"`
	// Provision lists the named provisioning steps, in order.
	Provision []Step `yaml:"provision"`
	// LogLevel is the zap level name.
	LogLevel string `yaml:"log_level"`
}

// Host is one deployment target.
type Host struct {
	// Name identifies the host in logs, reports and history.
	Name string `yaml:"name"`
	// Root is the filesystem root every engine path is resolved under.
	Root string `yaml:"root"`
}

// Launch holds the argv templates and extra environment of the engine.
type Launch struct {
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// Step is a named provisioning action executed with sh -c.
type Step struct {
	Name string `yaml:"name"`
	Run  string `yaml:"run"`
}

const (
	// DefaultConfigFilename is the configuration looked up when --config is not given.
	DefaultConfigFilename = "enginectl.yaml"

	// DefaultNamespace matches the directory layout the engines were historically deployed with.
	DefaultNamespace = "marvin"

	// DefaultStagingDir is where archives are built, relative to the working directory.
	DefaultStagingDir = ".packages"

	// DefaultHistoryFilename is the ledger file name inside the staging directory.
	DefaultHistoryFilename = "history.db"

	// HistoryDisabled turns the ledger off when used as HistoryFile.
	HistoryDisabled = "-"

	// DefaultHostName and DefaultHostRoot describe the implicit local target.
	DefaultHostName = "localhost"
	DefaultHostRoot = "/"

	// StopScopeTree signals the whole process group and descendant tree.
	StopScopeTree = "tree"
	// StopScopeChildren signals the top-level process and its direct children only.
	StopScopeChildren = "children"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPackageRequired is returned when the package name is missing.
	errPackageRequired = errors.New("package must be provided")
	// errInvalidName is returned for names that cannot be a single path component.
	errInvalidName = errors.New("must be a single path component")
	// errDuplicateHost is returned when two hosts share a name.
	errDuplicateHost = errors.New("duplicate host name")
	// errInvalidStopScope is returned for an unknown stop scope.
	errInvalidStopScope = errors.New("stop scope must be tree or children")
	// errInvalidStep is returned for a provisioning step without name or command.
	errInvalidStep = errors.New("provisioning step needs a name and a command")
	// errEmptyCommand is returned when a command template has no program.
	errEmptyCommand = errors.New("command must not be empty")
	// errUnknownLogLevel is returned for a log level zap does not know.
	errUnknownLogLevel = errors.New("unknown log level")
)

// Load reads configuration from the provided path, fills defaults and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills unset fields with defaults and rejects malformed values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Package == "" {
		return errPackageRequired
	}

	if !isPathComponent(cfg.Package) {
		return fmt.Errorf("package %q: %w", cfg.Package, errInvalidName)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	if !isPathComponent(cfg.Namespace) {
		return fmt.Errorf("namespace %q: %w", cfg.Namespace, errInvalidName)
	}

	applyDefaults(cfg)

	if err := validateHosts(cfg.Hosts); err != nil {
		return err
	}

	if cfg.StopScope != StopScopeTree && cfg.StopScope != StopScopeChildren {
		return fmt.Errorf("%q: %w", cfg.StopScope, errInvalidStopScope)
	}

	if len(cfg.Launch.Command) == 0 || cfg.Launch.Command[0] == "" {
		return fmt.Errorf("launch: %w", errEmptyCommand)
	}

	if len(cfg.Build) == 0 || cfg.Build[0] == "" {
		return fmt.Errorf("build: %w", errEmptyCommand)
	}

	for i, step := range cfg.Provision {
		if strings.TrimSpace(step.Name) == "" || strings.TrimSpace(step.Run) == "" {
			return fmt.Errorf("provision step #%d: %w", i+1, errInvalidStep)
		}
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%q: %w", cfg.LogLevel, errUnknownLogLevel)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.SourceDir == "" {
		cfg.SourceDir = "."
	}

	if cfg.StagingDir == "" {
		cfg.StagingDir = DefaultStagingDir
	}

	if cfg.Exclude == nil {
		cfg.Exclude = []string{".packages", ".vagrant", ".git"}
	}

	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []Host{{Name: DefaultHostName, Root: DefaultHostRoot}}
	}

	for i := range cfg.Hosts {
		if cfg.Hosts[i].Root == "" {
			cfg.Hosts[i].Root = DefaultHostRoot
		}
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	if cfg.HistoryFile == "" {
		cfg.HistoryFile = filepath.Join(cfg.StagingDir, DefaultHistoryFilename)
	}

	if cfg.Executor == "" {
		cfg.Executor = path.Join("/opt", cfg.Namespace, "engine-executor", "engine-executor.jar")
	}

	if len(cfg.Launch.Command) == 0 {
		cfg.Launch.Command = DefaultLaunchCommand()
	}

	if len(cfg.Build) == 0 {
		cfg.Build = DefaultBuildCommand()
	}

	if cfg.StopScope == "" {
		cfg.StopScope = StopScopeTree
	}

	if cfg.Provision == nil {
		cfg.Provision = DefaultProvisionSteps()
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func validateHosts(hosts []Host) error {
	seen := make(map[string]struct{}, len(hosts))

	for _, h := range hosts {
		if h.Name == "" {
			return fmt.Errorf("host with root %q: %w", h.Root, errInvalidName)
		}

		if _, ok := seen[h.Name]; ok {
			return fmt.Errorf("%q: %w", h.Name, errDuplicateHost)
		}

		seen[h.Name] = struct{}{}
	}

	return nil
}

// HostNames returns the configured host names in order.
func (c *Config) HostNames() []string {
	names := make([]string, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		names = append(names, h.Name)
	}

	return names
}

func isPathComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
