package main

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

	"github.com/gogogo1024/mediate/container"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "mediate.yaml"

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

// setting is one configuration key and the places it can come from,
// lowest precedence first: def, yaml key (or legacy key), env, flag.
type setting struct {
	key    string
	legacy string
	env    string
	flag   string
	def    string
	usage  string
}

var settings = []setting{
	{key: "server.addr", legacy: "addr", env: "MEDIATE_ADDR", flag: "addr", def: ":9000", usage: "listen address"},
	{key: "timeouts.idle", legacy: "idle_timeout", env: "MEDIATE_IDLE_TIMEOUT", flag: "idle-timeout", def: "5m", usage: "connection idle timeout (0 to disable)"},
	{key: "timeouts.write", legacy: "write_timeout", env: "MEDIATE_WRITE_TIMEOUT", flag: "write-timeout", def: "10s", usage: "response write timeout (0 to disable)"},
	{key: "log.level", env: "MEDIATE_LOG_LEVEL", flag: "log-level", def: "info", usage: "debug, info, warn or error"},
	{key: "log.format", env: "MEDIATE_LOG_FORMAT", flag: "log-format", def: "text", usage: "text or json"},
	{key: "mediator.duplicates", env: "MEDIATE_DUPLICATES", flag: "duplicates", def: "error", usage: "duplicate handler policy: error or replace"},
	{key: "mediator.lifetime", env: "MEDIATE_LIFETIME", flag: "lifetime", def: "scoped", usage: "handler lifetime: scoped, transient or singleton"},
	{key: "acl.store", env: "MEDIATE_ACL_STORE", flag: "acl-store", def: "memory", usage: "ACL store: memory or redis"},
	{key: "redis.addr", env: "MEDIATE_REDIS_ADDR", flag: "redis-addr", def: "localhost:6379", usage: "redis address"},
	{key: "redis.password", env: "MEDIATE_REDIS_PASSWORD", flag: "redis-password", def: "", usage: "redis password"},
	{key: "redis.db", env: "MEDIATE_REDIS_DB", flag: "redis-db", def: "0", usage: "redis database"},
	{key: "redis.key_prefix", env: "MEDIATE_REDIS_KEY_PREFIX", flag: "redis-key-prefix", def: "acl:", usage: "redis key prefix"},
	{key: "redis.dial_timeout", env: "MEDIATE_REDIS_DIAL_TIMEOUT", flag: "redis-dial-timeout", def: "1s", usage: "redis dial timeout"},
	{key: "redis.read_timeout", env: "MEDIATE_REDIS_READ_TIMEOUT", flag: "redis-read-timeout", def: "1s", usage: "redis read timeout"},
	{key: "redis.write_timeout", env: "MEDIATE_REDIS_WRITE_TIMEOUT", flag: "redis-write-timeout", def: "1s", usage: "redis write timeout"},
	{key: "redis.health_interval", env: "MEDIATE_REDIS_HEALTH_INTERVAL", flag: "redis-health-interval", def: "30s", usage: "redis health check interval (0 to disable)"},
}

// yamlConfig holds a YAML document as nested maps and reads values by
// dotted path, like "server.addr".
type yamlConfig struct {
	data map[string]any
}

func readYAMLConfigFile(path string) (*yamlConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data := make(map[string]any)
	if err := yaml.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &yamlConfig{data: data}, nil
}

func (yc *yamlConfig) get(path string) (any, bool) {
	if yc == nil || path == "" {
		return nil, false
	}
	var cur any = yc.data
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// getScalar returns the value at path rendered as a string. Maps and
// lists are rejected.
func (yc *yamlConfig) getScalar(path string) (string, bool, error) {
	v, ok := yc.get(path)
	if !ok {
		return "", false, nil
	}
	switch v := v.(type) {
	case string:
		return v, true, nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(v), true, nil
	case nil:
		return "", true, fmt.Errorf("yaml %s is empty", path)
	default:
		return "", true, fmt.Errorf("yaml %s must be a scalar", path)
	}
}

type redisConfig struct {
	addr         string
	password     string
	db           int
	keyPrefix    string
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	healthInterval time.Duration
}

type serverConfig struct {
	addr         string
	idleTimeout  time.Duration
	writeTimeout time.Duration

	logLevel  slog.Level
	logFormat string

	duplicates container.DuplicatePolicy
	lifetime   container.Lifetime

	aclStore string
	redis    redisConfig

	// raw and sources are keyed by setting key.
	raw     map[string]string
	sources map[string]configSource

	dotenvPath   string
	dotenvLoaded bool

	configPath   string
	configLoaded bool
}

func loadConfig(args []string) (serverConfig, error) {
	resolved, err := resolveYAML(args)
	if err != nil {
		return serverConfig{}, err
	}
	dotenvPath, dotenvLoaded, err := loadDotenv(".env")
	if err != nil {
		return serverConfig{}, err
	}

	raw := make(map[string]string, len(settings))
	sources := make(map[string]configSource, len(settings))
	for _, s := range settings {
		v, src, err := layeredDefault(resolved.yc, s)
		if err != nil {
			return serverConfig{}, err
		}
		raw[s.key], sources[s.key] = v, src
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configFlag := fs.String("config", resolved.path, "path to YAML config file")
	flagVals := make(map[string]*string, len(settings))
	for _, s := range settings {
		flagVals[s.key] = fs.String(s.flag, raw[s.key], s.usage)
	}
	if err := fs.Parse(args); err != nil {
		return serverConfig{}, err
	}
	set := visitedFlags(fs)
	for _, s := range settings {
		if set[s.flag] {
			raw[s.key], sources[s.key] = *flagVals[s.key], sourceFlag
		}
	}

	cfg := serverConfig{
		raw:          raw,
		sources:      sources,
		dotenvPath:   dotenvPath,
		dotenvLoaded: dotenvLoaded,
		configPath:   *configFlag,
		configLoaded: resolved.loaded,
	}
	if abs, err := filepath.Abs(cfg.configPath); err == nil {
		cfg.configPath = abs
	}
	if err := cfg.parse(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

// layeredDefault resolves s from defaults, the YAML file and the
// environment; flags are applied on top by the caller.
func layeredDefault(yc *yamlConfig, s setting) (string, configSource, error) {
	v, src := s.def, sourceDefault

	fv, ok, err := yc.getScalar(s.key)
	if err == nil && !ok && s.legacy != "" {
		fv, ok, err = yc.getScalar(s.legacy)
	}
	if err != nil {
		return "", "", err
	}
	if ok {
		v, src = fv, sourceFile
	}

	if ev, ok := os.LookupEnv(s.env); ok {
		if ev == "" && s.def != "" {
			return "", "", fmt.Errorf("env %s is empty", s.env)
		}
		v, src = ev, sourceEnv
	}
	return v, src, nil
}

func (c *serverConfig) parse() error {
	var errs []error
	duration := func(key string) time.Duration {
		d, err := time.ParseDuration(c.raw[key])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s (%s) invalid duration: %w", key, c.sources[key], err))
		}
		return d
	}

	c.addr = c.raw["server.addr"]
	c.idleTimeout = duration("timeouts.idle")
	c.writeTimeout = duration("timeouts.write")

	if err := c.logLevel.UnmarshalText([]byte(c.raw["log.level"])); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.logFormat = strings.ToLower(c.raw["log.format"]); c.logFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.logFormat))
	}

	var err error
	if c.duplicates, err = container.ParseDuplicatePolicy(c.raw["mediator.duplicates"]); err != nil {
		errs = append(errs, err)
	}
	if c.lifetime, err = container.ParseLifetime(c.raw["mediator.lifetime"]); err != nil {
		errs = append(errs, err)
	}

	switch c.aclStore = strings.ToLower(c.raw["acl.store"]); c.aclStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("acl.store must be memory or redis, got %q", c.aclStore))
	}

	c.redis = redisConfig{
		addr:         c.raw["redis.addr"],
		password:     c.raw["redis.password"],
		keyPrefix:    c.raw["redis.key_prefix"],
		dialTimeout:  duration("redis.dial_timeout"),
		readTimeout:  duration("redis.read_timeout"),
		writeTimeout: duration("redis.write_timeout"),

		healthInterval: duration("redis.health_interval"),
	}
	if c.redis.db, err = strconv.Atoi(c.raw["redis.db"]); err != nil {
		errs = append(errs, fmt.Errorf("redis.db: %w", err))
	}
	return errors.Join(errs...)
}

// logSources logs every resolved value with where it came from. Secrets
// are masked.
func (c serverConfig) logSources(logger *slog.Logger) {
	logger.Info("Loaded configuration.",
		"config", c.configPath, "config_loaded", c.configLoaded,
		"dotenv", c.dotenvPath, "dotenv_loaded", c.dotenvLoaded)
	for _, s := range settings {
		v := c.raw[s.key]
		if s.key == "redis.password" && v != "" {
			v = "***"
		}
		logger.Debug("Config value.", "key", s.key, "value", v, "source", string(c.sources[s.key]))
	}
}

type resolvedYAML struct {
	yc     *yamlConfig
	path   string
	loaded bool
}

func resolveYAML(args []string) (resolvedYAML, error) {
	configPath, explicit := parseConfigPath(args, defaultConfigPath)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}

	yc, err := readYAMLConfigFile(configPath)
	if err == nil {
		return resolvedYAML{yc: yc, path: configPath, loaded: true}, nil
	}
	if errors.Is(err, os.ErrNotExist) && !explicit {
		// A missing default config is fine.
		return resolvedYAML{path: configPath}, nil
	}
	return resolvedYAML{}, err
}

func loadDotenv(path string) (string, bool, error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, false, nil
		}
		return path, false, fmt.Errorf("load %s: %w", path, err)
	}
	return path, true, nil
}

func visitedFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func parseConfigPath(args []string, defaultValue string) (string, bool) {
	fs := flag.NewFlagSet("preconfig", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	config := fs.String("config", defaultValue, "path to YAML config file")
	// Every server flag is defined so -config is found wherever it appears.
	for _, s := range settings {
		fs.String(s.flag, "", s.usage)
	}
	// Bad values are reported by the full flag set in loadConfig.
	_ = fs.Parse(args)
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	return *config, explicit
}
