// Package config assembles the daemon settings from defaults, an optional
// YAML file, the environment (and .env) and command line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"jarvis/internal/launcher"
	"jarvis/internal/llm"
)

const (
	DefaultCloudURL   = "https://api.groq.com/openai/v1"
	DefaultCloudModel = "llama-3.3-70b-versatile"
	DefaultLocalURL   = "http://localhost:11434/v1"
	DefaultLocalModel = "llama3.2"
	DefaultConfigFile = "jarvis.yaml"
	DefaultAttention  = 35 * time.Second
)

type Config struct {
	EnvFile    string
	ConfigFile string
	LogLevel   string
	Proxy      string
	DataDir    string
	Socket     string
	HubURL     string
	NoMic      bool
	SafeMode   bool

	Keys       []string
	CloudURL   string
	CloudModel string
	LocalURL   string
	LocalModel string

	Attention time.Duration
	WakeWords []string

	EmbedProvider string
	EmbedModel    string

	WhisperModel string
	Earcon       string
	Voice        string

	Apps []launcher.App
}

// file is the YAML layout.
type file struct {
	DataDir      string         `yaml:"data_dir"`
	HubURL       string         `yaml:"hub_url"`
	Proxy        string         `yaml:"proxy"`
	CloudURL     string         `yaml:"cloud_url"`
	CloudModel   string         `yaml:"cloud_model"`
	LocalURL     string         `yaml:"local_url"`
	LocalModel   string         `yaml:"local_model"`
	Attention    int            `yaml:"attention_seconds"`
	WakeWords    []string       `yaml:"wake_words"`
	WhisperModel string         `yaml:"whisper_model"`
	Earcon       string         `yaml:"earcon"`
	Voice        string         `yaml:"voice"`
	SafeMode     bool           `yaml:"safe_mode"`
	Apps         []launcher.App `yaml:"apps"`
	Embed        struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
	} `yaml:"embed"`
}

// Load parses args (without the program name). getenv is usually os.Getenv;
// values from the .env file fill in whatever it leaves empty.
func Load(args []string, getenv func(string) string) (Config, error) {
	fset := cli.NewFlagSet("jarvis", cli.ContinueOnError)
	envFile := fset.StringP("env", "e", ".env", "Env file path")
	cfgFile := fset.StringP("config", "c", DefaultConfigFile, "YAML config file")
	logLevel := fset.StringP("log", "l", "info", "Log level (debug, info, warn, error)")
	proxy := fset.StringP("proxy", "p", "", "SOCKS5 proxy for cloud LLM traffic")
	dataDir := fset.StringP("data", "d", "", "Data directory")
	socket := fset.StringP("socket", "s", "", "Control socket path")
	hub := fset.String("hub", "", "Websocket hub URL")
	noMic := fset.Bool("no-mic", false, "Open the microphone only on trigger")
	safe := fset.Bool("safe", false, "Only run tools marked safe")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	lookup, err := withDotenv(*envFile, fset.Changed("env"), getenv)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		EnvFile:    *envFile,
		ConfigFile: *cfgFile,
		LogLevel:   *logLevel,
		CloudURL:   DefaultCloudURL,
		CloudModel: DefaultCloudModel,
		LocalURL:   DefaultLocalURL,
		LocalModel: DefaultLocalModel,
		Attention:  DefaultAttention,
		DataDir:    "~/.jarvis",
	}

	if err := cfg.applyFile(*cfgFile, fset.Changed("config")); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if fset.Changed("proxy") {
		cfg.Proxy = *proxy
	}
	if fset.Changed("data") {
		cfg.DataDir = *dataDir
	}
	if fset.Changed("hub") {
		cfg.HubURL = *hub
	}
	if fset.Changed("safe") {
		cfg.SafeMode = *safe
	}
	cfg.Socket = *socket
	cfg.NoMic = *noMic

	if cfg.DataDir, err = expandHome(cfg.DataDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func withDotenv(path string, explicit bool, getenv func(string) string) (func(string) string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return getenv, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return func(k string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return vals[k]
	}, nil
}

func (c *Config) applyFile(path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&c.DataDir, f.DataDir)
	set(&c.HubURL, f.HubURL)
	set(&c.Proxy, f.Proxy)
	set(&c.CloudURL, f.CloudURL)
	set(&c.CloudModel, f.CloudModel)
	set(&c.LocalURL, f.LocalURL)
	set(&c.LocalModel, f.LocalModel)
	set(&c.WhisperModel, f.WhisperModel)
	set(&c.Earcon, f.Earcon)
	set(&c.Voice, f.Voice)
	set(&c.EmbedProvider, f.Embed.Provider)
	set(&c.EmbedModel, f.Embed.Model)
	if f.Attention > 0 {
		c.Attention = time.Duration(f.Attention) * time.Second
	}
	if len(f.WakeWords) > 0 {
		c.WakeWords = f.WakeWords
	}
	if len(f.Apps) > 0 {
		c.Apps = f.Apps
	}
	c.SafeMode = c.SafeMode || f.SafeMode
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	c.Keys = llm.KeysFromEnv(getenv)

	set(&c.CloudURL, getenv("JARVIS_CLOUD_URL"))
	set(&c.CloudModel, getenv("JARVIS_CLOUD_MODEL"))
	set(&c.LocalURL, getenv("JARVIS_LOCAL_URL"))
	set(&c.LocalModel, getenv("JARVIS_LOCAL_MODEL"))
	set(&c.DataDir, getenv("JARVIS_DATA_DIR"))
	set(&c.EmbedProvider, getenv("JARVIS_EMBED_PROVIDER"))
	set(&c.EmbedModel, getenv("JARVIS_EMBED_MODEL"))
	set(&c.HubURL, getenv("JARVIS_HUB_URL"))
	set(&c.WhisperModel, getenv("JARVIS_WHISPER_MODEL"))

	if s := getenv("JARVIS_ATTENTION_SECONDS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("JARVIS_ATTENTION_SECONDS: want a positive integer, got %q", s)
		}
		c.Attention = time.Duration(n) * time.Second
	}
	if s := getenv("JARVIS_WAKE_WORDS"); s != "" {
		var words []string
		for _, w := range strings.Split(s, ",") {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
		c.WakeWords = words
	}
	return nil
}

// Path joins name onto the data directory.
func (c Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

func set(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
