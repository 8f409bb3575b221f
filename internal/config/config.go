// Package config loads the service configuration from config.yaml and the
// environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, the host's bare
// environment variables (WEBUI_API_URL, PIPE_URL, ...), and PIPES_-prefixed
// variables using "__" as the nesting separator (PIPES_SERVER__PORT=9000).
package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	WebUI     WebUIConfig     `koanf:"webui"`
	Pipelines PipelinesConfig `koanf:"pipelines"`
	N8N       N8NConfig       `koanf:"n8n"`
	Storage   StorageConfig   `koanf:"storage"`
	HTTP      HTTPConfig      `koanf:"http"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// APIKeyHashes are SHA-256 hex digests of the keys accepted from the host.
	// An empty list leaves the tool server open.
	APIKeyHashes []string `koanf:"api_key_hashes"`
	// RequestTimeout bounds each inbound request.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type WebUIConfig struct {
	APIURL    string        `koanf:"api_url"`
	JWT       string        `koanf:"jwt"`
	SecretKey string        `koanf:"secret_key"`
	UIBaseURL string        `koanf:"ui_base_url"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type PipelinesConfig struct {
	URL          string        `koanf:"url"`
	Key          string        `koanf:"key"`
	ACLPath      string        `koanf:"acl_path"`
	ManifestPath string        `koanf:"manifest_path"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

type N8NConfig struct {
	URL                   string        `koanf:"url"`
	BearerToken           string        `koanf:"bearer_token"`
	FilesURL              string        `koanf:"files_url"`
	APIToken              string        `koanf:"api_token"`
	InputField            string        `koanf:"input_field"`
	ResponseField         string        `koanf:"response_field"`
	EmitInterval          time.Duration `koanf:"emit_interval"`
	EnableStatusIndicator bool          `koanf:"enable_status_indicator"`
	Debug                 bool          `koanf:"debug"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type HTTPConfig struct {
	// ClientTimeout is the total timeout of every outbound request.
	ClientTimeout time.Duration `koanf:"client_timeout"`
}

type TelemetryConfig struct {
	Tracing     bool   `koanf:"tracing"`
	ServiceName string `koanf:"service_name"`
}

// hostEnv maps the host application's environment variables onto config keys.
var hostEnv = map[string]string{
	"WEBUI_API_URL":          "webui.api_url",
	"WEBUI_JWT":              "webui.jwt",
	"WEBUI_SECRET_KEY":       "webui.secret_key",
	"UI_BASE_URL":            "webui.ui_base_url",
	"PIPE_URL":               "pipelines.url",
	"PIPE_KEY":               "pipelines.key",
	"PIPELINE_ACL_PATH":      "pipelines.acl_path",
	"PIPELINE_MANIFEST_PATH": "pipelines.manifest_path",
}

var defaults = map[string]any{
	"server.port":                 8090,
	"server.request_timeout":      "10m",
	"webui.api_url":               "http://localhost:8080",
	"webui.ui_base_url":           "http://localhost:8080",
	"webui.token_ttl":             "1h",
	"pipelines.url":               "http://localhost:8081",
	"pipelines.acl_path":          "pipelines/acl.json",
	"pipelines.manifest_path":     "pipelines/manifest.json",
	"pipelines.cache_ttl":         "60s",
	"n8n.files_url":               "http://localhost:8080/api/v1/files",
	"n8n.input_field":             "chatInput",
	"n8n.response_field":          "output",
	"n8n.emit_interval":           "2s",
	"n8n.enable_status_indicator": true,
	"storage.type":                "sqlite",
	"storage.sqlite.path":         "./data/pipes.db",
	"http.client_timeout":         "300s",
	"telemetry.service_name":      "webui-pipes",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty) and the environment.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Host variables; unknown names map to "" and are skipped.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return hostEnv[s]
	}), nil); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv("N8N_PIPE_DEBUG"); ok {
		k.Set("n8n.debug", v != "")
	}

	if err := k.Load(env.Provider("PIPES_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PIPES_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.WebUI.APIURL = strings.TrimRight(cfg.WebUI.APIURL, "/")
	cfg.WebUI.UIBaseURL = strings.TrimRight(cfg.WebUI.UIBaseURL, "/")
	cfg.Pipelines.URL = strings.TrimRight(cfg.Pipelines.URL, "/")

	// Secrets may reference other variables: key: ${N8N_TOKEN}
	cfg.WebUI.JWT = substituteEnvVars(cfg.WebUI.JWT)
	cfg.WebUI.SecretKey = substituteEnvVars(cfg.WebUI.SecretKey)
	cfg.Pipelines.Key = substituteEnvVars(cfg.Pipelines.Key)
	cfg.N8N.BearerToken = substituteEnvVars(cfg.N8N.BearerToken)
	cfg.N8N.APIToken = substituteEnvVars(cfg.N8N.APIToken)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
