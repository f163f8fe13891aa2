package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings agrupa os limites configuráveis do motor de estado.
type Settings struct {
	Cache    CacheSettings    `mapstructure:"cache"`
	Diff     DiffSettings     `mapstructure:"diff"`
	Timeouts TimeoutSettings  `mapstructure:"timeouts"`
	Executor ExecutorSettings `mapstructure:"executor"`
	Watcher  WatcherSettings  `mapstructure:"watcher"`
	Gateway  GatewaySettings  `mapstructure:"gateway"`
}

// CacheSettings define o TTL de cada tipo de dado cacheado por repositório.
type CacheSettings struct {
	StatusTTL         time.Duration `mapstructure:"status_ttl"`
	HeadTTL           time.Duration `mapstructure:"head_ttl"`
	BranchesTTL       time.Duration `mapstructure:"branches_ttl"`
	RemoteBranchesTTL time.Duration `mapstructure:"remote_branches_ttl"`
	TagsTTL           time.Duration `mapstructure:"tags_ttl"`
	RemotesTTL        time.Duration `mapstructure:"remotes_ttl"`
	StashesTTL        time.Duration `mapstructure:"stashes_ttl"`
	CommitPagesTTL    time.Duration `mapstructure:"commit_pages_ttl"`
	CommitPageSize    int           `mapstructure:"commit_page_size"`
	PrependWindow     int           `mapstructure:"prepend_window"`
}

// DiffSettings define os limiares de preflight e o orçamento do LRU.
type DiffSettings struct {
	LargeFileBytes   int64 `mapstructure:"large_file_bytes"`
	LargeFileLines   int   `mapstructure:"large_file_lines"`
	MaxLineLength    int   `mapstructure:"max_line_length"`
	MaxHunks         int   `mapstructure:"max_hunks"`
	ContextLines     int   `mapstructure:"context_lines"`
	CacheBudgetBytes int64 `mapstructure:"cache_budget_bytes"`
	WordDiff         bool  `mapstructure:"word_diff"`
}

// TimeoutSettings define a política de timeout por classe de comando.
type TimeoutSettings struct {
	Status  time.Duration `mapstructure:"status"`
	Read    time.Duration `mapstructure:"read"`
	Write   time.Duration `mapstructure:"write"`
	Network time.Duration `mapstructure:"network"`
}

type ExecutorSettings struct {
	GitBinary      string        `mapstructure:"git_binary"`
	StreamBuffer   int           `mapstructure:"stream_buffer"`
	GracePeriod    time.Duration `mapstructure:"grace_period"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
}

type WatcherSettings struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type GatewaySettings struct {
	Addr string `mapstructure:"addr"`
}

// DefaultSettings retorna os valores padrão documentados.
func DefaultSettings() Settings {
	return Settings{
		Cache: CacheSettings{
			StatusTTL:         5 * time.Second,
			HeadTTL:           10 * time.Second,
			BranchesTTL:       30 * time.Second,
			RemoteBranchesTTL: 60 * time.Second,
			TagsTTL:           120 * time.Second,
			RemotesTTL:        300 * time.Second,
			StashesTTL:        30 * time.Second,
			CommitPagesTTL:    60 * time.Second,
			CommitPageSize:    DefaultCommitPageSize,
			PrependWindow:     DefaultPrependWindow,
		},
		Diff: DiffSettings{
			LargeFileBytes:   8 * 1024 * 1024,
			LargeFileLines:   50000,
			MaxLineLength:    2000,
			MaxHunks:         1000,
			ContextLines:     3,
			CacheBudgetBytes: DefaultDiffCacheBudget,
			WordDiff:         true,
		},
		Timeouts: TimeoutSettings{
			Status:  5 * time.Second,
			Read:    15 * time.Second,
			Write:   12 * time.Second,
			Network: 120 * time.Second,
		},
		Executor: ExecutorSettings{
			GitBinary:      "git",
			StreamBuffer:   256,
			GracePeriod:    2 * time.Second,
			MaxOutputBytes: MaxBufferedOutputBytes,
		},
		Watcher: WatcherSettings{
			Enabled:  true,
			Debounce: 200 * time.Millisecond,
		},
		Gateway: GatewaySettings{
			Addr: "127.0.0.1:7420",
		},
	}
}

// LoadSettings lê o YAML em path (se existir) e aplica overrides de ambiente
// REPOSTATE_<SECAO>_<CHAVE> sobre os padrões.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	applyDefaults(v, DefaultSettings())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Settings{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return settings.normalized(), nil
}

// normalized repõe padrões em campos zerados para que um YAML parcial
// nunca desligue um limite por acidente.
func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.Diff.LargeFileBytes <= 0 {
		s.Diff.LargeFileBytes = d.Diff.LargeFileBytes
	}
	if s.Diff.LargeFileLines <= 0 {
		s.Diff.LargeFileLines = d.Diff.LargeFileLines
	}
	if s.Diff.MaxLineLength <= 0 {
		s.Diff.MaxLineLength = d.Diff.MaxLineLength
	}
	if s.Diff.MaxHunks <= 0 {
		s.Diff.MaxHunks = d.Diff.MaxHunks
	}
	if s.Diff.ContextLines < 0 {
		s.Diff.ContextLines = d.Diff.ContextLines
	}
	if s.Diff.CacheBudgetBytes <= 0 {
		s.Diff.CacheBudgetBytes = d.Diff.CacheBudgetBytes
	}
	if s.Cache.CommitPageSize <= 0 {
		s.Cache.CommitPageSize = d.Cache.CommitPageSize
	}
	if s.Cache.PrependWindow <= 0 {
		s.Cache.PrependWindow = d.Cache.PrependWindow
	}
	if strings.TrimSpace(s.Executor.GitBinary) == "" {
		s.Executor.GitBinary = d.Executor.GitBinary
	}
	if s.Executor.StreamBuffer <= 0 {
		s.Executor.StreamBuffer = d.Executor.StreamBuffer
	}
	if s.Executor.MaxOutputBytes <= 0 {
		s.Executor.MaxOutputBytes = d.Executor.MaxOutputBytes
	}
	return s
}

// WriteSettings grava settings como YAML, criando o diretório se preciso.
func WriteSettings(path string, settings Settings) error {
	payload, err := yaml.Marshal(settingsDocument(settings))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0600)
}

// MarshalYAML renderiza settings no mesmo formato aceito por LoadSettings.
func MarshalYAML(settings Settings) ([]byte, error) {
	return yaml.Marshal(settingsDocument(settings))
}

func applyDefaults(v *viper.Viper, d Settings) {
	for key, value := range flattenSettings(d) {
		v.SetDefault(key, value)
	}
}

// settingsDocument converte durations para texto ("5s") antes do YAML;
// yaml.v3 serializaria time.Duration como inteiro de nanossegundos.
func settingsDocument(s Settings) map[string]map[string]any {
	doc := make(map[string]map[string]any)
	for key, value := range flattenSettings(s) {
		section, field, _ := strings.Cut(key, ".")
		if doc[section] == nil {
			doc[section] = make(map[string]any)
		}
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		doc[section][field] = value
	}
	return doc
}

func flattenSettings(s Settings) map[string]any {
	return map[string]any{
		"cache.status_ttl":          s.Cache.StatusTTL,
		"cache.head_ttl":            s.Cache.HeadTTL,
		"cache.branches_ttl":        s.Cache.BranchesTTL,
		"cache.remote_branches_ttl": s.Cache.RemoteBranchesTTL,
		"cache.tags_ttl":            s.Cache.TagsTTL,
		"cache.remotes_ttl":         s.Cache.RemotesTTL,
		"cache.stashes_ttl":         s.Cache.StashesTTL,
		"cache.commit_pages_ttl":    s.Cache.CommitPagesTTL,
		"cache.commit_page_size":    s.Cache.CommitPageSize,
		"cache.prepend_window":      s.Cache.PrependWindow,
		"diff.large_file_bytes":     s.Diff.LargeFileBytes,
		"diff.large_file_lines":     s.Diff.LargeFileLines,
		"diff.max_line_length":      s.Diff.MaxLineLength,
		"diff.max_hunks":            s.Diff.MaxHunks,
		"diff.context_lines":        s.Diff.ContextLines,
		"diff.cache_budget_bytes":   s.Diff.CacheBudgetBytes,
		"diff.word_diff":            s.Diff.WordDiff,
		"timeouts.status":           s.Timeouts.Status,
		"timeouts.read":             s.Timeouts.Read,
		"timeouts.write":            s.Timeouts.Write,
		"timeouts.network":          s.Timeouts.Network,
		"executor.git_binary":       s.Executor.GitBinary,
		"executor.stream_buffer":    s.Executor.StreamBuffer,
		"executor.grace_period":     s.Executor.GracePeriod,
		"executor.max_output_bytes": s.Executor.MaxOutputBytes,
		"watcher.enabled":           s.Watcher.Enabled,
		"watcher.debounce":          s.Watcher.Debounce,
		"gateway.addr":              s.Gateway.Addr,
	}
}
