package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppName é o nome do aplicativo
	AppName = "RepoState"

	// AppVersion é a versão atual
	AppVersion = "1.0.0"

	// EnvPrefix é o prefixo das variáveis de ambiente lidas pelo viper
	EnvPrefix = "REPOSTATE"

	// ConfigFileName é o arquivo YAML de configuração dentro de DataDir
	ConfigFileName = "config.yaml"

	// DBFileName é o nome do arquivo SQLite do journal de comandos
	DBFileName = "repostate_journal.db"

	// MaxBufferedOutputBytes é o teto de saída bufferizada de diff/log (500KB)
	MaxBufferedOutputBytes = 500 * 1024

	// DefaultDiffCacheBudget é o orçamento em bytes do LRU de diffs (64MB)
	DefaultDiffCacheBudget = 64 * 1024 * 1024

	// DefaultCommitPageSize é o tamanho padrão de página do histórico
	DefaultCommitPageSize = 100

	// DefaultPrependWindow é a janela de commits recentes usada no prepend incremental
	DefaultPrependWindow = 50
)

// DataDir retorna o diretório raiz de dados do app
func DataDir() string {
	if override := os.Getenv(EnvPrefix + "_DATA_DIR"); override != "" {
		return filepath.Clean(override)
	}
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", AppName)
	}
	return filepath.Join(home, ".local", "share", "repostate")
}

// ConfigPath retorna o caminho padrão do arquivo de configuração
func ConfigPath() string {
	if override := os.Getenv(EnvPrefix + "_CONFIG"); override != "" {
		return filepath.Clean(override)
	}
	return filepath.Join(DataDir(), ConfigFileName)
}

// DBPath retorna o caminho do arquivo SQLite
func DBPath() string {
	return filepath.Join(DataDir(), DBFileName)
}

// LogDir retorna o diretório de logs
func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

// EnsureDataDirs cria os diretórios necessários se não existirem
func EnsureDataDirs() error {
	dirs := []string{
		DataDir(),
		LogDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
