package database

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"repostate/internal/config"
	"repostate/internal/engine"
	"repostate/internal/security"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// maxJournalRows é a retenção do journal; linhas mais antigas são podadas a cada gravação.
const maxJournalRows = 5000

// Service encapsula o journal de comandos no SQLite via GORM
type Service struct {
	db        *gorm.DB
	sanitizer *security.LogSanitizer
}

// NewService abre (ou cria) o journal no primeiro caminho gravável.
func NewService(sanitizer *security.LogSanitizer) (*Service, error) {
	dbPath, db, err := openWritableDatabase()
	if err != nil {
		return nil, err
	}

	svc, err := newService(db, sanitizer)
	if err != nil {
		return nil, err
	}

	// Definir permissão 0600 no arquivo do banco
	os.Chmod(dbPath, 0600)

	log.Printf("[DB] Database initialized at %s", dbPath)
	return svc, nil
}

func newService(db *gorm.DB, sanitizer *security.LogSanitizer) (*Service, error) {
	if err := db.AutoMigrate(&CommandRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	if sanitizer == nil {
		sanitizer = security.NewLogSanitizer()
	}
	return &Service{db: db, sanitizer: sanitizer}, nil
}

func openWritableDatabase() (string, *gorm.DB, error) {
	candidates := make([]string, 0, 3)
	if override := strings.TrimSpace(os.Getenv(config.EnvPrefix + "_DB_PATH")); override != "" {
		candidates = append(candidates, override)
	}
	candidates = append(candidates, config.DBPath())

	if cwd, err := os.Getwd(); err == nil && strings.TrimSpace(cwd) != "" {
		candidates = append(candidates, filepath.Join(cwd, ".repostate", config.DBFileName))
	}
	candidates = append(candidates, filepath.Join(os.TempDir(), config.AppName, config.DBFileName))

	var lastErr error
	for _, candidate := range candidates {
		path := strings.TrimSpace(candidate)
		if path == "" {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			lastErr = err
			continue
		}

		if !isLikelyWritable(path) {
			lastErr = fmt.Errorf("path not writable: %s", path)
			continue
		}

		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			lastErr = err
			continue
		}

		sqlDB, err := db.DB()
		if err != nil {
			lastErr = err
			continue
		}

		sqlDB.Exec("PRAGMA journal_mode=WAL")
		sqlDB.Exec("PRAGMA busy_timeout=5000")
		sqlDB.Exec("PRAGMA synchronous=NORMAL")

		// Probe de escrita para evitar abrir DB readonly em ambientes sandbox.
		probeErr := db.Exec("CREATE TABLE IF NOT EXISTS _repostate_write_probe (id INTEGER PRIMARY KEY AUTOINCREMENT)").Error
		if probeErr == nil {
			probeErr = db.Exec("INSERT INTO _repostate_write_probe DEFAULT VALUES").Error
		}
		if probeErr == nil {
			_ = db.Exec("DELETE FROM _repostate_write_probe").Error
		}

		if probeErr != nil {
			lastErr = probeErr
			_ = sqlDB.Close()
			continue
		}

		return path, db, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no database path candidates available")
	}

	return "", nil, fmt.Errorf("failed to open writable database: %w", lastErr)
}

func isLikelyWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Close fecha a conexão com o banco
func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Observe adapta Record para engine.CommandObserver; falhas só vão para o log.
func (s *Service) Observe(result engine.CommandResult) {
	if err := s.Record(result); err != nil {
		log.Printf("[DB] failed to journal %s: %v", result.CommandID, err)
	}
}

// Record persiste o diagnóstico quando o status é terminal. Transições
// intermediárias (queued, started, retried) são ignoradas.
func (s *Service) Record(result engine.CommandResult) error {
	if !isTerminalStatus(result.Status) {
		return nil
	}
	if strings.TrimSpace(result.CommandID) == "" {
		return fmt.Errorf("command result without id")
	}

	args, err := json.Marshal(s.sanitizer.SanitizeArgs(result.Args))
	if err != nil {
		return err
	}

	record := &CommandRecord{
		CommandID:  result.CommandID,
		Repo:       result.RepoPath,
		Action:     result.Action,
		Args:       string(args),
		Status:     result.Status,
		ExitCode:   result.ExitCode,
		DurationMs: result.DurationMs,
		Attempt:    result.Attempt,
		ErrorKind:  result.ErrorKind,
		Stderr:     s.sanitizer.Sanitize(result.StderrSanitized),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return tx.Exec(`
			DELETE FROM command_records
			WHERE id NOT IN (
				SELECT id
				FROM command_records
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			)
		`, maxJournalRows).Error
	})
}

// Latest lista as linhas mais recentes, opcionalmente filtradas por repositório.
func (s *Service) Latest(repo string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.db.Order("created_at DESC, id DESC").Limit(limit)
	if repo = strings.TrimSpace(repo); repo != "" {
		query = query.Where("repo = ?", repo)
	}

	var records []CommandRecord
	err := query.Find(&records).Error
	return records, err
}

// DecodedArgs devolve os args gravados como slice.
func (r CommandRecord) DecodedArgs() []string {
	var args []string
	if err := json.Unmarshal([]byte(r.Args), &args); err != nil {
		return nil
	}
	return args
}

func isTerminalStatus(status string) bool {
	switch strings.TrimSpace(status) {
	case engine.CommandStatusSucceeded, engine.CommandStatusFailed:
		return true
	}
	return false
}
