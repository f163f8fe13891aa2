package diff

import (
	"context"
	"fmt"

	"repostate/internal/config"
	"repostate/internal/engine"
)

// LargeFileMode controla o modo lazy de um arquivo.
type LargeFileMode string

const (
	LargeFileAuto     LargeFileMode = "auto"
	LargeFileForceOn  LargeFileMode = "forceOn"
	LargeFileForceOff LargeFileMode = "forceOff"
)

// Options são as opções efetivas de carregamento de um diff.
type Options struct {
	LargeFileMode   LargeFileMode `json:"largeFileMode"`
	EnableWordDiff  bool          `json:"enableWordDiff"`
	DetectRenames   bool          `json:"detectRenames"`
	SyntaxHighlight bool          `json:"syntaxHighlight"`
	ContextLines    int           `json:"contextLines"`
	MaxLineLength   int           `json:"maxLineLength"`
	MaxHunks        int           `json:"maxHunks"`
}

// Lazy indica se o arquivo deve ser carregado em ModeLazy.
func (o Options) Lazy() bool {
	return o.LargeFileMode == LargeFileForceOn
}

func (o Options) parseOptions() ParseOptions {
	mode := ModeEager
	if o.Lazy() {
		mode = ModeLazy
	}
	return ParseOptions{
		Mode:          mode,
		MaxLineLength: o.MaxLineLength,
		MaxHunks:      o.MaxHunks,
	}
}

// Limits são os limiares de preflight.
type Limits struct {
	LargeFileBytes int64
	LargeFileLines int
	MaxLineLength  int
	MaxHunks       int
	ContextLines   int
	WordDiff       bool
}

// LimitsFromSettings converte a seção diff das configurações.
func LimitsFromSettings(s config.DiffSettings) Limits {
	return Limits{
		LargeFileBytes: s.LargeFileBytes,
		LargeFileLines: s.LargeFileLines,
		MaxLineLength:  s.MaxLineLength,
		MaxHunks:       s.MaxHunks,
		ContextLines:   s.ContextLines,
		WordDiff:       s.WordDiff,
	}
}

// DefaultOptions são as opções de um arquivo comum.
func (l Limits) DefaultOptions() Options {
	return Options{
		LargeFileMode:   LargeFileForceOff,
		EnableWordDiff:  l.WordDiff,
		DetectRenames:   true,
		SyntaxHighlight: true,
		ContextLines:    l.ContextLines,
		MaxLineLength:   l.MaxLineLength,
		MaxHunks:        l.MaxHunks,
	}
}

// PreflightResult é o resultado da sondagem barata feita antes do diff.
type PreflightResult struct {
	Path        string  `json:"path"`
	Staged      bool    `json:"staged"`
	SizeBytes   int64   `json:"sizeBytes"`
	Additions   int     `json:"additions"`
	Deletions   int     `json:"deletions"`
	IsBinary    bool    `json:"isBinary"`
	HasChanges  bool    `json:"hasChanges"`
	IsLargeFile bool    `json:"isLargeFile"`
	Reason      string  `json:"reason,omitempty"`
	Suggested   Options `json:"suggested"`
}

// ChangedLines estima o volume do diff.
func (r PreflightResult) ChangedLines() int {
	return r.Additions + r.Deletions
}

// Evaluate aplica os limiares a uma sondagem já feita.
func Evaluate(path string, staged bool, size int64, stat engine.NumstatEntry, hasChanges bool, limits Limits) PreflightResult {
	result := PreflightResult{
		Path:       path,
		Staged:     staged,
		SizeBytes:  size,
		Additions:  stat.Additions,
		Deletions:  stat.Deletions,
		IsBinary:   stat.Binary,
		HasChanges: hasChanges,
		Suggested:  limits.DefaultOptions(),
	}

	switch {
	case limits.LargeFileBytes > 0 && size > limits.LargeFileBytes:
		result.IsLargeFile = true
		result.Reason = fmt.Sprintf("arquivo com %d bytes excede o limite de %d bytes", size, limits.LargeFileBytes)
	case limits.LargeFileLines > 0 && result.ChangedLines() > limits.LargeFileLines:
		result.IsLargeFile = true
		result.Reason = fmt.Sprintf("%d linhas alteradas excedem o limite de %d", result.ChangedLines(), limits.LargeFileLines)
	}

	if result.IsLargeFile {
		result.Suggested.LargeFileMode = LargeFileForceOn
		result.Suggested.EnableWordDiff = false
		result.Suggested.DetectRenames = false
		result.Suggested.SyntaxHighlight = false
	}
	return result
}

// Preflight roda numstat e mede o arquivo para escolher o modo de carga.
func Preflight(ctx context.Context, eng *engine.Engine, req engine.DiffRequest, limits Limits) (PreflightResult, error) {
	stat, hasChanges, err := eng.DiffNumstat(ctx, req)
	if err != nil {
		return PreflightResult{}, err
	}
	size, err := eng.FileSize(ctx, req.Path, req.Staged)
	if err != nil {
		return PreflightResult{}, err
	}
	return Evaluate(req.Path, req.Staged, size, stat, hasChanges, limits), nil
}

// resolveOptions combina a sugestão do preflight com o modo pedido.
func resolveOptions(preflight PreflightResult, requested LargeFileMode) Options {
	opts := preflight.Suggested
	switch requested {
	case LargeFileForceOn:
		opts.LargeFileMode = LargeFileForceOn
		opts.EnableWordDiff = false
		opts.DetectRenames = false
		opts.SyntaxHighlight = false
	case LargeFileForceOff:
		opts.LargeFileMode = LargeFileForceOff
	}
	return opts
}
