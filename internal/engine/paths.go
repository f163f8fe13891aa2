package engine

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"repostate/internal/giterr"
)

// ensurePathWithinRepo normaliza filePath para um caminho relativo com "/"
// e rejeita caminhos absolutos ou que escapem da raiz.
func ensurePathWithinRepo(repoRoot string, filePath string) (string, error) {
	trimmed := strings.TrimSpace(filePath)
	if trimmed == "" {
		return "", giterr.New(
			giterr.KindInvalidPath,
			"Caminho de arquivo obrigatório.",
			"Informe um caminho relativo válido ao repositório.",
		)
	}

	if strings.ContainsRune(trimmed, '\x00') {
		return "", giterr.New(
			giterr.KindInvalidPath,
			"Caminho de arquivo inválido.",
			"Caracter nulo não é permitido no caminho.",
		)
	}

	normalizedInput := strings.ReplaceAll(filepath.ToSlash(trimmed), "\\", "/")
	normalized := path.Clean(normalizedInput)
	if normalized == "." || normalized == ".." || strings.HasPrefix(normalized, "../") || strings.HasPrefix(normalized, "/") || filepath.IsAbs(trimmed) {
		return "", giterr.New(
			giterr.KindInvalidPath,
			"Caminho de arquivo inválido.",
			"Use apenas caminhos relativos dentro do repositório.",
		)
	}

	rootAbs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", giterr.New(giterr.KindRepoOutOfScope, "Falha ao validar escopo do repositório.", err.Error())
	}
	targetAbs, err := filepath.Abs(filepath.Join(rootAbs, filepath.FromSlash(normalized)))
	if err != nil {
		return "", giterr.New(giterr.KindInvalidPath, "Caminho de arquivo inválido.", err.Error())
	}

	relPath, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", giterr.New(giterr.KindInvalidPath, "Caminho de arquivo inválido.", err.Error())
	}
	if relPath == "." || relPath == ".." || strings.HasPrefix(relPath, ".."+string(os.PathSeparator)) {
		return "", giterr.New(giterr.KindRepoOutOfScope, "Caminho fora do escopo permitido.", normalized)
	}

	return normalized, nil
}

func (e *Engine) cleanPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, giterr.New(giterr.KindInvalidPath, "Nenhum arquivo informado.", "")
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		clean, err := ensurePathWithinRepo(e.root, p)
		if err != nil {
			return nil, err
		}
		out = append(out, clean)
	}
	return out, nil
}
