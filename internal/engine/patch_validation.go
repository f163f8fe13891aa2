package engine

import (
	"fmt"
	"strconv"
	"strings"

	"repostate/internal/giterr"
)

// ValidatePatch confere que todo caminho citado pelo patch fica dentro de root.
func ValidatePatch(root string, patchText string) error {
	paths, err := PatchPaths(patchText)
	if err != nil {
		return giterr.New(giterr.KindPatchInvalid, "Patch inválido para operação parcial.", err.Error())
	}

	for _, patchPath := range paths {
		if _, pathErr := ensurePathWithinRepo(root, patchPath); pathErr != nil {
			if gitErr := giterr.As(pathErr); gitErr != nil {
				return giterr.New(
					giterr.KindPatchInvalid,
					"Patch contém caminho fora do escopo permitido.",
					fmt.Sprintf("path=%q | %s", patchPath, firstNonEmpty(gitErr.Details, gitErr.Message)),
				)
			}
			return giterr.New(
				giterr.KindPatchInvalid,
				"Patch contém caminho inválido.",
				fmt.Sprintf("path=%q | %s", patchPath, strings.TrimSpace(pathErr.Error())),
			)
		}
	}
	return nil
}

// PatchPaths extrai os caminhos dos cabeçalhos diff --git, ---/+++ e
// rename/copy, sem repetição e na ordem em que aparecem.
func PatchPaths(patchText string) ([]string, error) {
	paths := make([]string, 0, 4)
	seen := make(map[string]struct{})

	addPath := func(raw string) {
		path, ok := DecodePatchPath(raw)
		if !ok {
			return
		}
		if _, exists := seen[path]; exists {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	for _, line := range strings.Split(patchText, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "diff --git "):
			left, right, ok := ParseDiffGitPathPair(strings.TrimPrefix(line, "diff --git "))
			if !ok {
				return nil, fmt.Errorf("header diff --git malformado")
			}
			addPath(left)
			addPath(right)
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			if token, _, ok := consumePatchToken(line[4:]); ok {
				addPath(token)
			}
		case strings.HasPrefix(line, "rename from "), strings.HasPrefix(line, "copy from "):
			_, rest, _ := strings.Cut(line, " from ")
			addPath(strings.TrimSpace(rest))
		case strings.HasPrefix(line, "rename to "), strings.HasPrefix(line, "copy to "):
			_, rest, _ := strings.Cut(line, " to ")
			addPath(strings.TrimSpace(rest))
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("não foi possível identificar caminhos válidos no patch")
	}
	return paths, nil
}

// ParseDiffGitPathPair separa os dois tokens de "diff --git a/x b/y",
// respeitando caminhos entre aspas.
func ParseDiffGitPathPair(raw string) (string, string, bool) {
	left, rest, ok := consumePatchToken(raw)
	if !ok {
		return "", "", false
	}
	right, _, ok := consumePatchToken(rest)
	if !ok {
		return "", "", false
	}
	return left, right, true
}

func consumePatchToken(raw string) (string, string, bool) {
	trimmed := strings.TrimLeft(raw, " \t")
	if trimmed == "" {
		return "", "", false
	}

	if trimmed[0] != '"' {
		if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
			return trimmed[:idx], trimmed[idx:], true
		}
		return trimmed, "", true
	}

	escaped := false
	for i := 1; i < len(trimmed); i++ {
		switch {
		case escaped:
			escaped = false
		case trimmed[i] == '\\':
			escaped = true
		case trimmed[i] == '"':
			return trimmed[:i+1], trimmed[i+1:], true
		}
	}
	return "", "", false
}

// DecodePatchPath remove aspas e o prefixo a/ ou b/. /dev/null não é caminho.
func DecodePatchPath(raw string) (string, bool) {
	token := strings.TrimSpace(raw)
	if token == "" || token == "/dev/null" {
		return "", false
	}

	if strings.HasPrefix(token, "\"") {
		unquoted, err := strconv.Unquote(token)
		if err != nil {
			return "", false
		}
		token = strings.TrimSpace(unquoted)
	}
	if token == "" || token == "/dev/null" {
		return "", false
	}
	if strings.HasPrefix(token, "a/") || strings.HasPrefix(token, "b/") {
		token = token[2:]
	}
	if token == "" {
		return "", false
	}
	return token, true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
