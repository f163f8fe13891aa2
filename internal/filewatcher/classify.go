package filewatcher

import (
	"path"
	"path/filepath"
	"strings"

	"repostate/internal/model"
)

var headFiles = map[string]struct{}{
	"HEAD":        {},
	"ORIG_HEAD":   {},
	"MERGE_HEAD":  {},
	"REBASE_HEAD": {},
}

// ignoredPrefixes são áreas do .git que não mudam nenhum dado cacheado.
var ignoredPrefixes = []string{
	"objects/",
	"logs/",
	"hooks/",
	"info/",
	"lfs/",
	"modules/",
	"worktrees/",
	"sequencer/",
}

var ignoredNames = map[string]struct{}{
	"COMMIT_EDITMSG": {},
	"description":    {},
	"gc.log":         {},
	"gc.pid":         {},
}

// ClassifySignal traduz o caminho (relativo ao diretório git, com "/") no
// sinal correspondente. ok=false indica arquivo ignorável.
func ClassifySignal(rel string) (model.Signal, bool) {
	rel = strings.TrimSuffix(path.Clean(filepath.ToSlash(rel)), ".lock")
	if rel == "." || rel == "" {
		return "", false
	}

	switch {
	case rel == "index":
		return model.SignalStatus, true
	case isHeadFile(rel):
		return model.SignalHead, true
	case rel == "refs/stash" || rel == "logs/refs/stash":
		return model.SignalStash, true
	case strings.HasPrefix(rel+"/", "refs/heads/"),
		strings.HasPrefix(rel+"/", "refs/tags/"),
		strings.HasPrefix(rel+"/", "refs/remotes/"),
		rel == "packed-refs",
		rel == "FETCH_HEAD":
		return model.SignalRefs, true
	case rel == "config":
		return model.SignalConfig, true
	case isIgnorable(rel):
		return "", false
	}
	return model.SignalFull, true
}

func isHeadFile(rel string) bool {
	if _, ok := headFiles[rel]; ok {
		return true
	}
	return rel == "rebase-merge" || strings.HasPrefix(rel, "rebase-merge/") ||
		rel == "rebase-apply" || strings.HasPrefix(rel, "rebase-apply/")
}

func isIgnorable(rel string) bool {
	if _, ok := ignoredNames[path.Base(rel)]; ok {
		return true
	}
	for _, prefix := range ignoredPrefixes {
		if strings.HasPrefix(rel+"/", prefix) {
			return true
		}
	}
	return strings.HasSuffix(rel, ".tmp") || strings.HasSuffix(rel, "~")
}
