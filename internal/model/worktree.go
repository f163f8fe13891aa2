package model

import "path/filepath"

type Worktree struct {
	Path        string `json:"path"`
	Branch      string `json:"branch,omitempty"`
	HeadSHA     string `json:"headSha"`
	IsMain      bool   `json:"isMain"`
	IsBare      bool   `json:"isBare,omitempty"`
	IsDetached  bool   `json:"isDetached"`
	IsLocked    bool   `json:"isLocked"`
	LockReason  string `json:"lockReason,omitempty"`
	IsPrunable  bool   `json:"isPrunable"`
	PruneReason string `json:"pruneReason,omitempty"`
}

func (w Worktree) Name() string {
	return filepath.Base(w.Path)
}
