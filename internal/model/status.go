package model

// FileStatusType mapeia 1:1 os códigos de uma letra do git.
type FileStatusType string

const (
	StatusAdded       FileStatusType = "A"
	StatusModified    FileStatusType = "M"
	StatusDeleted     FileStatusType = "D"
	StatusRenamed     FileStatusType = "R"
	StatusCopied      FileStatusType = "C"
	StatusUntracked   FileStatusType = "?"
	StatusIgnored     FileStatusType = "!"
	StatusTypeChanged FileStatusType = "T"
	StatusUnmerged    FileStatusType = "U"
)

// FileStatusTypeFromCode converte um código de status; false para ' ' ou '.'.
func FileStatusTypeFromCode(code byte) (FileStatusType, bool) {
	switch code {
	case 'A':
		return StatusAdded, true
	case 'M':
		return StatusModified, true
	case 'D':
		return StatusDeleted, true
	case 'R':
		return StatusRenamed, true
	case 'C':
		return StatusCopied, true
	case '?':
		return StatusUntracked, true
	case '!':
		return StatusIgnored, true
	case 'T':
		return StatusTypeChanged, true
	case 'U':
		return StatusUnmerged, true
	default:
		return "", false
	}
}

func (t FileStatusType) Code() string {
	return string(t)
}

func (t FileStatusType) Label() string {
	switch t {
	case StatusAdded:
		return "added"
	case StatusModified:
		return "modified"
	case StatusDeleted:
		return "deleted"
	case StatusRenamed:
		return "renamed"
	case StatusCopied:
		return "copied"
	case StatusUntracked:
		return "untracked"
	case StatusIgnored:
		return "ignored"
	case StatusTypeChanged:
		return "typeChanged"
	case StatusUnmerged:
		return "unmerged"
	default:
		return "unknown"
	}
}

type FileStatus struct {
	Path         string         `json:"path"`
	OriginalPath string         `json:"originalPath,omitempty"`
	Kind         FileStatusType `json:"kind"`
	Code         string         `json:"code"`
	Additions    int            `json:"additions"`
	Deletions    int            `json:"deletions"`
}

// RepositoryStatus separa as mudanças em buckets. Um caminho em Untracked
// nunca aparece em Staged ou Unstaged.
type RepositoryStatus struct {
	Branch     string       `json:"branch,omitempty"`
	Upstream   string       `json:"upstream,omitempty"`
	HeadSHA    string       `json:"headSha,omitempty"`
	Ahead      int          `json:"ahead"`
	Behind     int          `json:"behind"`
	Staged     []FileStatus `json:"staged"`
	Unstaged   []FileStatus `json:"unstaged"`
	Conflicted []FileStatus `json:"conflicted"`
	Untracked  []string     `json:"untracked"`
}

func NewRepositoryStatus() RepositoryStatus {
	return RepositoryStatus{
		Staged:     make([]FileStatus, 0),
		Unstaged:   make([]FileStatus, 0),
		Conflicted: make([]FileStatus, 0),
		Untracked:  make([]string, 0),
	}
}

func (s RepositoryStatus) HasChanges() bool {
	return len(s.Staged) > 0 || len(s.Unstaged) > 0 || len(s.Conflicted) > 0 || len(s.Untracked) > 0
}

func (s RepositoryStatus) HasConflicts() bool {
	return len(s.Conflicted) > 0
}

// Clone devolve uma cópia independente dos buckets.
func (s RepositoryStatus) Clone() RepositoryStatus {
	out := s
	out.Staged = append(make([]FileStatus, 0, len(s.Staged)), s.Staged...)
	out.Unstaged = append(make([]FileStatus, 0, len(s.Unstaged)), s.Unstaged...)
	out.Conflicted = append(make([]FileStatus, 0, len(s.Conflicted)), s.Conflicted...)
	out.Untracked = append(make([]string, 0, len(s.Untracked)), s.Untracked...)
	return out
}
