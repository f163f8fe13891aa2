package model

import "time"

// HeadRef descreve para onde HEAD aponta.
type HeadRef struct {
	Name     string `json:"name,omitempty"`
	FullName string `json:"fullName,omitempty"`
	SHA      string `json:"sha,omitempty"`
	Detached bool   `json:"detached"`
	Unborn   bool   `json:"unborn"`
}

// RepositorySnapshot é o pacote imutável retornado por um refresh completo.
type RepositorySnapshot struct {
	Path           string           `json:"path"`
	Head           HeadRef          `json:"head"`
	Status         RepositoryStatus `json:"status"`
	LocalBranches  []Branch         `json:"localBranches"`
	RemoteBranches []Branch         `json:"remoteBranches"`
	Tags           []Tag            `json:"tags"`
	Remotes        []Remote         `json:"remotes"`
	Stashes        []Stash          `json:"stashes"`
	CapturedAt     time.Time        `json:"capturedAt"`
}

// HeadBranch retorna a branch local marcada como HEAD.
func (s RepositorySnapshot) HeadBranch() (Branch, bool) {
	for _, b := range s.LocalBranches {
		if b.IsHead {
			return b, true
		}
	}
	return Branch{}, false
}

// Signal é o tipo de mudança observada no repositório.
type Signal string

const (
	SignalStatus Signal = "status"
	SignalHead   Signal = "head"
	SignalRefs   Signal = "refs"
	SignalStash  Signal = "stash"
	SignalConfig Signal = "config"
	SignalFull   Signal = "full"
)

func ParseSignal(raw string) Signal {
	switch Signal(raw) {
	case SignalStatus, SignalHead, SignalRefs, SignalStash, SignalConfig:
		return Signal(raw)
	default:
		return SignalFull
	}
}
