package model

import "strings"

const (
	RefHeadsPrefix   = "refs/heads/"
	RefRemotesPrefix = "refs/remotes/"
	RefTagsPrefix    = "refs/tags/"
)

// TrackingInfo descreve o upstream de uma branch local.
type TrackingInfo struct {
	Upstream string `json:"upstream"`
	Ahead    int    `json:"ahead"`
	Behind   int    `json:"behind"`
	Gone     bool   `json:"gone,omitempty"`
}

// Branch é identificada pelo nome de ref completo (refs/heads/x, refs/remotes/o/x).
// IsHead vem exclusivamente do marcador HEAD do próprio git.
type Branch struct {
	Name       string        `json:"name"`
	FullName   string        `json:"fullName"`
	IsRemote   bool          `json:"isRemote"`
	IsHead     bool          `json:"isHead"`
	RemoteName string        `json:"remoteName,omitempty"`
	Tracking   *TrackingInfo `json:"tracking,omitempty"`
	TargetSHA  string        `json:"targetSha"`
}

func (b Branch) Equal(other Branch) bool {
	return b.FullName == other.FullName
}

func (b Branch) Key() string {
	return b.FullName
}

// DisplayName remove o prefixo do remoto em branches remotas.
func (b Branch) DisplayName() string {
	if b.IsRemote && b.RemoteName != "" {
		return strings.TrimPrefix(b.Name, b.RemoteName+"/")
	}
	return b.Name
}

func (b Branch) Ahead() int {
	if b.Tracking == nil {
		return 0
	}
	return b.Tracking.Ahead
}

func (b Branch) Behind() int {
	if b.Tracking == nil {
		return 0
	}
	return b.Tracking.Behind
}

// IsRemoteHEADAlias indica o ponteiro simbólico refs/remotes/<remote>/HEAD.
func (b Branch) IsRemoteHEADAlias() bool {
	return b.IsRemote && strings.HasSuffix(b.FullName, "/HEAD")
}

// ShortRefName converte refs/heads/x → x, refs/remotes/o/x → o/x, refs/tags/t → t.
func ShortRefName(fullName string) string {
	for _, prefix := range []string{RefHeadsPrefix, RefRemotesPrefix, RefTagsPrefix} {
		if strings.HasPrefix(fullName, prefix) {
			return strings.TrimPrefix(fullName, prefix)
		}
	}
	return fullName
}
