package model

import (
	"net/url"
	"strings"
)

// Provider classifica o host de um remoto.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderBitbucket Provider = "bitbucket"
	ProviderAzure     Provider = "azure"
	ProviderGitea     Provider = "gitea"
	ProviderUnknown   Provider = "unknown"
)

// Remote com PushURL vazio usa FetchURL para push.
type Remote struct {
	Name     string `json:"name"`
	FetchURL string `json:"fetchUrl"`
	PushURL  string `json:"pushUrl,omitempty"`
}

func (r Remote) EffectivePushURL() string {
	if strings.TrimSpace(r.PushURL) != "" {
		return r.PushURL
	}
	return r.FetchURL
}

func (r Remote) Provider() Provider {
	return ProviderForURL(r.FetchURL)
}

// OwnerRepo extrai owner/repo do fetch URL.
func (r Remote) OwnerRepo() (string, string, bool) {
	return ParseOwnerRepo(r.FetchURL)
}

// Host retorna o host do fetch URL (sem usuário/porta).
func (r Remote) Host() string {
	host, _ := splitRemoteURL(r.FetchURL)
	return host
}

func ProviderForURL(rawURL string) Provider {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "github"):
		return ProviderGitHub
	case strings.Contains(lower, "gitlab"):
		return ProviderGitLab
	case strings.Contains(lower, "bitbucket"):
		return ProviderBitbucket
	case strings.Contains(lower, "dev.azure.com"), strings.Contains(lower, "visualstudio.com"):
		return ProviderAzure
	case strings.Contains(lower, "gitea"):
		return ProviderGitea
	default:
		return ProviderUnknown
	}
}

// ParseOwnerRepo aceita as formas SSH (user@host:owner/repo.git) e
// HTTPS/ssh:// (https://host/owner/repo.git). O sufixo .git é removido
// sem diferenciar maiúsculas.
func ParseOwnerRepo(rawURL string) (string, string, bool) {
	_, repoPath := splitRemoteURL(rawURL)
	repoPath = strings.Trim(repoPath, "/")
	if len(repoPath) >= 4 && strings.EqualFold(repoPath[len(repoPath)-4:], ".git") {
		repoPath = repoPath[:len(repoPath)-4]
	}
	repoPath = strings.Trim(repoPath, "/")

	parts := strings.Split(repoPath, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner := strings.Join(parts[:len(parts)-1], "/")
	repo := parts[len(parts)-1]
	if owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}

// splitRemoteURL separa host e caminho de URLs git nas formas scp-like e URL.
func splitRemoteURL(rawURL string) (string, string) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", ""
	}

	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", ""
		}
		return parsed.Hostname(), parsed.Path
	}

	// scp-like: [user@]host:path
	hostPart, pathPart, ok := strings.Cut(trimmed, ":")
	if !ok {
		return "", trimmed
	}
	if at := strings.LastIndex(hostPart, "@"); at >= 0 {
		hostPart = hostPart[at+1:]
	}
	return hostPart, pathPart
}
