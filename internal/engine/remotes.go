package engine

import (
	"context"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// Remotes lê remote.<name>.url/pushurl do config com -z. Exit 1 significa
// que nenhuma chave casou, ou seja, nenhum remoto.
func (e *Engine) Remotes(ctx context.Context) ([]model.Remote, error) {
	result, err := e.run(ctx, gitexec.ClassRead,
		"config", "-z", "--get-regexp", `^remote\..*\.(url|pushurl)$`)
	if err != nil {
		return nil, err
	}
	if result.ExitCode == 1 && strings.TrimSpace(result.Stderr) == "" {
		return []model.Remote{}, nil
	}
	if result.ExitCode != 0 {
		return nil, e.classify(giterr.OpRemote, result, nil)
	}
	return ParseRemoteConfig(result.Text()), nil
}

// LegacyRemotes usa `git remote -v`.
func (e *Engine) LegacyRemotes(ctx context.Context) ([]model.Remote, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRemote, "remote", "-v")
	if err != nil {
		return nil, err
	}
	return ParseRemoteVerbose(result.Text()), nil
}

// ParseRemoteConfig interpreta registros "chave\nvalor\x00".
func ParseRemoteConfig(raw string) []model.Remote {
	order := make([]string, 0)
	byName := make(map[string]*model.Remote)

	for _, record := range strings.Split(raw, "\x00") {
		key, value, ok := strings.Cut(record, "\n")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		rest, found := strings.CutPrefix(key, "remote.")
		if !found {
			continue
		}
		dot := strings.LastIndex(rest, ".")
		if dot <= 0 {
			continue
		}
		name, field := rest[:dot], strings.ToLower(rest[dot+1:])

		remote, exists := byName[name]
		if !exists {
			remote = &model.Remote{Name: name}
			byName[name] = remote
			order = append(order, name)
		}
		switch field {
		case "url":
			if remote.FetchURL == "" {
				remote.FetchURL = strings.TrimSpace(value)
			}
		case "pushurl":
			if remote.PushURL == "" {
				remote.PushURL = strings.TrimSpace(value)
			}
		}
	}

	out := make([]model.Remote, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// ParseRemoteVerbose interpreta "origin\turl (fetch)" / "(push)".
func ParseRemoteVerbose(raw string) []model.Remote {
	order := make([]string, 0)
	byName := make(map[string]*model.Remote)

	for _, line := range strings.Split(raw, "\n") {
		name, rest, ok := strings.Cut(strings.TrimRight(line, "\r"), "\t")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		url := strings.TrimSpace(rest)
		kind := ""
		if idx := strings.LastIndex(url, " ("); idx >= 0 {
			kind = strings.Trim(url[idx+2:], "()")
			url = strings.TrimSpace(url[:idx])
		}

		remote, exists := byName[name]
		if !exists {
			remote = &model.Remote{Name: name}
			byName[name] = remote
			order = append(order, name)
		}
		switch kind {
		case "push":
			if url != remote.FetchURL {
				remote.PushURL = url
			}
		default:
			remote.FetchURL = url
		}
	}

	out := make([]model.Remote, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func (e *Engine) AddRemote(ctx context.Context, name string, url string) error {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if err := validateRefName(name, giterr.KindRemoteFailed); err != nil {
		return err
	}
	if url == "" || strings.HasPrefix(url, "-") {
		return giterr.New(giterr.KindRemoteFailed, "URL de remoto inválida.", url)
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpRemote, action: "remote_add", args: []string{"remote", "add", name, url}})
	return err
}

func (e *Engine) RemoveRemote(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := validateRefName(name, giterr.KindRemoteFailed); err != nil {
		return err
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpRemote, action: "remote_remove", args: []string{"remote", "remove", name}})
	return err
}
