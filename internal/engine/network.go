package engine

import (
	"context"
	"encoding/base64"
	"log"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

const defaultRemote = "origin"

type FetchOptions struct {
	Remote string
	All    bool
	Prune  bool
	Tags   bool
}

type PullOptions struct {
	Remote string
	Branch string
	Rebase bool
}

type PushOptions struct {
	Remote         string
	Branch         string
	SetUpstream    bool
	ForceWithLease bool
	Tags           bool
}

func (e *Engine) Fetch(ctx context.Context, opts FetchOptions) error {
	args := []string{"fetch"}
	remote := ""
	if opts.All {
		args = append(args, "--all")
	} else {
		remote = remoteOrDefault(opts.Remote)
		if err := validateRefName(remote, giterr.KindFetchFailed); err != nil {
			return err
		}
	}
	if opts.Prune {
		args = append(args, "--prune")
	}
	if opts.Tags {
		args = append(args, "--tags")
	}
	if remote != "" {
		args = append(args, remote)
	}

	globalArgs, err := e.remoteAuthArgs(ctx, remote)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpFetch, action: "fetch", class: gitexec.ClassNetwork, globalArgs: globalArgs, args: args})
	return err
}

func (e *Engine) Pull(ctx context.Context, opts PullOptions) error {
	remote := remoteOrDefault(opts.Remote)
	if err := validateRefName(remote, giterr.KindPullFailed); err != nil {
		return err
	}
	args := []string{"pull"}
	if opts.Rebase {
		args = append(args, "--rebase")
	} else {
		args = append(args, "--no-rebase")
	}
	args = append(args, remote)
	if branch := strings.TrimSpace(opts.Branch); branch != "" {
		if err := validateRefName(branch, giterr.KindPullFailed); err != nil {
			return err
		}
		args = append(args, branch)
	}

	globalArgs, err := e.remoteAuthArgs(ctx, remote)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpPull, action: "pull", class: gitexec.ClassNetwork, globalArgs: globalArgs, args: args})
	return err
}

func (e *Engine) Push(ctx context.Context, opts PushOptions) error {
	remote := remoteOrDefault(opts.Remote)
	if err := validateRefName(remote, giterr.KindPushFailed); err != nil {
		return err
	}
	args := []string{"push"}
	if opts.SetUpstream {
		args = append(args, "--set-upstream")
	}
	if opts.ForceWithLease {
		args = append(args, "--force-with-lease")
	}
	if opts.Tags {
		args = append(args, "--tags")
	}
	args = append(args, remote)
	if branch := strings.TrimSpace(opts.Branch); branch != "" {
		if err := validateRefName(branch, giterr.KindPushFailed); err != nil {
			return err
		}
		args = append(args, branch)
	}

	globalArgs, err := e.remoteAuthArgs(ctx, remote)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpPush, action: "push", class: gitexec.ClassNetwork, globalArgs: globalArgs, args: args})
	return err
}

// DeleteRemoteBranch remove branch do remoto via push --delete.
func (e *Engine) DeleteRemoteBranch(ctx context.Context, remote string, branch string) error {
	remote = remoteOrDefault(remote)
	branch = strings.TrimSpace(branch)
	if err := validateRefName(remote, giterr.KindPushFailed); err != nil {
		return err
	}
	if err := validateRefName(branch, giterr.KindBranchDeleteFailed); err != nil {
		return err
	}
	globalArgs, err := e.remoteAuthArgs(ctx, remote)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{
		op:         giterr.OpPush,
		action:     "push_delete",
		class:      gitexec.ClassNetwork,
		globalArgs: globalArgs,
		args:       []string{"push", remote, "--delete", branch},
	})
	return err
}

func remoteOrDefault(remote string) string {
	if trimmed := strings.TrimSpace(remote); trimmed != "" {
		return trimmed
	}
	return defaultRemote
}

// remoteAuthArgs resolve a URL do remoto e, se houver token para o host,
// devolve o cabeçalho de autenticação como argumento global (-c).
func (e *Engine) remoteAuthArgs(ctx context.Context, remote string) ([]string, error) {
	if e.credentials == nil || remote == "" {
		return nil, nil
	}
	result, err := e.run(ctx, gitexec.ClassStatus, "remote", "get-url", remote)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, e.classify(giterr.OpRemote, result, nil)
	}
	return authHeaderArgs(ctx, e.credentials, strings.TrimSpace(result.Text()))
}

// authHeaderArgs só injeta token em remotos HTTP(S); SSH usa as chaves do agente.
func authHeaderArgs(ctx context.Context, credentials TokenProvider, remoteURL string) ([]string, error) {
	if credentials == nil {
		return nil, nil
	}
	lower := strings.ToLower(strings.TrimSpace(remoteURL))
	if !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "http://") {
		return nil, nil
	}

	host := model.Remote{FetchURL: remoteURL}.Host()
	if host == "" {
		return nil, nil
	}
	token, err := credentials.Token(ctx, host)
	if err != nil {
		log.Printf("[Engine] credential lookup failed for %s: %v", host, err)
		return nil, nil
	}
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + strings.TrimSpace(token)))
	return []string{"-c", "http.extraHeader=Authorization: Basic " + basic}, nil
}
