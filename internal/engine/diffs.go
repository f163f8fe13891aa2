package engine

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
)

// DiffRequest descreve o diff de um arquivo do working tree ou do stage.
type DiffRequest struct {
	Path          string
	Staged        bool
	Untracked     bool
	ContextLines  int
	DetectRenames bool
}

// DiffArgs monta os argumentos do git diff para req. Arquivos não
// rastreados são comparados com /dev/null via --no-index.
func (e *Engine) DiffArgs(req DiffRequest) ([]string, error) {
	path, err := ensurePathWithinRepo(e.root, req.Path)
	if err != nil {
		return nil, err
	}
	contextLines := req.ContextLines
	if contextLines < 0 {
		contextLines = 0
	}

	args := []string{"diff", "--no-color", "--no-ext-diff", "-U" + strconv.Itoa(contextLines)}
	if req.Untracked {
		return append(args, "--no-index", "--", os.DevNull, path), nil
	}
	if req.Staged {
		args = append(args, "--cached")
	}
	if req.DetectRenames {
		args = append(args, "--find-renames")
	} else {
		args = append(args, "--no-renames")
	}
	return append(args, "--", path), nil
}

// DiffRaw lê o diff inteiro em memória, com o teto de saída aplicado.
func (e *Engine) DiffRaw(ctx context.Context, req DiffRequest) (gitexec.Result, error) {
	args, err := e.DiffArgs(req)
	if err != nil {
		return gitexec.Result{}, err
	}
	request := e.request(gitexec.ClassRead, args...)
	request.MaxOutput = e.maxOutput
	result, err := e.runner.Run(ctx, request)
	if err != nil {
		return result, err
	}
	if !diffExitOK(req, result.ExitCode) {
		return result, e.classify(giterr.OpRead, result, nil)
	}
	return result, nil
}

// DiffStream entrega o diff linha a linha. A política Block garante que
// nenhuma linha se perca; o chamador deve fechar o stream.
func (e *Engine) DiffStream(ctx context.Context, req DiffRequest, bufferSize int) (*gitexec.LineStream, error) {
	args, err := e.DiffArgs(req)
	if err != nil {
		return nil, err
	}
	return e.runner.Stream(ctx, e.request(gitexec.ClassRead, args...), gitexec.StreamOptions{
		BufferSize: bufferSize,
		Overflow:   gitexec.Block,
	})
}

// DiffExitOK indica se o exit code de um diff terminado é sucesso.
func (e *Engine) DiffExitOK(req DiffRequest, exitCode int) bool {
	return diffExitOK(req, exitCode)
}

// --no-index sai com 1 quando há diferença.
func diffExitOK(req DiffRequest, exitCode int) bool {
	if req.Untracked {
		return exitCode == 0 || exitCode == 1
	}
	return exitCode == 0
}

// ClassifyDiffFailure converte o resultado de um diff com falha em erro.
func (e *Engine) ClassifyDiffFailure(exitCode int, stderr string) error {
	return e.classify(giterr.OpRead, gitexec.Result{ExitCode: exitCode, Stderr: stderr}, nil)
}

// DiffNumstat devolve adições/remoções do arquivo. ok=false quando o
// arquivo não tem mudanças.
func (e *Engine) DiffNumstat(ctx context.Context, req DiffRequest) (NumstatEntry, bool, error) {
	args, err := e.DiffArgs(req)
	if err != nil {
		return NumstatEntry{}, false, err
	}
	path := args[len(args)-1]
	var numstatArgs []string
	if req.Untracked {
		numstatArgs = []string{"diff", "--numstat", "--no-index", "--", os.DevNull, path}
	} else {
		numstatArgs = []string{"diff", "--numstat", "--no-renames"}
		if req.Staged {
			numstatArgs = append(numstatArgs, "--cached")
		}
		numstatArgs = append(numstatArgs, "--", path)
	}

	result, err := e.run(ctx, gitexec.ClassRead, numstatArgs...)
	if err != nil {
		return NumstatEntry{}, false, err
	}
	if !diffExitOK(req, result.ExitCode) {
		return NumstatEntry{}, false, e.classify(giterr.OpRead, result, nil)
	}
	for _, line := range strings.Split(result.Text(), "\n") {
		if entry, ok := ParseNumstatLine(strings.TrimRight(line, "\r")); ok {
			return entry, true, nil
		}
	}
	return NumstatEntry{}, false, nil
}

// FileSize mede o tamanho do arquivo do lado "novo" do diff: blob do index
// quando staged, arquivo em disco caso contrário.
func (e *Engine) FileSize(ctx context.Context, path string, staged bool) (int64, error) {
	clean, err := ensurePathWithinRepo(e.root, path)
	if err != nil {
		return 0, err
	}
	if !staged {
		info, statErr := os.Stat(filepath.Join(e.root, filepath.FromSlash(clean)))
		if statErr != nil {
			if os.IsNotExist(statErr) {
				return 0, nil
			}
			return 0, giterr.New(giterr.KindInvalidPath, "Falha ao ler arquivo.", statErr.Error())
		}
		return info.Size(), nil
	}

	result, err := e.run(ctx, gitexec.ClassRead, "cat-file", "-s", ":"+clean)
	if err != nil {
		return 0, err
	}
	if result.ExitCode != 0 {
		// Removido do index: não há lado novo.
		return 0, nil
	}
	size, convErr := strconv.ParseInt(strings.TrimSpace(result.Text()), 10, 64)
	if convErr != nil {
		return 0, giterr.New(giterr.KindCommandFailed, "Tamanho de blob inválido.", result.Text())
	}
	return size, nil
}

// IsTracked indica se path está no index.
func (e *Engine) IsTracked(ctx context.Context, path string) (bool, error) {
	clean, err := ensurePathWithinRepo(e.root, path)
	if err != nil {
		return false, err
	}
	result, err := e.run(ctx, gitexec.ClassStatus, "ls-files", "--error-unmatch", "--", clean)
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}

// CommitDiffRaw lê o patch de um commit contra o primeiro pai.
func (e *Engine) CommitDiffRaw(ctx context.Context, sha string, path string) (gitexec.Result, error) {
	sha = strings.TrimSpace(sha)
	if sha == "" || strings.HasPrefix(sha, "-") {
		return gitexec.Result{}, giterr.New(giterr.KindRefNotFound, "Commit inválido.", sha)
	}
	args := []string{"show", "--format=", "--no-color", "--no-ext-diff", "--first-parent", sha}
	if path = strings.TrimSpace(path); path != "" {
		clean, err := ensurePathWithinRepo(e.root, path)
		if err != nil {
			return gitexec.Result{}, err
		}
		args = append(args, "--", clean)
	}
	return e.readCapped(ctx, giterr.OpRead, args...)
}
