package engine

import (
	"context"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
)

// writeCommand descreve uma mutação. globalArgs vão antes do subcomando e
// não aparecem no diagnóstico (podem carregar cabeçalhos de autenticação).
type writeCommand struct {
	op         giterr.Operation
	action     string
	class      gitexec.Class
	stdin      string
	globalArgs []string
	args       []string
}

// write executa uma mutação com retry de index.lock e diagnóstico por tentativa.
// Exit != 0 sempre vira erro classificado; mutações nunca falham em silêncio.
func (e *Engine) write(ctx context.Context, cmd writeCommand) (gitexec.Result, error) {
	if cmd.class == "" {
		cmd.class = gitexec.ClassWrite
	}

	trace := newCommandTrace(cmd.action, cmd.args)
	e.publish(trace, CommandStatusStarted, nil)

	req := e.request(cmd.class, append(append([]string(nil), cmd.globalArgs...), cmd.args...)...)
	req.Stdin = cmd.stdin

	result, err := gitexec.RunWithRetry(ctx, e.runner, req, gitexec.RetryPolicy{
		Sleep: e.sleep,
		OnAttempt: func(attempt int, result gitexec.Result, _ error, willRetry bool) {
			trace.observeAttempt(attempt, result.ExitCode, result.Stderr)
			if willRetry {
				e.publish(trace, CommandStatusRetried, nil)
			}
		},
	})
	if err != nil {
		mapped := giterr.Wrap(giterr.KindCommandFailed, "Falha ao executar comando Git.", result.Stderr, result.ExitCode, err)
		e.publish(trace, CommandStatusFailed, mapped)
		return result, mapped
	}
	if result.ExitCode != 0 {
		// merge/commit escrevem o motivo (CONFLICT, nothing to commit) em stdout.
		failure := result
		if out := strings.TrimSpace(result.Text()); out != "" {
			failure.Stderr = strings.TrimSpace(result.Stderr + "\n" + out)
		}
		classified := e.classify(cmd.op, failure, nil)
		e.publish(trace, CommandStatusFailed, classified)
		return result, classified
	}

	e.publish(trace, CommandStatusSucceeded, nil)
	return result, nil
}
