package giterr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifica um tipo de falha estável que a UI pode tratar por padrão.
type Kind string

const (
	KindNotARepository       Kind = "E_NOT_A_REPOSITORY"
	KindNoCommits            Kind = "E_NO_COMMITS"
	KindInitFailed           Kind = "E_INIT_FAILED"
	KindCloneFailed          Kind = "E_CLONE_FAILED"
	KindCommandFailed        Kind = "E_COMMAND_FAILED"
	KindBranchCreateFailed   Kind = "E_BRANCH_CREATE_FAILED"
	KindBranchDeleteFailed   Kind = "E_BRANCH_DELETE_FAILED"
	KindBranchNotMerged      Kind = "E_BRANCH_NOT_MERGED"
	KindBranchExists         Kind = "E_BRANCH_EXISTS"
	KindCheckoutFailed       Kind = "E_CHECKOUT_FAILED"
	KindCheckoutDirtyTree    Kind = "E_CHECKOUT_DIRTY_TREE"
	KindCommitFailed         Kind = "E_COMMIT_FAILED"
	KindNothingToCommit      Kind = "E_NOTHING_TO_COMMIT"
	KindStageFailed          Kind = "E_STAGE_FAILED"
	KindUnstageFailed        Kind = "E_UNSTAGE_FAILED"
	KindDiscardFailed        Kind = "E_DISCARD_FAILED"
	KindTagCreateFailed      Kind = "E_TAG_CREATE_FAILED"
	KindTagDeleteFailed      Kind = "E_TAG_DELETE_FAILED"
	KindFetchFailed          Kind = "E_FETCH_FAILED"
	KindPullFailed           Kind = "E_PULL_FAILED"
	KindPullUncommitted      Kind = "E_PULL_UNCOMMITTED_CHANGES"
	KindPushFailed           Kind = "E_PUSH_FAILED"
	KindPushRejected         Kind = "E_PUSH_REJECTED_NON_FAST_FORWARD"
	KindPushNoUpstream       Kind = "E_PUSH_NO_UPSTREAM"
	KindAuthenticationFailed Kind = "E_AUTHENTICATION_FAILED"
	KindRemoteFailed         Kind = "E_REMOTE_FAILED"
	KindStashFailed          Kind = "E_STASH_FAILED"
	KindStashApplyFailed     Kind = "E_STASH_APPLY_FAILED"
	KindStashDropFailed      Kind = "E_STASH_DROP_FAILED"
	KindNothingToStash       Kind = "E_NOTHING_TO_STASH"
	KindMergeFailed          Kind = "E_MERGE_FAILED"
	KindMergeConflict        Kind = "E_MERGE_CONFLICT"
	KindRebaseFailed         Kind = "E_REBASE_FAILED"
	KindRebaseConflict       Kind = "E_REBASE_CONFLICT"
	KindRefNotFound          Kind = "E_REF_NOT_FOUND"
	KindWorktreeAddFailed    Kind = "E_WORKTREE_ADD_FAILED"
	KindWorktreeRemoveFailed Kind = "E_WORKTREE_REMOVE_FAILED"
	KindWorktreeLockFailed   Kind = "E_WORKTREE_LOCK_FAILED"
	KindWorktreeUnlockFailed Kind = "E_WORKTREE_UNLOCK_FAILED"

	KindCannotOperateOnContextLine Kind = "E_CANNOT_OPERATE_ON_CONTEXT_LINE"
	KindInvalidLineType            Kind = "E_INVALID_LINE_TYPE"
	KindPatchApplyFailed           Kind = "E_PATCH_APPLY_FAILED"
	KindPatchInvalid               Kind = "E_PATCH_INVALID"
	KindMalformedHunkHeader        Kind = "E_MALFORMED_HUNK_HEADER"
	KindInvalidEncoding            Kind = "E_INVALID_ENCODING"

	KindInvalidPath        Kind = "E_INVALID_PATH"
	KindRepoOutOfScope     Kind = "E_REPO_OUT_OF_SCOPE"
	KindTimeout            Kind = "E_TIMEOUT"
	KindCanceled           Kind = "E_CANCELED"
	KindServiceUnavailable Kind = "E_SERVICE_UNAVAILABLE"
	KindGitUnavailable     Kind = "E_GIT_UNAVAILABLE"
	KindUnknown            Kind = "E_UNKNOWN"
)

// Error implementa o contrato normalizado de erro do motor de repositório.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"kind":"%s","message":"%s","details":"%s"}`, e.Kind, sanitizeJSONText(e.Message), sanitizeJSONText(e.Details))
	}
	return string(payload)
}

// Is permite errors.Is(err, &Error{Kind: ...}) comparar apenas pelo Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return other.Kind == e.Kind
}

func New(kind Kind, message, details string) *Error {
	return &Error{
		Kind:    Kind(strings.TrimSpace(string(kind))),
		Message: strings.TrimSpace(message),
		Details: strings.TrimSpace(details),
	}
}

// WithHint retorna uma cópia com a ação de recuperação sugerida.
func (e *Error) WithHint(hint string) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.Hint = strings.TrimSpace(hint)
	return &out
}

func As(err error) *Error {
	if err == nil {
		return nil
	}

	var gitErr *Error
	if errors.As(err, &gitErr) && gitErr != nil {
		return gitErr
	}

	raw := strings.TrimSpace(err.Error())
	if raw == "" {
		return nil
	}

	var parsed Error
	if parseErr := json.Unmarshal([]byte(raw), &parsed); parseErr == nil && strings.TrimSpace(string(parsed.Kind)) != "" {
		return &parsed
	}

	return nil
}

// KindOf retorna o Kind de err, ou KindUnknown.
func KindOf(err error) Kind {
	if gitErr := As(err); gitErr != nil {
		return gitErr.Kind
	}
	if err == nil {
		return ""
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	if gitErr := As(err); gitErr != nil {
		if strings.TrimSpace(gitErr.Message) == "" {
			gitErr.Message = "Falha ao executar operação Git"
		}
		if strings.TrimSpace(string(gitErr.Kind)) == "" {
			gitErr.Kind = KindUnknown
		}
		return gitErr
	}

	if mapped := FromContext(err, ""); mapped != nil {
		return mapped
	}

	return New(KindUnknown, "Falha ao executar operação Git", err.Error())
}

// FromContext mapeia deadline/cancelamento para Timeout/Canceled; nil caso contrário.
func FromContext(err error, details string) *Error {
	if err == nil {
		return nil
	}

	if gitErr := As(err); gitErr != nil {
		if gitErr.Kind == KindTimeout || gitErr.Kind == KindCanceled {
			return gitErr
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindTimeout, "Comando Git excedeu o tempo limite.", details)
	}
	if errors.Is(err, context.Canceled) {
		return New(KindCanceled, "Comando Git cancelado.", details)
	}
	return nil
}

// FormatFailureDetails junta stderr, exit code e erro em uma linha.
func FormatFailureDetails(stderr string, exitCode int, err error) string {
	parts := make([]string, 0, 3)

	trimmedStderr := strings.TrimSpace(stderr)
	if trimmedStderr != "" {
		parts = append(parts, trimmedStderr)
	}
	if exitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit_code=%d", exitCode))
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		parts = append(parts, err.Error())
	}

	return strings.Join(parts, " | ")
}

// Wrap preserva um *Error já classificado ou cria um novo com os detalhes do comando.
func Wrap(kind Kind, message string, stderr string, exitCode int, runErr error) error {
	if gitErr := As(runErr); gitErr != nil {
		return gitErr
	}
	if mapped := FromContext(runErr, FormatFailureDetails(stderr, exitCode, nil)); mapped != nil {
		return mapped
	}
	return New(kind, message, FormatFailureDetails(stderr, exitCode, runErr))
}

func sanitizeJSONText(input string) string {
	output := strings.ReplaceAll(input, `"`, `'`)
	output = strings.ReplaceAll(output, "\n", " ")
	return strings.TrimSpace(output)
}
