package giterr

import (
	"strings"
	"sync"
)

// Operation nomeia a operação Git cuja falha está sendo classificada.
type Operation string

const (
	OpRead         Operation = "read"
	OpInit         Operation = "init"
	OpClone        Operation = "clone"
	OpBranchCreate Operation = "branch_create"
	OpBranchDelete Operation = "branch_delete"
	OpCheckout     Operation = "checkout"
	OpCommit       Operation = "commit"
	OpStage        Operation = "stage"
	OpUnstage      Operation = "unstage"
	OpDiscard      Operation = "discard"
	OpApplyPatch   Operation = "apply_patch"
	OpTagCreate    Operation = "tag_create"
	OpTagDelete    Operation = "tag_delete"
	OpFetch        Operation = "fetch"
	OpPull         Operation = "pull"
	OpPush         Operation = "push"
	OpRemote       Operation = "remote"
	OpStash        Operation = "stash"
	OpStashApply   Operation = "stash_apply"
	OpStashDrop    Operation = "stash_drop"
	OpMerge        Operation = "merge"
	OpRebase       Operation = "rebase"
	OpWorktreeAdd  Operation = "worktree_add"
	OpWorktreeRm   Operation = "worktree_remove"
	OpWorktreeLock Operation = "worktree_lock"
	OpWorktreeOpen Operation = "worktree_unlock"
)

// Rule associa um trecho de stderr (case-insensitive) a um Kind e dica de recuperação.
type Rule struct {
	Contains []string
	Kind     Kind
	Message  string
	Hint     string
}

func (r Rule) matches(lowerStderr string) bool {
	if len(r.Contains) == 0 {
		return false
	}
	for _, needle := range r.Contains {
		if strings.Contains(lowerStderr, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

type fallback struct {
	kind    Kind
	message string
}

// Classifier mapeia stderr + exit code para um Kind nomeado, por operação.
// Regras comuns (repositório ausente, sem commits, autenticação) vêm primeiro;
// entre as regras da operação, as registradas depois têm prioridade.
type Classifier struct {
	mu        sync.RWMutex
	rules     map[Operation][]Rule
	fallbacks map[Operation]fallback
}

var sharedRules = []Rule{
	{Contains: []string{"not a git repository"}, Kind: KindNotARepository, Message: "O caminho não é um repositório Git."},
	{Contains: []string{"does not have any commits yet", "bad default revision 'head'", "ambiguous argument 'head'"}, Kind: KindNoCommits, Message: "O repositório ainda não possui commits.", Hint: "Crie o primeiro commit."},
	{Contains: []string{"authentication failed", "could not read username", "permission denied (publickey)", "terminal prompts disabled"}, Kind: KindAuthenticationFailed, Message: "Falha de autenticação com o remoto.", Hint: "Verifique as credenciais do remoto."},
}

// NewClassifier cria um classificador com o conjunto padrão de regras.
func NewClassifier() *Classifier {
	c := &Classifier{
		rules:     make(map[Operation][]Rule),
		fallbacks: make(map[Operation]fallback),
	}
	for op, fb := range defaultFallbacks {
		c.fallbacks[op] = fb
	}
	for op, rules := range defaultRules {
		c.rules[op] = append([]Rule(nil), rules...)
	}
	return c
}

// Register adiciona uma regra com prioridade sobre as existentes para op.
func (c *Classifier) Register(op Operation, rule Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules[op] = append([]Rule{rule}, c.rules[op]...)
}

// Classify converte uma falha de comando em *Error. Retorna nil quando
// runErr é nil e exitCode é zero.
func (c *Classifier) Classify(op Operation, stderr string, exitCode int, runErr error) error {
	if runErr == nil && exitCode == 0 {
		return nil
	}
	if gitErr := As(runErr); gitErr != nil {
		return gitErr
	}
	details := FormatFailureDetails(stderr, exitCode, runErr)
	if mapped := FromContext(runErr, details); mapped != nil {
		return mapped
	}

	lower := strings.ToLower(stderr)

	c.mu.RLock()
	rules := c.rules[op]
	fb, ok := c.fallbacks[op]
	c.mu.RUnlock()

	for _, set := range [][]Rule{sharedRules, rules} {
		for _, rule := range set {
			if rule.matches(lower) {
				return New(rule.Kind, rule.Message, details).WithHint(rule.Hint)
			}
		}
	}

	if !ok {
		fb = fallback{kind: KindCommandFailed, message: "Falha ao executar comando Git."}
	}
	return New(fb.kind, fb.message, details)
}

var defaultClassifier = NewClassifier()

// Classify usa o classificador global do pacote.
func Classify(op Operation, stderr string, exitCode int, runErr error) error {
	return defaultClassifier.Classify(op, stderr, exitCode, runErr)
}

// Register adiciona uma regra ao classificador global.
func Register(op Operation, rule Rule) {
	defaultClassifier.Register(op, rule)
}

var defaultFallbacks = map[Operation]fallback{
	OpRead:         {KindCommandFailed, "Falha ao ler dados do repositório."},
	OpInit:         {KindInitFailed, "Falha ao inicializar repositório."},
	OpClone:        {KindCloneFailed, "Falha ao clonar repositório."},
	OpBranchCreate: {KindBranchCreateFailed, "Falha ao criar branch."},
	OpBranchDelete: {KindBranchDeleteFailed, "Falha ao remover branch."},
	OpCheckout:     {KindCheckoutFailed, "Falha ao trocar de branch."},
	OpCommit:       {KindCommitFailed, "Falha ao criar commit."},
	OpStage:        {KindStageFailed, "Falha ao adicionar ao stage."},
	OpUnstage:      {KindUnstageFailed, "Falha ao remover do stage."},
	OpDiscard:      {KindDiscardFailed, "Falha ao descartar alterações."},
	OpApplyPatch:   {KindPatchApplyFailed, "Falha ao aplicar patch."},
	OpTagCreate:    {KindTagCreateFailed, "Falha ao criar tag."},
	OpTagDelete:    {KindTagDeleteFailed, "Falha ao remover tag."},
	OpFetch:        {KindFetchFailed, "Falha ao executar fetch."},
	OpPull:         {KindPullFailed, "Falha ao executar pull."},
	OpPush:         {KindPushFailed, "Falha ao executar push."},
	OpRemote:       {KindRemoteFailed, "Falha ao alterar remotos."},
	OpStash:        {KindStashFailed, "Falha ao criar stash."},
	OpStashApply:   {KindStashApplyFailed, "Falha ao aplicar stash."},
	OpStashDrop:    {KindStashDropFailed, "Falha ao remover stash."},
	OpMerge:        {KindMergeFailed, "Falha ao executar merge."},
	OpRebase:       {KindRebaseFailed, "Falha ao executar rebase."},
	OpWorktreeAdd:  {KindWorktreeAddFailed, "Falha ao criar worktree."},
	OpWorktreeRm:   {KindWorktreeRemoveFailed, "Falha ao remover worktree."},
	OpWorktreeLock: {KindWorktreeLockFailed, "Falha ao bloquear worktree."},
	OpWorktreeOpen: {KindWorktreeUnlockFailed, "Falha ao desbloquear worktree."},
}

var unknownRevision = []string{"unknown revision", "did not match any", "not a valid ref", "invalid reference", "pathspec", "not found"}

var defaultRules = map[Operation][]Rule{
	OpPush: {
		{Contains: []string{"non-fast-forward", "[rejected]", "fetch first", "updates were rejected"}, Kind: KindPushRejected, Message: "Push rejeitado pelo remoto.", Hint: "Faça pull antes de enviar."},
		{Contains: []string{"has no upstream branch", "no configured push destination"}, Kind: KindPushNoUpstream, Message: "A branch não possui upstream configurado.", Hint: "Publique a branch definindo o upstream."},
	},
	OpPull: {
		{Contains: []string{"would be overwritten by merge", "please commit your changes or stash them", "cannot pull with rebase: you have unstaged changes"}, Kind: KindPullUncommitted, Message: "Pull bloqueado por alterações locais.", Hint: "Faça stash das alterações primeiro."},
		{Contains: []string{"conflict", "automatic merge failed"}, Kind: KindMergeConflict, Message: "Pull gerou conflitos.", Hint: "Resolva os conflitos."},
		{Contains: []string{"no tracking information", "there is no tracking information"}, Kind: KindPushNoUpstream, Message: "A branch não possui upstream configurado.", Hint: "Configure o upstream da branch."},
	},
	OpMerge: {
		{Contains: []string{"conflict", "automatic merge failed"}, Kind: KindMergeConflict, Message: "Merge gerou conflitos.", Hint: "Resolva os conflitos."},
		{Contains: []string{"would be overwritten by merge"}, Kind: KindPullUncommitted, Message: "Merge bloqueado por alterações locais.", Hint: "Faça stash das alterações primeiro."},
		{Contains: []string{"not something we can merge"}, Kind: KindRefNotFound, Message: "Referência de merge não encontrada."},
	},
	OpRebase: {
		{Contains: []string{"conflict", "could not apply"}, Kind: KindRebaseConflict, Message: "Rebase interrompido por conflitos.", Hint: "Resolva os conflitos e continue o rebase."},
		{Contains: []string{"invalid upstream"}, Kind: KindRefNotFound, Message: "Referência de rebase não encontrada."},
	},
	OpCheckout: {
		{Contains: []string{"would be overwritten by checkout", "please commit your changes or stash them"}, Kind: KindCheckoutDirtyTree, Message: "Checkout bloqueado por alterações locais.", Hint: "Faça commit ou stash das alterações."},
		{Contains: unknownRevision, Kind: KindRefNotFound, Message: "Referência não encontrada."},
		{Contains: []string{"already exists"}, Kind: KindBranchExists, Message: "A branch já existe."},
	},
	OpBranchCreate: {
		{Contains: []string{"already exists"}, Kind: KindBranchExists, Message: "A branch já existe."},
		{Contains: []string{"not a valid object name"}, Kind: KindRefNotFound, Message: "Ponto de partida não encontrado."},
	},
	OpBranchDelete: {
		{Contains: []string{"not fully merged"}, Kind: KindBranchNotMerged, Message: "A branch não foi totalmente mesclada.", Hint: "Use remoção forçada se tiver certeza."},
		{Contains: []string{"not found"}, Kind: KindRefNotFound, Message: "Branch não encontrada."},
	},
	OpCommit: {
		{Contains: []string{"nothing to commit", "no changes added to commit", "nothing added to commit"}, Kind: KindNothingToCommit, Message: "Não há alterações no stage para commit.", Hint: "Adicione arquivos ao stage."},
		{Contains: []string{"please tell me who you are", "unable to auto-detect email"}, Kind: KindCommitFailed, Message: "Identidade Git não configurada.", Hint: "Configure user.name e user.email."},
	},
	OpTagDelete: {
		{Contains: []string{"not found"}, Kind: KindRefNotFound, Message: "Tag não encontrada."},
	},
	OpStash: {
		{Contains: []string{"no local changes to save"}, Kind: KindNothingToStash, Message: "Não há alterações para stash."},
	},
	OpStashApply: {
		{Contains: []string{"conflict"}, Kind: KindMergeConflict, Message: "Aplicar o stash gerou conflitos.", Hint: "Resolva os conflitos."},
		{Contains: []string{"is not a valid reference", "not a stash-like commit"}, Kind: KindRefNotFound, Message: "Stash não encontrado."},
	},
	OpStashDrop: {
		{Contains: []string{"is not a valid reference", "not a stash-like commit"}, Kind: KindRefNotFound, Message: "Stash não encontrado."},
	},
	OpApplyPatch: {
		{Contains: []string{"corrupt patch", "malformed patch", "no valid patches in input"}, Kind: KindPatchInvalid, Message: "Patch inválido."},
	},
	OpFetch: {
		{Contains: []string{"does not appear to be a git repository", "no such remote"}, Kind: KindRefNotFound, Message: "Remoto não encontrado."},
	},
	OpRemote: {
		{Contains: []string{"already exists"}, Kind: KindRemoteFailed, Message: "O remoto já existe."},
		{Contains: []string{"no such remote"}, Kind: KindRefNotFound, Message: "Remoto não encontrado."},
	},
	OpWorktreeAdd: {
		{Contains: []string{"already exists", "is already checked out", "is already used by worktree"}, Kind: KindWorktreeAddFailed, Message: "Destino ou branch já em uso por outra worktree."},
	},
	OpWorktreeRm: {
		{Contains: []string{"contains modified or untracked files"}, Kind: KindWorktreeRemoveFailed, Message: "A worktree possui alterações.", Hint: "Use remoção forçada se tiver certeza."},
		{Contains: []string{"is locked"}, Kind: KindWorktreeRemoveFailed, Message: "A worktree está bloqueada.", Hint: "Desbloqueie a worktree antes de removê-la."},
	},
	OpRead: {
		{Contains: unknownRevision, Kind: KindRefNotFound, Message: "Referência não encontrada."},
	},
}
