package gitexec

import "strings"

// forcedEnv é aplicado sobre o ambiente herdado: sem pager, locale estável,
// sem locks opcionais (leituras não esperam index.lock) e sem prompt
// interativo de credencial (o prompt vira falha em vez de travar).
var forcedEnv = []string{
	"GIT_PAGER=cat",
	"PAGER=cat",
	"LC_ALL=C",
	"LANG=C",
	"LANGUAGE=C",
	"GIT_OPTIONAL_LOCKS=0",
	"GIT_TERMINAL_PROMPT=0",
	"GIT_ASKPASS=",
	"SSH_ASKPASS=",
	"GCM_INTERACTIVE=never",
	"GIT_MERGE_AUTOEDIT=no",
	"GIT_EDITOR=true",
}

// strippedEnv lista variáveis herdadas que alterariam o formato de saída
// ou o repositório alvo.
var strippedEnv = map[string]struct{}{
	"GIT_DIR":               {},
	"GIT_WORK_TREE":         {},
	"GIT_INDEX_FILE":        {},
	"GIT_EXTERNAL_DIFF":     {},
	"GIT_DIFF_OPTS":         {},
	"GIT_CONFIG_PARAMETERS": {},
	"LC_MESSAGES":           {},
	"LC_CTYPE":              {},
}

// SanitizedEnv deriva o ambiente do subprocesso a partir de base.
func SanitizedEnv(base []string) []string {
	forcedKeys := make(map[string]struct{}, len(forcedEnv))
	for _, kv := range forcedEnv {
		key, _, _ := strings.Cut(kv, "=")
		forcedKeys[key] = struct{}{}
	}

	out := make([]string, 0, len(base)+len(forcedEnv)+1)
	hasSSHCommand := false
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, drop := strippedEnv[key]; drop {
			continue
		}
		if _, forced := forcedKeys[key]; forced {
			continue
		}
		if key == "GIT_SSH_COMMAND" {
			hasSSHCommand = true
		}
		out = append(out, kv)
	}
	out = append(out, forcedEnv...)
	if !hasSSHCommand {
		out = append(out, "GIT_SSH_COMMAND=ssh -o BatchMode=yes")
	}
	return out
}

// LookupEnv retorna o valor de key em env.
func LookupEnv(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}
