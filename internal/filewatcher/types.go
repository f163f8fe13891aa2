package filewatcher

import (
	"time"

	"repostate/internal/model"
)

// SignalEvent representa uma mudança classificada dentro do diretório git.
type SignalEvent struct {
	Repo      string       `json:"repo"`      // Raiz do repositório
	Signal    model.Signal `json:"signal"`    // status, head, refs, stash, config ou full
	Path      string       `json:"path"`      // Caminho do arquivo alterado
	Timestamp time.Time    `json:"timestamp"` // Quando o evento foi entregue
}

// ISignalWatcher define a interface do serviço de monitoramento do .git
type ISignalWatcher interface {
	// Watch inicia o monitoramento do diretório git de um repositório
	Watch(repoRoot string) error

	// Unwatch para o monitoramento de um repositório
	Unwatch(repoRoot string) error

	// Subscribe registra um handler de sinais para um repositório,
	// iniciando o monitoramento se preciso
	Subscribe(repoRoot string, handler func(model.Signal)) (func(), error)

	// OnEvent registra um handler global (logs, gateway)
	OnEvent(handler func(event SignalEvent))

	// Close encerra todos os watchers
	Close() error
}
