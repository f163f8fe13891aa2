package repocontext

import (
	"repostate/internal/model"
)

// Eventos publicados para assinantes da UI.
const (
	EventSignal        = "repostate:signal"
	EventStatusChanged = "repostate:status_changed"
	EventCommandResult = "repostate:command_result"
	EventSnapshot      = "repostate:snapshot"
)

// EmitFunc publica um evento nomeado (gateway, logs).
type EmitFunc func(eventName string, data interface{})

// SignalSource entrega sinais de mudança de um repositório. O unsubscribe
// devolvido encerra a entrega para aquele handler.
type SignalSource interface {
	Subscribe(repoRoot string, handler func(model.Signal)) (func(), error)
}

// SignalEvent é o payload de EventSignal.
type SignalEvent struct {
	Repo string       `json:"repo"`
	Kind model.Signal `json:"kind"`
}

// StatusChangedEvent é o payload de EventStatusChanged.
type StatusChangedEvent struct {
	Repo string `json:"repo"`
}

// signalKinds traduz um sinal nos caches que ele torna obsoletos.
func signalKinds(signal model.Signal) []cacheKind {
	switch signal {
	case model.SignalStatus:
		return []cacheKind{kindStatus}
	case model.SignalHead:
		return []cacheKind{kindStatus, kindHead}
	case model.SignalRefs:
		return []cacheKind{kindBranches, kindRemoteBranches, kindTags}
	case model.SignalStash:
		return []cacheKind{kindStashes}
	case model.SignalConfig:
		return []cacheKind{kindRemotes}
	default:
		return allKinds
	}
}

func touchesWorkingTree(signal model.Signal) bool {
	switch signal {
	case model.SignalStatus, model.SignalHead, model.SignalFull:
		return true
	default:
		return false
	}
}
