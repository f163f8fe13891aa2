package model

import (
	"fmt"
	"time"
)

// Stash tem posição mutável: índice 0 é o mais recente.
type Stash struct {
	Index   int       `json:"index"`
	Message string    `json:"message"`
	SHA     string    `json:"sha"`
	Date    time.Time `json:"date"`
	Branch  string    `json:"branch,omitempty"`
}

func (s Stash) Ref() string {
	return StashRef(s.Index)
}

func StashRef(index int) string {
	return fmt.Sprintf("stash@{%d}", index)
}
