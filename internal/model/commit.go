package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Signature identifica autor ou committer de um commit.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// Commit é imutável; identidade e igualdade apenas pelo SHA.
type Commit struct {
	SHA        string    `json:"sha"`
	ParentSHAs []string  `json:"parentShas"`
	Author     Signature `json:"author"`
	Committer  Signature `json:"committer"`
	Summary    string    `json:"summary"`
	Body       string    `json:"body,omitempty"`
}

const shortSHALength = 7

func (c Commit) ShortSHA() string {
	return ShortSHA(c.SHA)
}

func (c Commit) IsMergeCommit() bool {
	return len(c.ParentSHAs) > 1
}

func (c Commit) IsInitialCommit() bool {
	return len(c.ParentSHAs) == 0
}

// Message reconstrói a mensagem completa (summary + body).
func (c Commit) Message() string {
	if strings.TrimSpace(c.Body) == "" {
		return c.Summary
	}
	return c.Summary + "\n\n" + c.Body
}

func (c Commit) Equal(other Commit) bool {
	return c.SHA == other.SHA
}

// Key é a chave de hash do commit.
func (c Commit) Key() string {
	return c.SHA
}

// FormattedDate formata a data do autor no layout informado (RFC3339 se vazio).
func (c Commit) FormattedDate(layout string) string {
	if layout == "" {
		layout = time.RFC3339
	}
	return c.Author.Date.Format(layout)
}

func (c Commit) RelativeDate(now time.Time) string {
	return RelativeTime(c.Author.Date, now)
}

// GravatarHash retorna a chave de lookup do avatar do autor.
func (c Commit) GravatarHash() string {
	return GravatarHash(c.Author.Email)
}

func GravatarHash(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func ShortSHA(sha string) string {
	if len(sha) <= shortSHALength {
		return sha
	}
	return sha[:shortSHALength]
}

// RelativeTime descreve t relativo a now ("3 minutes ago").
func RelativeTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	if d < 0 {
		return "in the future"
	}

	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s ago", unit)
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d < 365*24*time.Hour:
		return plural(int(d/(30*24*time.Hour)), "month")
	default:
		return plural(int(d/(365*24*time.Hour)), "year")
	}
}
