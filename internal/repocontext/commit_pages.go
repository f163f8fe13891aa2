package repocontext

import (
	"sync"
	"time"

	"repostate/internal/model"
)

type pageKey struct {
	page   int
	limit  int
	branch string
}

// commitPages cacheia páginas do log com um único timestamp de frescor para
// o conjunto inteiro.
type commitPages struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	pages    map[pageKey][]model.Commit
	storedAt time.Time
	gen      uint64
}

func newCommitPages(ttl time.Duration, now func() time.Time) *commitPages {
	return &commitPages{
		ttl:   ttl,
		now:   now,
		pages: make(map[pageKey][]model.Commit),
	}
}

func (p *commitPages) expiredLocked() bool {
	return p.ttl <= 0 || p.now().Sub(p.storedAt) > p.ttl
}

func (p *commitPages) get(key pageKey) ([]model.Commit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pages) == 0 {
		return nil, false
	}
	if p.expiredLocked() {
		p.pages = make(map[pageKey][]model.Commit)
		return nil, false
	}
	commits, ok := p.pages[key]
	if !ok {
		return nil, false
	}
	return cloneCommits(commits), true
}

func (p *commitPages) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *commitPages) store(key pageKey, gen uint64, commits []model.Commit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || p.ttl <= 0 {
		return false
	}
	if len(p.pages) == 0 || p.expiredLocked() {
		p.pages = make(map[pageKey][]model.Commit)
		p.storedAt = p.now()
	}
	p.pages[key] = cloneCommits(commits)
	return true
}

func (p *commitPages) invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.pages = make(map[pageKey][]model.Commit)
}

// anchor devolve a primeira página do HEAD e o SHA no topo dela.
func (p *commitPages) anchor() (pageKey, string, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pages) == 0 || p.expiredLocked() {
		return pageKey{}, "", p.gen, false
	}
	for key, commits := range p.pages {
		if key.page == 0 && key.branch == "" && len(commits) > 0 {
			return key, commits[0].SHA, p.gen, true
		}
	}
	return pageKey{}, "", p.gen, false
}

// prepend encaixa os commits novos de window sobre a primeira página. Falha
// quando oldHead não aparece em window ou quando o cache mudou desde gen;
// nesse caso o chamador invalida tudo.
func (p *commitPages) prepend(key pageKey, oldHead string, gen uint64, window []model.Commit) (int, bool) {
	index := -1
	for i, commit := range window {
		if commit.SHA == oldHead {
			index = i
			break
		}
	}
	if index < 0 {
		return 0, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.pages[key]
	if gen != p.gen || !ok || len(current) == 0 || current[0].SHA != oldHead {
		return 0, false
	}

	merged := make([]model.Commit, 0, index+len(current))
	merged = append(merged, window[:index]...)
	merged = append(merged, current...)
	if key.limit > 0 && len(merged) > key.limit {
		merged = merged[:key.limit]
	}

	// As demais páginas deslocam com os commits novos; só a primeira sobrevive.
	p.gen++
	p.pages = map[pageKey][]model.Commit{key: merged}
	return index, true
}

func cloneCommits(in []model.Commit) []model.Commit {
	if in == nil {
		return nil
	}
	out := make([]model.Commit, len(in))
	copy(out, in)
	return out
}
