package model

import (
	"strconv"
	"sync/atomic"
)

type LineType string

const (
	LineContext    LineType = "context"
	LineAddition   LineType = "addition"
	LineDeletion   LineType = "deletion"
	LineHunkHeader LineType = "hunkHeader"
)

// Prefix retorna o caractere de prefixo do formato unified diff.
func (t LineType) Prefix() byte {
	switch t {
	case LineAddition:
		return '+'
	case LineDeletion:
		return '-'
	default:
		return ' '
	}
}

// IntralineRange marca um trecho alterado (offsets em bytes de Content).
type IntralineRange struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// DiffLine guarda números de linha nil quando o lado não existe
// (OldLine em adições, NewLine em remoções, ambos no marcador "\ No newline").
type DiffLine struct {
	Type      LineType         `json:"type"`
	Content   string           `json:"content"`
	OldLine   *int             `json:"oldLine,omitempty"`
	NewLine   *int             `json:"newLine,omitempty"`
	Changes   []IntralineRange `json:"changes,omitempty"`
	NoNewline bool             `json:"noNewline,omitempty"`
	Truncated bool             `json:"truncated,omitempty"`
}

func (l DiffLine) IsChange() bool {
	return l.Type == LineAddition || l.Type == LineDeletion
}

// LineNumber cria um ponteiro para n.
func LineNumber(n int) *int {
	return &n
}

// ByteRange é um intervalo [Start, End) dentro de um RawDiff.
type ByteRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r ByteRange) Len() int {
	return r.End - r.Start
}

var rawDiffSeq atomic.Uint64

// RawDiff é o buffer imutável compartilhado pelos hunks em modo lazy.
// Quem cria não deve mais alterar data.
type RawDiff struct {
	id   string
	data []byte
}

func NewRawDiff(data []byte) *RawDiff {
	return &RawDiff{
		id:   "raw_" + strconv.FormatUint(rawDiffSeq.Add(1), 10),
		data: data,
	}
}

func (r *RawDiff) ID() string {
	if r == nil {
		return ""
	}
	return r.id
}

func (r *RawDiff) Len() int {
	if r == nil {
		return 0
	}
	return len(r.data)
}

// Slice retorna a visão de rg sem copiar; nil se rg estiver fora do buffer.
func (r *RawDiff) Slice(rg ByteRange) []byte {
	if r == nil || rg.Start < 0 || rg.End > len(r.data) || rg.Start > rg.End {
		return nil
	}
	return r.data[rg.Start:rg.End:rg.End]
}

// DiffHunk tem Lines (materializado) ou Source+Range (lazy), nunca os dois.
type DiffHunk struct {
	Header   string     `json:"header"`
	OldStart int        `json:"oldStart"`
	OldLines int        `json:"oldLines"`
	NewStart int        `json:"newStart"`
	NewLines int        `json:"newLines"`
	Lines    []DiffLine `json:"lines,omitempty"`
	Range    *ByteRange `json:"range,omitempty"`
	Source   *RawDiff   `json:"-"`
}

func (h DiffHunk) IsMaterialized() bool {
	return h.Range == nil || h.Source == nil
}

// Cost estima o custo em bytes do hunk para o orçamento do cache.
func (h DiffHunk) Cost() int64 {
	cost := int64(len(h.Header)) + 64
	if !h.IsMaterialized() {
		return cost + int64(h.Range.Len())
	}
	for _, line := range h.Lines {
		cost += int64(len(line.Content)) + 48 + int64(len(line.Changes))*16
	}
	return cost
}

type FileDiff struct {
	OldPath     string         `json:"oldPath"`
	NewPath     string         `json:"newPath"`
	Status      FileStatusType `json:"status"`
	Hunks       []DiffHunk     `json:"hunks"`
	IsBinary    bool           `json:"isBinary"`
	Additions   int            `json:"additions"`
	Deletions   int            `json:"deletions"`
	IsLargeFile bool           `json:"isLargeFile,omitempty"`
	Truncated   bool           `json:"truncated,omitempty"`
}

// Path retorna o caminho relevante (antigo em remoções).
func (f FileDiff) Path() string {
	if f.NewPath == "" || f.NewPath == "/dev/null" {
		return f.OldPath
	}
	return f.NewPath
}

func (f FileDiff) Cost() int64 {
	cost := int64(len(f.OldPath)+len(f.NewPath)) + 64
	for _, h := range f.Hunks {
		cost += h.Cost()
	}
	return cost
}

type Diff struct {
	Files     []FileDiff `json:"files"`
	Truncated bool       `json:"truncated,omitempty"`
}
