package diff

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"repostate/internal/engine"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// Mode escolhe como as linhas dos hunks são produzidas.
type Mode int

const (
	// ModeEager preenche DiffHunk.Lines durante o parse.
	ModeEager Mode = iota
	// ModeLazy guarda só cabeçalho e intervalo de bytes; as linhas saem de Materialize.
	ModeLazy
)

const noNewlineMarker = `\ No newline at end of file`

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(,(\d+))? \+(\d+)(,(\d+))? @@`)

type parseState int

const (
	stateInitial parseState = iota
	stateFileHeader
	stateHunk
	stateFinished
)

// ParseOptions limita o trabalho do parser. Zero desliga o limite.
type ParseOptions struct {
	Mode          Mode
	MaxLineLength int
	MaxHunks      int
	RequireUTF8   bool
}

// HunkFunc recebe cada hunk fechado junto do arquivo a que pertence.
// Em ModeLazy os hunks só chegam em Finish, quando o buffer fica imutável.
type HunkFunc func(file *model.FileDiff, hunk model.DiffHunk) error

// Parser consome um unified diff linha a linha.
type Parser struct {
	opts   ParseOptions
	onHunk HunkFunc

	state parseState
	buf   []byte
	files []model.FileDiff
	file  *model.FileDiff

	hunk           *model.DiffHunk
	hunkBodyStart  int
	hunkBodyEnd    int
	remainingOld   int
	remainingNew   int
	oldLine        int
	newLine        int
	skippingHunk   bool
	truncatedFiles bool
}

// NewParser cria um parser incremental; use Feed e depois Finish.
func NewParser(opts ParseOptions, onHunk HunkFunc) *Parser {
	return &Parser{opts: opts, onHunk: onHunk}
}

// Parse interpreta raw de uma vez. Em ModeLazy raw passa a ser o buffer
// compartilhado dos hunks e não deve mais ser alterado.
func Parse(raw []byte, opts ParseOptions) (model.Diff, error) {
	p := NewParser(opts, nil)
	p.buf = raw
	start := 0
	for start < len(raw) {
		end := len(raw)
		next := len(raw)
		if idx := bytes.IndexByte(raw[start:], '\n'); idx >= 0 {
			end = start + idx
			next = end + 1
		}
		if err := p.consume(raw[start:end], start, next); err != nil {
			return model.Diff{}, err
		}
		start = next
	}
	return p.Finish()
}

// Feed entrega uma linha sem o '\n' final.
func (p *Parser) Feed(line string) error {
	if p.state == stateFinished {
		return giterr.New(giterr.KindCommandFailed, "Parser de diff já finalizado.", "")
	}
	if p.opts.Mode == ModeLazy {
		start := len(p.buf)
		p.buf = append(p.buf, line...)
		p.buf = append(p.buf, '\n')
		return p.consume(p.buf[start:start+len(line)], start, len(p.buf))
	}
	return p.consume([]byte(line), 0, 0)
}

// Finish fecha o hunk e o arquivo abertos e devolve o diff completo.
func (p *Parser) Finish() (model.Diff, error) {
	if p.state == stateFinished {
		return model.Diff{Files: p.files, Truncated: p.truncatedFiles}, nil
	}
	if err := p.closeHunk(); err != nil {
		return model.Diff{}, err
	}
	p.closeFile()
	p.state = stateFinished

	if p.opts.Mode == ModeLazy {
		raw := model.NewRawDiff(p.buf)
		for fi := range p.files {
			file := &p.files[fi]
			for hi := range file.Hunks {
				file.Hunks[hi].Source = raw
			}
			if p.onHunk == nil {
				continue
			}
			for _, hunk := range file.Hunks {
				if err := p.onHunk(file, hunk); err != nil {
					return model.Diff{}, err
				}
			}
		}
	}
	return model.Diff{Files: p.files, Truncated: p.truncatedFiles}, nil
}

// consume processa uma linha; start/next são offsets no buffer em ModeLazy.
func (p *Parser) consume(line []byte, start int, next int) error {
	if p.state == stateHunk {
		if bytes.HasPrefix(line, []byte("@@")) {
			return p.openHunk(line, start)
		}
		if p.inHunkBody(line) {
			return p.consumeBody(line, next)
		}
		if err := p.closeHunk(); err != nil {
			return err
		}
		p.state = stateFileHeader
	}

	text := string(line)
	switch {
	case strings.HasPrefix(text, "diff --git "):
		p.closeFile()
		p.startFile()
		p.file.OldPath, p.file.NewPath = parseGitHeaderPaths(strings.TrimPrefix(text, "diff --git "))
		p.state = stateFileHeader
	case strings.HasPrefix(text, "@@"):
		if p.file == nil {
			p.startFile()
		}
		return p.openHunk(line, start)
	case strings.HasPrefix(text, "--- "):
		if p.file == nil || len(p.file.Hunks) > 0 {
			p.closeFile()
			p.startFile()
		}
		if path, ok := headerPath(text[4:]); ok {
			p.file.OldPath = path
		} else if p.file.Status == model.StatusModified {
			p.file.Status = model.StatusAdded
		}
		p.state = stateFileHeader
	case strings.HasPrefix(text, "+++ "):
		if p.file == nil {
			p.startFile()
		}
		if path, ok := headerPath(text[4:]); ok {
			p.file.NewPath = path
		} else {
			p.file.Status = model.StatusDeleted
		}
	case p.file == nil:
		// Texto antes do primeiro cabeçalho é ignorado.
	case strings.HasPrefix(text, "new file mode"):
		p.file.Status = model.StatusAdded
	case strings.HasPrefix(text, "deleted file mode"):
		p.file.Status = model.StatusDeleted
	case strings.HasPrefix(text, "rename from "):
		p.file.Status = model.StatusRenamed
		p.file.OldPath = unquoteHeader(strings.TrimPrefix(text, "rename from "))
	case strings.HasPrefix(text, "rename to "):
		p.file.Status = model.StatusRenamed
		p.file.NewPath = unquoteHeader(strings.TrimPrefix(text, "rename to "))
	case strings.HasPrefix(text, "copy from "):
		p.file.Status = model.StatusCopied
		p.file.OldPath = unquoteHeader(strings.TrimPrefix(text, "copy from "))
	case strings.HasPrefix(text, "copy to "):
		p.file.Status = model.StatusCopied
		p.file.NewPath = unquoteHeader(strings.TrimPrefix(text, "copy to "))
	case strings.HasPrefix(text, "Binary files "), strings.HasPrefix(text, "GIT binary patch"):
		p.file.IsBinary = true
	}
	return nil
}

// inHunkBody decide se a linha ainda pertence ao hunk aberto. As contagens
// do cabeçalho fecham o corpo, então "--- x" logo após um hunk completo é
// cabeçalho e não remoção.
func (p *Parser) inHunkBody(line []byte) bool {
	if len(line) > 0 && line[0] == '\\' {
		return true
	}
	if p.remainingOld <= 0 && p.remainingNew <= 0 {
		return false
	}
	if len(line) == 0 {
		return true
	}
	switch line[0] {
	case '+', '-', ' ':
		return true
	}
	return false
}

func (p *Parser) consumeBody(line []byte, next int) error {
	if len(line) > 0 {
		switch line[0] {
		case '+':
			p.remainingNew--
			p.file.Additions++
		case '-':
			p.remainingOld--
			p.file.Deletions++
		case ' ':
			p.remainingOld--
			p.remainingNew--
		}
	} else {
		p.remainingOld--
		p.remainingNew--
	}

	if p.skippingHunk {
		return nil
	}
	if p.opts.Mode == ModeLazy {
		p.hunkBodyEnd = next
		return nil
	}

	parsed, err := classifyLine(string(line), &p.oldLine, &p.newLine, p.opts)
	if err != nil {
		return err
	}
	p.hunk.Lines = append(p.hunk.Lines, parsed)
	return nil
}

func (p *Parser) openHunk(line []byte, start int) error {
	if err := p.closeHunk(); err != nil {
		return err
	}

	hunk, err := ParseHunkHeader(string(line))
	if err != nil {
		return err
	}
	p.state = stateHunk
	p.remainingOld = hunk.OldLines
	p.remainingNew = hunk.NewLines
	p.oldLine = hunk.OldStart
	p.newLine = hunk.NewStart

	if p.opts.MaxHunks > 0 && len(p.file.Hunks) >= p.opts.MaxHunks {
		p.skippingHunk = true
		p.file.Truncated = true
		p.truncatedFiles = true
		return nil
	}
	p.skippingHunk = false
	p.hunk = &hunk
	bodyStart := start + len(line) + 1
	if bodyStart > len(p.buf) {
		bodyStart = len(p.buf)
	}
	p.hunkBodyStart = bodyStart
	p.hunkBodyEnd = bodyStart
	return nil
}

func (p *Parser) closeHunk() error {
	if p.hunk == nil {
		p.skippingHunk = false
		return nil
	}
	hunk := *p.hunk
	p.hunk = nil

	if p.opts.Mode == ModeLazy {
		hunk.Range = &model.ByteRange{Start: p.hunkBodyStart, End: p.hunkBodyEnd}
		p.file.Hunks = append(p.file.Hunks, hunk)
		return nil
	}
	p.file.Hunks = append(p.file.Hunks, hunk)
	if p.onHunk != nil {
		return p.onHunk(p.file, hunk)
	}
	return nil
}

func (p *Parser) startFile() {
	p.files = append(p.files, model.FileDiff{Status: model.StatusModified})
	p.file = &p.files[len(p.files)-1]
}

func (p *Parser) closeFile() {
	if p.file == nil {
		return
	}
	if p.file.Hunks == nil {
		p.file.Hunks = []model.DiffHunk{}
	}
	p.file = nil
}

// ParseHunkHeader interpreta "@@ -a[,b] +c[,d] @@"; contagem omitida vale 1.
func ParseHunkHeader(line string) (model.DiffHunk, error) {
	match := hunkHeaderPattern.FindStringSubmatch(line)
	if match == nil {
		return model.DiffHunk{}, giterr.New(giterr.KindMalformedHunkHeader, "Cabeçalho de hunk inválido.", truncateForDetails(line))
	}
	return model.DiffHunk{
		Header:   line,
		OldStart: atoiOr(match[1], 0),
		OldLines: optionalCount(match[3]),
		NewStart: atoiOr(match[4], 0),
		NewLines: optionalCount(match[6]),
	}, nil
}

// classifyLine converte uma linha do corpo e avança os contadores do lado
// que ela consome. Usado no parse eager e em Materialize.
func classifyLine(raw string, oldLine *int, newLine *int, opts ParseOptions) (model.DiffLine, error) {
	if strings.HasPrefix(raw, `\`) {
		return model.DiffLine{Type: model.LineContext, NoNewline: true}, nil
	}

	var line model.DiffLine
	content := raw
	if raw != "" {
		content = raw[1:]
	}
	switch {
	case strings.HasPrefix(raw, "+"):
		line = model.DiffLine{Type: model.LineAddition, NewLine: model.LineNumber(*newLine)}
		*newLine++
	case strings.HasPrefix(raw, "-"):
		line = model.DiffLine{Type: model.LineDeletion, OldLine: model.LineNumber(*oldLine)}
		*oldLine++
	default:
		line = model.DiffLine{Type: model.LineContext, OldLine: model.LineNumber(*oldLine), NewLine: model.LineNumber(*newLine)}
		*oldLine++
		*newLine++
	}

	if opts.RequireUTF8 && !utf8.ValidString(content) {
		return model.DiffLine{}, giterr.New(giterr.KindInvalidEncoding, "O diff contém texto que não é UTF-8.", truncateForDetails(content))
	}
	if opts.MaxLineLength > 0 && len(content) > opts.MaxLineLength {
		content = truncateUTF8(content, opts.MaxLineLength)
		line.Truncated = true
	}
	line.Content = content
	return line, nil
}

// parseGitHeaderPaths trata "a/x b/x" sem aspas e com espaços quando os
// dois lados são iguais, o caso comum fora de renomes.
func parseGitHeaderPaths(raw string) (string, string) {
	if !strings.HasPrefix(raw, `"`) && strings.HasPrefix(raw, "a/") {
		rest := raw[2:]
		if len(rest) > 3 && (len(rest)-3)%2 == 0 {
			half := (len(rest) - 3) / 2
			if rest[half:half+3] == " b/" && rest[:half] == rest[half+3:] {
				return rest[:half], rest[:half]
			}
		}
	}
	left, right, ok := engine.ParseDiffGitPathPair(raw)
	if !ok {
		return "", ""
	}
	oldPath, _ := engine.DecodePatchPath(left)
	newPath, _ := engine.DecodePatchPath(right)
	return oldPath, newPath
}

// headerPath lê o caminho de uma linha ---/+++; false para /dev/null.
func headerPath(raw string) (string, bool) {
	if idx := strings.IndexByte(raw, '\t'); idx >= 0 && !strings.HasPrefix(raw, `"`) {
		raw = raw[:idx]
	}
	return engine.DecodePatchPath(raw)
}

func unquoteHeader(raw string) string {
	if strings.HasPrefix(raw, `"`) {
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return unquoted
		}
	}
	return raw
}

func optionalCount(raw string) int {
	if strings.TrimSpace(raw) == "" {
		return 1
	}
	return atoiOr(raw, 1)
}

func atoiOr(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func truncateUTF8(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

func truncateForDetails(value string) string {
	const limit = 200
	if len(value) <= limit {
		return value
	}
	return truncateUTF8(value, limit) + "..."
}
