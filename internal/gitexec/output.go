package gitexec

import (
	"bytes"
	"fmt"
	"strings"
)

// TruncationMarker prefixa a linha anexada a saídas cortadas.
const TruncationMarker = "... [output truncated:"

// CapOutput corta out para caber em limit bytes (na última quebra de linha)
// e anexa o marcador explícito. omitted soma bytes já descartados antes.
func CapOutput(out string, limit int, omitted int64) string {
	if limit <= 0 {
		return out
	}
	if len(out) <= limit && omitted == 0 {
		return out
	}

	prefix := out
	if len(prefix) > limit {
		omitted += int64(len(prefix) - limit)
		prefix = prefix[:limit]
	}
	if idx := strings.LastIndexByte(prefix, '\n'); idx >= 0 {
		omitted += int64(len(prefix) - idx - 1)
		prefix = prefix[:idx+1]
	} else if prefix != "" {
		omitted += int64(len(prefix))
		prefix = ""
	}

	return prefix + fmt.Sprintf("%s %d bytes omitted]\n", TruncationMarker, omitted)
}

// IsTruncated reporta se out carrega o marcador de truncamento.
func IsTruncated(out string) bool {
	return strings.Contains(out, TruncationMarker)
}

// cappedBuffer guarda até limit bytes e apenas conta o restante, para o
// processo nunca bloquear em um pipe cheio.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int
	omitted int64
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.limit <= 0 {
		return c.buf.Write(p)
	}
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.omitted += int64(len(p))
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.omitted += int64(len(p) - room)
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) Bytes() []byte {
	return c.buf.Bytes()
}

func (c *cappedBuffer) Overflowed() bool {
	return c.omitted > 0
}

func (c *cappedBuffer) Omitted() int64 {
	return c.omitted
}
