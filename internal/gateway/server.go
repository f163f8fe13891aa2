package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"repostate/internal/diff"
	"repostate/internal/giterr"
	"repostate/internal/model"
	"repostate/internal/repocontext"
)

// Server expõe o Manager via HTTP local para a UI: leituras em JSON,
// diffs em NDJSON e eventos por WebSocket.
type Server struct {
	manager *repocontext.Manager
	hub     *Hub
	addr    string
	server  *http.Server
}

func NewServer(manager *repocontext.Manager, hub *Hub, addr string) *Server {
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		manager: manager,
		hub:     hub,
		addr:    addr,
	}
}

func (g *Server) Hub() *Hub {
	return g.hub
}

// Handler monta as rotas; usado por Start e pelos testes.
func (g *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealthz)
	mux.HandleFunc("/snapshot", g.handleSnapshot)
	mux.HandleFunc("/status", g.handleStatus)
	mux.HandleFunc("/commits", g.handleCommits)
	mux.HandleFunc("/diff", g.handleDiff)
	mux.HandleFunc("/ws/events", g.handleEvents)
	return mux
}

func (g *Server) Start() error {
	if g == nil || g.manager == nil {
		return fmt.Errorf("gateway manager is nil")
	}
	if g.addr == "" {
		return fmt.Errorf("gateway addr is empty")
	}
	if g.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.addr, err)
	}

	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if serveErr := g.server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Printf("[Gateway] serve error: %v", serveErr)
		}
	}()

	log.Printf("[Gateway] listening on %s", listener.Addr())
	return nil
}

func (g *Server) Stop(ctx context.Context) error {
	if g == nil || g.server == nil {
		return nil
	}
	g.hub.CloseAll()
	return g.server.Shutdown(ctx)
}

func (g *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeGatewayError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeGatewayJSON(w, http.StatusOK, map[string]any{"ok": true, "repos": g.manager.Paths()})
}

func (g *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeGatewayError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	repo, err := g.resolve(r)
	if err != nil {
		writeKindError(w, err)
		return
	}
	snapshot, err := repo.Snapshot(r.Context())
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeGatewayJSON(w, http.StatusOK, snapshot)
}

func (g *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeGatewayError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	repo, err := g.resolve(r)
	if err != nil {
		writeKindError(w, err)
		return
	}
	status, err := repo.Status(r.Context())
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeGatewayJSON(w, http.StatusOK, status)
}

func (g *Server) handleCommits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeGatewayError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	page, err := intParam(query, "page", 0)
	if err != nil {
		writeGatewayError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(query, "limit", 0)
	if err != nil {
		writeGatewayError(w, http.StatusBadRequest, err.Error())
		return
	}

	repo, err := g.resolve(r)
	if err != nil {
		writeKindError(w, err)
		return
	}
	commits, err := repo.Commits(r.Context(), page, limit, strings.TrimSpace(query.Get("branch")))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeGatewayJSON(w, http.StatusOK, commits)
}

// diffLine é uma linha do NDJSON de /diff: um hunk, ou o erro final.
type diffLine struct {
	Hunk  *model.DiffHunk `json:"hunk,omitempty"`
	Done  bool            `json:"done,omitempty"`
	Error *giterr.Error   `json:"error,omitempty"`
}

// handleDiff transmite os hunks conforme são parseados. Se o cliente
// desconectar, o contexto da requisição encerra o subprocesso do diff.
func (g *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeGatewayError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	file := strings.TrimSpace(query.Get("file"))
	if file == "" {
		writeGatewayError(w, http.StatusBadRequest, "file is required")
		return
	}
	staged, _ := strconv.ParseBool(query.Get("staged"))
	mode := diff.LargeFileMode(strings.TrimSpace(query.Get("mode")))
	if mode == "" {
		mode = diff.LargeFileAuto
	}

	repo, err := g.resolve(r)
	if err != nil {
		writeKindError(w, err)
		return
	}

	ctx := r.Context()
	stream, err := repo.Diffs().Stream(ctx, diff.Request{Path: file, Staged: staged, LargeFileMode: mode})
	if err != nil {
		writeKindError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)

	for {
		hunk, ok := stream.Next(ctx)
		if !ok {
			break
		}
		if err := encoder.Encode(diffLine{Hunk: &hunk}); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if ctx.Err() != nil {
		return
	}

	<-stream.Done()
	final := diffLine{Done: true}
	if streamErr := stream.Err(); streamErr != nil {
		final = diffLine{Error: giterr.Normalize(streamErr)}
	}
	_ = encoder.Encode(final)
}

func (g *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	g.hub.HandleWebSocket(w, r)
}

// resolve abre o contexto do repo pedido; sem ?repo= usa o ativo.
func (g *Server) resolve(r *http.Request) (*repocontext.Context, error) {
	path := strings.TrimSpace(r.URL.Query().Get("repo"))
	if path == "" {
		if active, ok := g.manager.Active(); ok {
			return active, nil
		}
		return nil, giterr.New(giterr.KindInvalidPath, "Nenhum repositório selecionado.", "query param repo is required")
	}
	return g.manager.Context(r.Context(), path)
}

func intParam(query url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return value, nil
}

// httpStatus traduz o Kind para o status HTTP da resposta.
func httpStatus(kind giterr.Kind) int {
	switch kind {
	case giterr.KindInvalidPath, giterr.KindInvalidLineType, giterr.KindCannotOperateOnContextLine:
		return http.StatusBadRequest
	case giterr.KindNotARepository, giterr.KindRefNotFound:
		return http.StatusNotFound
	case giterr.KindTimeout:
		return http.StatusGatewayTimeout
	case giterr.KindServiceUnavailable, giterr.KindGitUnavailable:
		return http.StatusServiceUnavailable
	case giterr.KindCanceled:
		return 499
	}
	return http.StatusInternalServerError
}

func writeKindError(w http.ResponseWriter, err error) {
	normalized := giterr.Normalize(err)
	writeGatewayJSON(w, httpStatus(normalized.Kind), map[string]any{"error": normalized})
}

func writeGatewayJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeGatewayError(w http.ResponseWriter, status int, message string) {
	writeGatewayJSON(w, status, map[string]string{"error": message})
}
