package gateway

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repostate/internal/giterr"
	"repostate/internal/model"
)

type errorBody struct {
	Error giterr.Error `json:"error"`
}

func getJSON(t *testing.T, rawURL string, target any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestStatusReportsUntrackedFiles(t *testing.T) {
	ts, _ := newTestGateway(t)
	repo := mustInitTestRepo(t)
	mustCommitFile(t, repo, "README.md", "hello\n", "init")
	writeFile(t, repo, "notes.txt", "draft\n")

	var status model.RepositoryStatus
	code := getJSON(t, ts.URL+"/status?repo="+url.QueryEscape(repo), &status)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "main", status.Branch)
	assert.Contains(t, status.Untracked, "notes.txt")
}

func TestCommitsPaginates(t *testing.T) {
	ts, _ := newTestGateway(t)
	repo := mustInitTestRepo(t)
	for _, name := range []string{"a", "b", "c"} {
		mustCommitFile(t, repo, name+".txt", name+"\n", "add "+name)
	}

	base := ts.URL + "/commits?repo=" + url.QueryEscape(repo) + "&limit=2"

	var first []model.Commit
	require.Equal(t, http.StatusOK, getJSON(t, base, &first))
	require.Len(t, first, 2)
	assert.Equal(t, "add c", first[0].Summary)

	var second []model.Commit
	require.Equal(t, http.StatusOK, getJSON(t, base+"&page=1", &second))
	require.Len(t, second, 1)
	assert.Equal(t, "add a", second[0].Summary)

	require.Equal(t, http.StatusBadRequest, getJSON(t, base+"&page=-1", nil))
}

func TestDiffStreamsHunksAsNDJSON(t *testing.T) {
	ts, _ := newTestGateway(t)
	repo := mustInitTestRepo(t)
	mustCommitFile(t, repo, "a.txt", "one\ntwo\nthree\n", "init")
	writeFile(t, repo, "a.txt", "one\nTWO\nthree\n")

	resp, err := http.Get(ts.URL + "/diff?repo=" + url.QueryEscape(repo) + "&file=a.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var lines []diffLine
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line diffLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	require.NotNil(t, lines[0].Hunk)
	assert.Equal(t, 1, lines[0].Hunk.OldStart)
	assert.True(t, lines[1].Done)
	assert.Nil(t, lines[1].Error)
}

func TestDiffRequiresFile(t *testing.T) {
	ts, _ := newTestGateway(t)
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/diff?repo=/tmp", nil))
}

func TestNonRepositoryMapsToNotFound(t *testing.T) {
	ts, _ := newTestGateway(t)
	mustInitTestRepo(t)

	var body errorBody
	code := getJSON(t, ts.URL+"/snapshot?repo="+url.QueryEscape(t.TempDir()), &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, giterr.KindNotARepository, body.Error.Kind)
}

func TestMissingRepoWithoutActiveContext(t *testing.T) {
	ts, _ := newTestGateway(t)

	var body errorBody
	code := getJSON(t, ts.URL+"/status", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, giterr.KindInvalidPath, body.Error.Kind)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestGateway(t)
	resp, err := http.Post(ts.URL+"/snapshot", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEventsAreBroadcastToSubscribers(t *testing.T) {
	ts, hub := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("repostate:signal", map[string]string{"repo": "/r", "kind": "refs"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "repostate:signal", msg.Event)
	assert.Equal(t, "refs", msg.Data["kind"])

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts, hub := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	assert.Equal(t, 0, hub.Count())
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[giterr.Kind]int{
		giterr.KindInvalidPath:        http.StatusBadRequest,
		giterr.KindNotARepository:     http.StatusNotFound,
		giterr.KindTimeout:            http.StatusGatewayTimeout,
		giterr.KindServiceUnavailable: http.StatusServiceUnavailable,
		giterr.KindCanceled:           499,
		giterr.KindMergeConflict:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, httpStatus(kind), string(kind))
	}
}
