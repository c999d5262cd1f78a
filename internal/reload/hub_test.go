package reload

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, srv *httptest.Server) (*bufio.Reader, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body), func() {
		cancel()
		_ = resp.Body.Close()
	}
}

func readEvent(t *testing.T, r *bufio.Reader) Event {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var ev Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &ev))
			return ev
		}
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Shutdown()

	r1, close1 := connect(t, srv)
	defer close1()
	r2, close2 := connect(t, srv)
	defer close2()
	waitForClients(t, hub, 2)

	hub.Notify(context.Background(), CSS("assets/styles/main.css"))

	for _, r := range []*bufio.Reader{r1, r2} {
		ev := readEvent(t, r)
		require.Equal(t, KindCSS, ev.Kind)
		require.Equal(t, []string{"assets/styles/main.css"}, ev.Paths)
	}

	hub.Notify(context.Background(), Full())
	require.Equal(t, KindReload, readEvent(t, r1).Kind)
}

func TestHub_RemovesDisconnectedClients(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, closeFn := connect(t, srv)
	waitForClients(t, hub, 1)
	closeFn()
	waitForClients(t, hub, 0)
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Shutdown()
	hub.Notify(context.Background(), Full())

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, EventsPath, http.NoBody))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNoopAndFunc(t *testing.T) {
	Noop{}.Notify(context.Background(), Full())

	var got Event
	NotifierFunc(func(_ context.Context, ev Event) { got = ev }).Notify(context.Background(), CSS("a.css"))
	require.Equal(t, KindCSS, got.Kind)
}
