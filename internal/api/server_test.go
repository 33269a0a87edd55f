package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pbaille/localrename/internal/alias"
	"github.com/pbaille/localrename/internal/config"
	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/domain"
	"github.com/pbaille/localrename/internal/eventloop"
	"github.com/pbaille/localrename/internal/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body><nav role="navigation"><ul>
<li data-channel-id="111111111111111111"><div class="name_x">general</div></li>
</ul></nav></body></html>`

type docRenderer struct {
	loop *eventloop.Loop
	doc  *dom.Document
}

func (r docRenderer) Render(ctx context.Context, w io.Writer) error {
	var err error
	if doErr := r.loop.Do(ctx, func() { err = dom.Render(w, r.doc.Root()) }); doErr != nil {
		return doErr
	}
	return err
}

func newTestServer(t *testing.T, start bool) (*httptest.Server, *alias.MemoryPersistence) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := eventloop.New()
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	cfg := config.Default()
	cfg.SettleDelay = time.Millisecond
	cfg.RescanDelay = time.Millisecond
	cfg.FallbackInterval = 0

	persist := alias.NewMemoryPersistence()
	p, err := plugin.New(loop, persist, cfg)
	require.NoError(t, err)

	doc, err := dom.Parse(strings.NewReader(page))
	require.NoError(t, err)
	if start {
		require.NoError(t, p.Start(context.Background(), doc))
	}

	srv := httptest.NewServer(New(p, docRenderer{loop: loop, doc: doc}, "", nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		p.Stop(context.Background())
		cancel()
		<-errc
	})
	return srv, persist
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAliasLifecycle(t *testing.T) {
	srv, persist := newTestServer(t, true)

	resp := do(t, http.MethodPost, srv.URL+"/aliases", `{"id":"111111111111111111","label":"General Chat"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var entry domain.AliasEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.Equal(t, "General Chat", entry.Label)

	resp = do(t, http.MethodPut, srv.URL+"/aliases/111111111111111111", `{"label":"Lobby"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/aliases", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Aliases []domain.AliasEntry `json:"aliases"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, []domain.AliasEntry{{ID: "111111111111111111", Label: "Lobby"}}, list.Aliases)

	assert.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/document")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), ">Lobby<")
	}, 2*time.Second, 10*time.Millisecond)

	resp = do(t, http.MethodDelete, srv.URL+"/aliases/111111111111111111", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/aliases/111111111111111111", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	saved, err := persist.Load(config.Default().PluginKey, config.Default().StorageKey)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestAddAliasErrors(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, http.MethodPost, srv.URL+"/aliases", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/aliases", `{"id":"  ","label":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveFailureIsServerError(t *testing.T) {
	srv, persist := newTestServer(t, true)
	persist.SaveErr = errors.New("disk full")

	resp := do(t, http.MethodPost, srv.URL+"/aliases", `{"id":"1","label":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRescan(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, http.MethodPost, srv.URL+"/rescan", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep ReportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Positive(t, rep.Examined)
}

func TestNotStarted(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := do(t, http.MethodGet, srv.URL+"/aliases", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "detached", health["watcher"])
}

func TestCORSAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, http.MethodOptions, srv.URL+"/aliases", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	do(t, http.MethodPost, srv.URL+"/rescan", "")
	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), fmt.Sprintf("localrename_scan_total{kind=%q}", "whole"))
}
