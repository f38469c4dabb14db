package members_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/members"
	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
)

type fakeDirectory struct {
	mu   sync.Mutex
	ids  []string
	term parl.Term
}

func (d *fakeDirectory) ListMemberIDs(_ context.Context, term parl.Term) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.term = term
	return d.ids, nil
}

func (d *fakeDirectory) lastTerm() parl.Term {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.term
}

func newTestServer(t *testing.T, store *memStore, fetcher *fakeFetcher) (*httptest.Server, *fakeDirectory) {
	t.Helper()
	dir := &fakeDirectory{ids: []string{"1", "2"}}
	h := &members.Handler{
		Store:         store,
		Jobs:          members.NewJobs(newImporter(store, fetcher, 2), zap.NewNop()),
		Reconciler:    members.NewReconciler(store, members.Merger{}, nil, nil, zap.NewNop()),
		Directory:     dir,
		Term:          parl.Term{Parliament: 41, Session: 2},
		NearThreshold: 0.9,
		Log:           zap.NewNop(),
	}
	srv := httptest.NewServer(members.SetupRoutes(h, nil))
	t.Cleanup(srv.Close)
	return srv, dir
}

func TestImportRoutes(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"1": profilePage("1", "A A", ""),
		"2": profilePage("2", "B B", ""),
		"3": profilePage("3", "C C", ""),
	}}
	srv, dir := newTestServer(t, store, fetcher)

	res, err := http.Post(srv.URL+"/import", "application/json", strings.NewReader(`{"ids":["3"],"from_directory":true}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	var started struct {
		JobID string `json:"job_id"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&started))
	assert.Equal(t, 3, started.Total)
	assert.Equal(t, parl.Term{Parliament: 41, Session: 2}, dir.lastTerm())

	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/import/" + started.JobID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var job members.ImportJob
		if json.NewDecoder(r.Body).Decode(&job) != nil {
			return false
		}
		return job.Status == members.JobCompleted && job.Report.Loaded == 3
	}, 2*time.Second, 20*time.Millisecond)
}

func TestImportRouteRejectsEmptyBatch(t *testing.T) {
	srv, _ := newTestServer(t, newMemStore(), &fakeFetcher{})

	res, err := http.Post(srv.URL+"/import", "application/json", strings.NewReader(`{"ids":[]}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Get(srv.URL + "/import/does-not-exist")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDuplicateAndReconcileRoutes(t *testing.T) {
	store := newMemStore()
	seedDuplicates(store)
	srv, _ := newTestServer(t, store, &fakeFetcher{})

	res, err := http.Get(srv.URL + "/duplicates")
	require.NoError(t, err)
	var clusters []members.Cluster
	require.NoError(t, json.NewDecoder(res.Body).Decode(&clusters))
	res.Body.Close()
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 3)

	res, err = http.Post(srv.URL+"/reconcile", "application/json", strings.NewReader(`{"dry_run":true}`))
	require.NoError(t, err)
	var report members.ReconcileReport
	require.NoError(t, json.NewDecoder(res.Body).Decode(&report))
	res.Body.Close()
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Merged)

	res, err = http.Post(srv.URL+"/reconcile", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	target, _ := store.get("20")
	require.NotNil(t, target.Twitter)
}

func TestReconcileRouteConflict(t *testing.T) {
	store := newMemStore()
	srv, _ := newTestServer(t, store, &fakeFetcher{})

	err := store.WithReconcileLock(context.Background(), func(members.Store) error {
		res, err := http.Post(srv.URL+"/reconcile", "application/json", nil)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		return nil
	})
	require.NoError(t, err)
}

func TestPhaseRoutesConflictDuringImport(t *testing.T) {
	store := newMemStore()
	seedDuplicates(store)
	srv, _ := newTestServer(t, store, &fakeFetcher{})

	err := store.WithImportLock(context.Background(), func() error {
		for _, path := range []string{"/duplicates", "/near-duplicates"} {
			res, err := http.Get(srv.URL + path)
			require.NoError(t, err)
			res.Body.Close()
			assert.Equal(t, http.StatusConflict, res.StatusCode, path)
		}
		res, err := http.Post(srv.URL+"/reconcile", "application/json", nil)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		return nil
	})
	require.NoError(t, err)

	target, _ := store.get("20")
	assert.Nil(t, target.Twitter)
}

func TestDuplicateRoutesRequireAdmin(t *testing.T) {
	store := newMemStore()
	store.put(members.Member{ExternalID: "99", Name: ptr("Mark Adler")})
	h := &members.Handler{Store: store, NearThreshold: 0.9, Log: zap.NewNop()}
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	srv := httptest.NewServer(members.SetupRoutes(h, deny))
	t.Cleanup(srv.Close)

	for _, path := range []string{"/duplicates", "/near-duplicates"} {
		res, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusForbidden, res.StatusCode, path)
	}

	res, err := http.Get(srv.URL + "/99")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGetMemberRoute(t *testing.T) {
	store := newMemStore()
	store.put(members.Member{ExternalID: "99", Name: ptr("Mark Adler")})
	srv, _ := newTestServer(t, store, &fakeFetcher{})

	res, err := http.Get(srv.URL + "/99")
	require.NoError(t, err)
	var m members.Member
	require.NoError(t, json.NewDecoder(res.Body).Decode(&m))
	res.Body.Close()
	assert.Equal(t, "Mark Adler", *m.Name)

	res, err = http.Get(srv.URL + "/100")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
