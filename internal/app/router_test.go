package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campusledger/campusledger/internal/auth"
	"github.com/campusledger/campusledger/internal/fees"
	"github.com/campusledger/campusledger/internal/rbac"
	"github.com/campusledger/campusledger/internal/shared"
	"github.com/campusledger/campusledger/jobs"
)

func routerFixture(t *testing.T) (http.Handler, *shared.TokenStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := shared.NewTokenStore(client, time.Hour)

	logger := testLogger()
	roleGate := rbac.Middleware{Logger: logger}
	router := NewRouter(RouterParams{
		Logger:      logger,
		TokenStore:  store,
		AuthHandler: auth.NewHandler(logger, nil),
		FeesHandler: fees.NewHandler(logger, nil, roleGate),
		JobHandler:  jobs.NewHandler(nil, logger),
		RBAC:        roleGate,
	})
	return router, store
}

func getAs(t *testing.T, router http.Handler, store *shared.TokenStore, role, path string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := store.Issue(context.Background(), shared.Session{UserID: 1, Role: role, BranchID: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestJobsHealthRequiresAdminRole(t *testing.T) {
	router, store := routerFixture(t)

	rr := getAs(t, router, store, "teacher", "/api/jobs/health")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = getAs(t, router, store, "student", "/api/jobs/health")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = getAs(t, router, store, "admin", "/api/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = getAs(t, router, store, "superadmin", "/api/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthzOpen(t *testing.T) {
	router, _ := routerFixture(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
