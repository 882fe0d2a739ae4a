package fees

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/campusledger/campusledger/internal/rbac"
	"github.com/campusledger/campusledger/internal/shared"
)

func testRouter(t *testing.T, role string) http.Handler {
	t.Helper()
	_, svc := fixture(t)
	return routerFor(svc, role)
}

func routerFor(svc *Service, role string) http.Handler {
	h := NewHandler(testLogger(), svc, rbac.Middleware{Logger: testLogger()})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := &shared.Session{UserID: 1, Name: "Tester", Role: role, BranchID: testBranch}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/studentFees", h.MountRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCollectEndpoint(t *testing.T) {
	router := testRouter(t, "admin")

	rr := doJSON(t, router, http.MethodPost, "/api/studentFees/collect", `{
		"studentId": 7, "sessionId": 1, "month": "May",
		"modeOfPayment": "Cash", "collectionDate": "2025-05-05", "amountPaid": 400
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Success   bool              `json:"success"`
		PaymentID string            `json:"paymentId"`
		Fees      []*FeeLedgerEntry `json:"fees"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "REC-000001", resp.PaymentID)
	require.Len(t, resp.Fees, 1)
	require.Equal(t, StatusPartiallyPaid, resp.Fees[0].Status)
	require.Equal(t, 600.0, resp.Fees[0].BalanceAmount)
}

func TestCollectForbiddenForTeacher(t *testing.T) {
	router := testRouter(t, "teacher")

	rr := doJSON(t, router, http.MethodPost, "/api/studentFees/collect", `{
		"studentId": 7, "sessionId": 1, "month": "May",
		"modeOfPayment": "Cash", "collectionDate": "2025-05-05", "amountPaid": 400
	}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCollectSuperadminBypass(t *testing.T) {
	router := testRouter(t, "superadmin")

	rr := doJSON(t, router, http.MethodPost, "/api/studentFees/collect", `{
		"studentId": 7, "sessionId": 1, "month": "May",
		"modeOfPayment": "Cash", "collectionDate": "2025-05-05", "amountPaid": 400
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestCollectValidationProblem(t *testing.T) {
	router := testRouter(t, "admin")

	rr := doJSON(t, router, http.MethodPost, "/api/studentFees/collect", `{
		"studentId": 7, "sessionId": 1, "month": "May",
		"modeOfPayment": "Cheque", "collectionDate": "2025-05-05", "amountPaid": 400
	}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "cheque")
}

func TestCollectIdempotencyKeyEndpoint(t *testing.T) {
	_, svc := fixture(t)
	svc.idem = &memIdem{keys: map[string]bool{}}
	router := routerFor(svc, "admin")

	body := `{
		"studentId": 7, "sessionId": 1, "month": "May",
		"modeOfPayment": "Cash", "collectionDate": "2025-05-05", "amountPaid": 400
	}`
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/studentFees/collect", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "collect-7-may")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := send()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = send()
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
}

func TestFeesByMonthEndpoint(t *testing.T) {
	router := testRouter(t, "teacher")

	rr := doJSON(t, router, http.MethodGet, "/api/studentFees/7/fees-by-month/May?sessionId=1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Fees []*FeeLedgerEntry `json:"fees"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Fees, 1)
	require.Equal(t, "May", resp.Fees[0].Month)
	require.Equal(t, StatusPending, resp.Fees[0].Status)
	require.Equal(t, 1000.0, resp.Fees[0].NetPayable)
}

func TestFeesByMonthUnknownMonth(t *testing.T) {
	router := testRouter(t, "admin")

	rr := doJSON(t, router, http.MethodGet, "/api/studentFees/7/fees-by-month/Sept?sessionId=1", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFeesBySessionEndpoint(t *testing.T) {
	router := testRouter(t, "admin")

	rr := doJSON(t, router, http.MethodGet, "/api/studentFees/7/fees-by-month/Apr?sessionId=1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/studentFees/7/fees-by-session/1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Months []MonthOverview `json:"months"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Months, 12)
	require.Equal(t, StatusPending, resp.Months[0].Status)
	require.Equal(t, StatusNotGenerated, resp.Months[1].Status)
}

func TestPreviewNextIDEndpoint(t *testing.T) {
	router := testRouter(t, "admin")

	rr := doJSON(t, router, http.MethodGet, "/api/studentFees/preview-next-id", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "REC-000001")
}

func TestEditPaymentEndpoint(t *testing.T) {
	router := testRouter(t, "admin")

	rr := doJSON(t, router, http.MethodPost, "/api/studentFees/collect", `{
		"studentId": 7, "sessionId": 1, "month": "May",
		"modeOfPayment": "Cash", "collectionDate": "2025-05-05", "amountPaid": 500
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var collected struct {
		Fees []*FeeLedgerEntry `json:"fees"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &collected))
	paymentID := collected.Fees[0].PaymentDetails[0].ID

	rr = doJSON(t, router, http.MethodPut, "/api/studentFees/edit-payment", `{
		"studentId": 7, "sessionId": 1, "month": "May", "paymentDetailId": `+jsonInt(paymentID)+`,
		"modeOfPayment": "Cash", "collectionDate": "2025-05-06", "amountPaid": 700
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Fees []*FeeLedgerEntry `json:"fees"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 700.0, resp.Fees[0].AmountPaid)
	require.Equal(t, 300.0, resp.Fees[0].BalanceAmount)
	require.Len(t, resp.Fees[0].PaymentDetails, 1)
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}
