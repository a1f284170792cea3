package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"symphony/internal/domain"
	"symphony/internal/repository"
	l1_service "symphony/internal/service/l1"
	l2_service "symphony/internal/service/l2"
	l3_service "symphony/internal/service/l3"
	"symphony/internal/util"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const overboughtStrategy = `{
	"type": "if",
	"predicate": {
		"lhs": {"fn": "rsi", "symbol": "QQQE", "window": 10},
		"op": ">",
		"rhs": {"value": 79}
	},
	"then": [{"type": "asset", "ticker": "UVXY"}],
	"else": [{"type": "asset", "ticker": "SPY"}]
}`

func newTestRouter(t *testing.T, jwtDecodeToken string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	provider := repository.NewInMemoryPriceRepository(0)
	provider.AddSeries("QQQE", util.NewDate(2024, 3, 1), []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 108.5, 107})

	evaluator := l2_service.NewSymphonyEvaluator(
		l1_service.NewPriceService(provider, 0),
		l2_service.EvaluatorOptions{},
	)
	handler := ApiHandler{
		StrategyService:  l3_service.NewStrategyService(evaluator, provider, 2),
		JwtDecodeToken:   jwtDecodeToken,
		DefaultPrecision: 6,
	}
	return handler.InitializeRouterEngine()
}

func post(t *testing.T, router *gin.Engine, route string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, route, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func evaluateBody(strategy string, asOf string, trace bool) string {
	b, _ := json.Marshal(map[string]interface{}{
		"strategy": json.RawMessage(strategy),
		"asOf":     asOf,
		"trace":    trace,
	})
	return string(b)
}

func TestEvaluate(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		w := post(t, newTestRouter(t, ""), "/evaluate", evaluateBody(overboughtStrategy, "2024-03-01", true), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotEmpty(t, w.Header().Get("X-Request-ID"))

		response := EvaluateResponse{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Equal(t, "2024-03-01", response.AsOf)
		require.Equal(t, "", cmp.Diff(domain.Allocation{
			{Symbol: "UVXY", Weight: decimal.NewFromInt(1)},
		}, response.Allocation))
		require.NotNil(t, response.Trace)
		require.Len(t, response.Trace.Decisions, 1)
		require.Equal(t, 1, response.Stats.IndicatorsComputed)
	})

	t.Run("trace is opt in", func(t *testing.T) {
		w := post(t, newTestRouter(t, ""), "/evaluate", evaluateBody(overboughtStrategy, "2024-03-01", false), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := EvaluateResponse{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Nil(t, response.Trace)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := post(t, newTestRouter(t, ""), "/evaluate", `{"strategy": `, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		w := post(t, newTestRouter(t, ""), "/evaluate", evaluateBody(overboughtStrategy, "03/01/2024", false), nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid strategy", func(t *testing.T) {
		w := post(t, newTestRouter(t, ""), "/evaluate", evaluateBody(`{"type": "rebalance"}`, "2024-03-01", false), nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	})

	t.Run("insufficient history", func(t *testing.T) {
		w := post(t, newTestRouter(t, ""), "/evaluate", evaluateBody(overboughtStrategy, "2024-02-29", false), nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.Contains(t, w.Body.String(), "insufficient price history for QQQE")
	})

	t.Run("precision out of range", func(t *testing.T) {
		for _, precision := range []int{-1, l3_service.MaxPrecision + 1} {
			body, err := json.Marshal(map[string]interface{}{
				"strategy":  json.RawMessage(overboughtStrategy),
				"asOf":      "2024-03-01",
				"precision": precision,
			})
			require.NoError(t, err)
			w := post(t, newTestRouter(t, ""), "/evaluate", string(body), nil)
			require.Equal(t, http.StatusBadRequest, w.Code, "precision %d", precision)
			require.Contains(t, w.Body.String(), "precision must be between 0 and 16")
		}
	})

	t.Run("explicit zero precision", func(t *testing.T) {
		body, err := json.Marshal(map[string]interface{}{
			"strategy":  json.RawMessage(overboughtStrategy),
			"asOf":      "2024-03-01",
			"precision": 0,
		})
		require.NoError(t, err)
		w := post(t, newTestRouter(t, ""), "/evaluate", string(body), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("unknown indicator", func(t *testing.T) {
		strategy := `{
			"type": "if",
			"predicate": {"lhs": {"fn": "macd", "symbol": "QQQE", "window": 10}, "op": ">", "rhs": {"value": 1}},
			"then": [{"type": "asset", "ticker": "UVXY"}]
		}`
		w := post(t, newTestRouter(t, ""), "/evaluate", evaluateBody(strategy, "2024-03-01", false), nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	})
}

func TestEvaluateHistory(t *testing.T) {
	body, err := json.Marshal(map[string]interface{}{
		"strategy":             json.RawMessage(overboughtStrategy),
		"start":                "2024-02-26",
		"end":                  "2024-03-01",
		"samplingIntervalUnit": "daily",
		"precision":            2,
	})
	require.NoError(t, err)

	w := post(t, newTestRouter(t, ""), "/evaluateHistory", string(body), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	response := EvaluateHistoryResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	// the series only reaches 11 closes on the last day
	require.Len(t, response.Allocations, 5)
	require.Equal(t, 4, response.NumErrors)
	last := response.Allocations[4]
	require.Equal(t, "2024-03-01", last.Date)
	require.Nil(t, last.Error)
	require.Equal(t, "", cmp.Diff(domain.Allocation{
		{Symbol: "UVXY", Weight: decimal.NewFromInt(1)},
	}, last.Allocation))
	require.NotNil(t, response.Allocations[0].Error)

	t.Run("precision out of range", func(t *testing.T) {
		body, err := json.Marshal(map[string]interface{}{
			"strategy":             json.RawMessage(overboughtStrategy),
			"start":                "2024-02-26",
			"end":                  "2024-03-01",
			"samplingIntervalUnit": "daily",
			"precision":            17,
		})
		require.NoError(t, err)
		w := post(t, newTestRouter(t, ""), "/evaluateHistory", string(body), nil)
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestAuthMiddleware(t *testing.T) {
	secret := "test-secret"
	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	body := evaluateBody(overboughtStrategy, "2024-03-01", false)

	t.Run("missing token", func(t *testing.T) {
		w := post(t, newTestRouter(t, secret), "/evaluate", body, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token := sign(jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
		w := post(t, newTestRouter(t, secret), "/evaluate", body, map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("expired token", func(t *testing.T) {
		token := sign(jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})
		w := post(t, newTestRouter(t, secret), "/evaluate", body, map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token without expiry", func(t *testing.T) {
		token := sign(jwt.MapClaims{"sub": "user-1"})
		w := post(t, newTestRouter(t, secret), "/evaluate", body, map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("other"))
		require.NoError(t, err)
		w := post(t, newTestRouter(t, secret), "/evaluate", body, map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("open when no secret is configured", func(t *testing.T) {
		w := post(t, newTestRouter(t, ""), "/evaluate", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})
}

func Test_statusForError(t *testing.T) {
	require.Equal(t, http.StatusUnprocessableEntity, statusForError(domain.EmptySelectionError{}))
	require.Equal(t, http.StatusUnprocessableEntity, statusForError(domain.IndicatorDomainError{}))
	require.Equal(t, http.StatusInternalServerError, statusForError(http.ErrHandlerTimeout))
}
