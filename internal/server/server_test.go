package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/daxport/internal/artifact"
	"github.com/leapstack-labs/daxport/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesJSON = `{
  "model": {
    "name": "Shop",
    "tables": [
      {
        "name": "Sales",
        "columns": [
          {"name": "CustomerID", "dataType": "int64"},
          {"name": "Amount", "dataType": "decimal"},
          {"name": "Region", "type": "calculated", "expression": "RELATED(Customers[Region])"}
        ],
        "measures": [
          {"name": "Total", "expression": "SUM(Sales[Amount])"},
          {"name": "Top", "expression": "TOPN(5, Sales, [Total])"}
        ]
      },
      {"name": "Customers", "columns": [{"name": "CustomerID"}, {"name": "Region"}]}
    ],
    "relationships": [
      {"fromTable": "Sales", "fromColumn": "CustomerID", "toTable": "Customers", "toColumn": "CustomerID"}
    ]
  }
}`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Config{Logger: testutil.NewTestLogger(t)})
}

func do(t *testing.T, srv *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	rr := do(t, newTestServer(t), http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRequestLogging(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger(slog.LevelInfo)
	srv := New(Config{Logger: logger})

	do(t, srv, http.MethodGet, "/healthz", "", "")
	do(t, srv, http.MethodGet, "/nope", "", "")

	lines := logs.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "method=GET")
	assert.Contains(t, lines[0], "path=/healthz")
	assert.Contains(t, lines[0], "status=200")
	assert.Contains(t, lines[0], "request_id=")
	assert.Contains(t, lines[1], "status=404")
}

func TestTranslate(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name        string
		expression  string
		sql         string
		status      string
		unsupported []string
		errContains string
	}{
		{
			name:        "translated",
			expression:  "SUM(Sales[Amount])",
			sql:         "SUM(Sales.Amount)",
			status:      "translated",
			unsupported: []string{},
		},
		{
			name:        "unsupported",
			expression:  "TOPN(5, Sales, [Total])",
			status:      "unsupported",
			unsupported: []string{"TOPN"},
		},
		{
			name:        "failed",
			expression:  `"oops`,
			status:      "failed",
			unsupported: []string{},
			errContains: "unterminated string literal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(translateRequest{Expression: tt.expression})
			require.NoError(t, err)

			rr := do(t, srv, http.MethodPost, "/api/v1/translate", "application/json", string(payload))
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			var resp translateResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.sql, resp.SQL)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.unsupported, resp.Unsupported)
			assert.NotNil(t, resp.Warnings)
			if tt.errContains != "" {
				assert.Contains(t, resp.Error, tt.errContains)
			} else {
				assert.Empty(t, resp.Error)
			}
		})
	}
}

func TestTranslateBadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		code        int
		errText     string
	}{
		{name: "invalid json", method: http.MethodPost, contentType: "application/json", body: "{", code: http.StatusBadRequest, errText: "invalid request payload"},
		{name: "empty expression", method: http.MethodPost, contentType: "application/json", body: `{"expression": "  "}`, code: http.StatusBadRequest, errText: "expression is required"},
		{name: "wrong content type", method: http.MethodPost, contentType: "text/plain", body: "SUM(x)", code: http.StatusUnsupportedMediaType},
		{name: "wrong method", method: http.MethodGet, code: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, "/api/v1/translate", tt.contentType, tt.body)
			assert.Equal(t, tt.code, rr.Code)
			if tt.errText != "" {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, tt.errText, resp.Error)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	srv := New(Config{
		Artifacts: artifact.Config{Catalog: "lake"},
		Logger:    testutil.NewTestLogger(t),
	})

	rr := do(t, srv, http.MethodPost, "/api/v1/convert?materialize=true&schema=gold", "application/json", salesJSON)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp convertResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Shop", resp.Model)
	assert.Equal(t, "sql", resp.Format)
	assert.Equal(t, artifact.Summary{Tables: 2, Translated: 2, Unsupported: 1, Flagged: 1}, resp.Summary)
	assert.Contains(t, resp.SQL, "CREATE OR REPLACE VIEW lake.gold.Sales_semantic AS")
	assert.Contains(t, resp.SQL, "FROM lake.raw.Sales;")
	assert.Less(t, strings.Index(resp.SQL, "Customers_semantic"), strings.Index(resp.SQL, "Sales_semantic"))

	require.Len(t, resp.Expressions, 3)
	byName := map[string]slotResponse{}
	for _, e := range resp.Expressions {
		byName[e.Name] = e
	}
	assert.Equal(t, "SUM(Sales.Amount)", byName["Total"].SQL)
	assert.Equal(t, "unsupported", byName["Top"].Status)
	assert.Contains(t, byName["Top"].Reason, "TOPN")
	assert.Equal(t, "calculated_column", byName["Region"].Kind)
	assert.NotEmpty(t, byName["Region"].Review)
}

func TestConvertYAMLNotebook(t *testing.T) {
	srv := newTestServer(t)
	body := "name: Tiny\ntables:\n  - name: T\n    columns: [{name: A}]\n    measures:\n      - {name: M, expression: \"COUNTROWS(T)\"}\n"

	rr := do(t, srv, http.MethodPost, "/api/v1/convert?format=notebook", "application/yaml", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp convertResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "notebook", resp.Format)

	var nb map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.SQL), &nb))
	assert.EqualValues(t, 4, nb["nbformat"])
}

func TestConvertBadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name    string
		target  string
		body    string
		errText string
	}{
		{name: "bad materialize", target: "/api/v1/convert?materialize=maybe", body: salesJSON, errText: "materialize must be a boolean"},
		{name: "bad format", target: "/api/v1/convert?format=pdf", body: salesJSON, errText: "format must be sql or notebook"},
		{name: "invalid json", target: "/api/v1/convert", body: "{", errText: "invalid json"},
		{name: "no tables", target: "/api/v1/convert", body: `{"name": "x"}`, errText: "model has no tables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tt.target, "application/json", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.errText)
		})
	}
}

func TestRules(t *testing.T) {
	rr := do(t, newTestServer(t), http.MethodGet, "/api/v1/rules", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var rules []ruleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rules))
	require.NotEmpty(t, rules)

	var found bool
	for _, r := range rules {
		if r.Name == "DIVIDE" {
			found = true
			assert.Equal(t, "rewrite", r.Kind)
		}
	}
	assert.True(t, found)
}

func TestServeListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer(t).ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
