package gasflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/tools"
)

func entsogServer(t *testing.T, operational string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/connectionPoints":
			assert.Equal(t, "1", r.URL.Query().Get("extended"))
			_, _ = w.Write([]byte(`{"connectionPoints":[{"key":"ITP-00001","label":"Kiskundorozsma"},{"key":"ITP-00447","label":"VIP Bereg"}]}`))
		case "/operationaldatas":
			q := r.URL.Query()
			assert.Equal(t, "ITP-00447", q.Get("pointKey"))
			assert.Equal(t, "Physical Flow", q.Get("indicator"))
			assert.Equal(t, "exit", q.Get("directionKey"))
			assert.Equal(t, "day", q.Get("periodType"))
			_, _ = w.Write([]byte(operational))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExportedQuantity(t *testing.T) {
	srv := entsogServer(t, `{"operationalData":[
		{"gasDay":"2025-01-02","value":"200","unit":"kWh/d","indicator":"Physical Flow"},
		{"gasDay":"2025-01-01","value":100,"unit":"kWh/d"},
		{"gasDay":"2025-01-03","value":null}
	]}`)
	c := NewClient(srv.URL, WithRate(0))

	report, err := c.ExportedQuantity(context.Background(), "vip bereg", "2025-01-01", "2025-01-03")
	require.NoError(t, err)
	assert.Equal(t, "ITP-00447", report.PointKey)
	assert.Equal(t, 300.0, report.Total)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "2025-01-01", report.Results[0].Date)
	assert.Equal(t, "2025-01-02", report.Results[1].Date)
	assert.Contains(t, report.Summary, "Returned 2 value(s), total: 300 kWh")
}

func TestExportedQuantitySingleObject(t *testing.T) {
	srv := entsogServer(t, `{"operationalData":{"periodFrom":"2025-01-01","value":42}}`)
	report, err := NewClient(srv.URL, WithRate(0)).ExportedQuantity(context.Background(), "VIP Bereg", "2025-01-01", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, 42.0, report.Total)
	assert.Equal(t, "kWh", report.Results[0].Unit)
}

func TestToolThroughRegistry(t *testing.T) {
	srv := entsogServer(t, `{"operationalData":[]}`)
	reg := tools.NewRegistry(tools.WithTimeout(5 * time.Second))
	require.NoError(t, reg.Register(NewTool(NewClient(srv.URL, WithRate(0)))))

	ok := reg.Invoke(context.Background(), model.ToolCall{Tool: ToolName, Arguments: map[string]any{
		"pointLabel": "VIP Bereg", "from": "2025-01-01", "to": "2025-01-31",
	}})
	require.True(t, ok.Success, "%+v", ok.Error)
	assert.Equal(t, float64(0), ok.Result.(map[string]any)["total"])

	reversed := reg.Invoke(context.Background(), model.ToolCall{Tool: ToolName, Arguments: map[string]any{
		"pointLabel": "VIP Bereg", "from": "2025-02-01", "to": "2025-01-31",
	}})
	require.NotNil(t, reversed.Error)
	assert.Equal(t, model.KindValidation, reversed.Error.Kind)

	badDate := reg.Invoke(context.Background(), model.ToolCall{Tool: ToolName, Arguments: map[string]any{
		"pointLabel": "VIP Bereg", "from": "01/02/2025", "to": "2025-01-31",
	}})
	require.NotNil(t, badDate.Error)
	assert.Equal(t, model.KindValidation, badDate.Error.Kind)

	unknown := reg.Invoke(context.Background(), model.ToolCall{Tool: ToolName, Arguments: map[string]any{
		"pointLabel": "Nowhere", "from": "2025-01-01", "to": "2025-01-31",
	}})
	require.NotNil(t, unknown.Error)
	assert.Equal(t, model.KindValidation, unknown.Error.Kind)
}

func TestUpstreamFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(NewTool(NewClient(srv.URL, WithRate(0)))))
	rec := reg.Invoke(context.Background(), model.ToolCall{Tool: ToolName, Arguments: map[string]any{
		"pointLabel": "VIP Bereg", "from": "2025-01-01", "to": "2025-01-31",
	}})
	require.NotNil(t, rec.Error)
	assert.Equal(t, model.KindTransport, rec.Error.Kind)
	assert.Contains(t, rec.Error.Message, "503")
}

func TestRateLimitWaitPastDeadlineIsTimeout(t *testing.T) {
	srv := entsogServer(t, `{"operationalData":[]}`)
	reg := tools.NewRegistry(tools.WithTimeout(time.Second))
	// one request per 100s: the flow request cannot get a token before the deadline
	require.NoError(t, reg.Register(NewTool(NewClient(srv.URL, WithRate(0.01)))))

	started := time.Now()
	rec := reg.Invoke(context.Background(), model.ToolCall{Tool: ToolName, Arguments: map[string]any{
		"pointLabel": "VIP Bereg", "from": "2025-01-01", "to": "2025-01-31",
	}})
	require.NotNil(t, rec.Error)
	assert.Equal(t, model.KindTimeout, rec.Error.Kind)
	assert.Less(t, time.Since(started), time.Second)
}
