package http

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
)

// fakeActivity guarda el rango pedido y devuelve lo configurado.
type fakeActivity struct {
	start, end time.Time
	rows       []catalogDomain.DailyActivity
	err        error
}

func (f *fakeActivity) GetDailyActivity(_ context.Context, start, end time.Time) ([]catalogDomain.DailyActivity, error) {
	f.start, f.end = start, end
	return f.rows, f.err
}

func activityRouter(reader catalogDomain.ActivityReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterProductRoutes(r, NewProductHandler(nil, nil, nil, reader, time.Second, zap.NewNop()))
	return r
}

func TestDailyActivity_InclusiveRange(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	reader := &fakeActivity{rows: []catalogDomain.DailyActivity{
		{Day: day, EventType: catalogDomain.ProductCreated, Count: 4},
	}}
	r := activityRouter(reader)

	rec, env := do(r, http.MethodGet, "/analytics/activity?from=2026-03-01&to=2026-03-02", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), reader.start)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), reader.end)
	got := decode[[]catalogDomain.DailyActivity](t, env.Data)
	assert.Equal(t, reader.rows, got)
}

func TestDailyActivity_DefaultsToLastWeek(t *testing.T) {
	reader := &fakeActivity{}
	r := activityRouter(reader)

	rec, _ := do(r, http.MethodGet, "/analytics/activity", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	assert.Equal(t, 7*24*time.Hour, reader.end.Sub(reader.start))
}

func TestDailyActivity_Errors(t *testing.T) {
	tests := []struct {
		name   string
		reader catalogDomain.ActivityReader
		query  string
		status int
	}{
		{"not configured", nil, "", http.StatusNotImplemented},
		{"bad date", &fakeActivity{}, "?from=yesterday", http.StatusBadRequest},
		{"reversed range", &fakeActivity{}, "?from=2026-03-05&to=2026-03-01", http.StatusBadRequest},
		{"backend failure", &fakeActivity{err: errors.New("clickhouse down")}, "?from=2026-03-01&to=2026-03-01", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(activityRouter(tt.reader), http.MethodGet, "/analytics/activity"+tt.query, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
