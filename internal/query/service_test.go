package query

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
	"github.com/fleet-lab/fleet-reporter/internal/core/stats"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeStatsStore struct {
	current *v1.FleetStatistics
	err     error
}

func (f *fakeStatsStore) ApplyDelta(context.Context, stats.BatchDelta, time.Time) (*v1.FleetStatistics, error) {
	panic("not used by query service")
}

func (f *fakeStatsStore) SetAverageHorsepower(context.Context, int64) error {
	panic("not used by query service")
}

func (f *fakeStatsStore) GetFleetStatistics(context.Context) (*v1.FleetStatistics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.current, nil
}

func newTestRouter(store *fakeStatsStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewService(store).RegisterRoutes(r)
	return r
}

func TestHandleGetStatistics(t *testing.T) {
	store := &fakeStatsStore{current: &v1.FleetStatistics{
		TotalVehicles:     5,
		TotalHorsepower:   1000,
		AverageHorsepower: 200,
		TypeCount:         map[string]int64{"sedan": 3, "truck": 2},
		PowerSourceCount:  map[string]int64{"gasoline": 5},
		DecadeCount:       map[string]int64{"2020s": 5},
		LastBatchSize:     2,
	}}
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/fleet-statistics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body v1.FleetStatistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, int64(5), body.TotalVehicles)
	require.Equal(t, int64(200), body.AverageHorsepower)
	require.Equal(t, map[string]int64{"sedan": 3, "truck": 2}, body.TypeCount)
}

func TestHandleGetStatistics_CompletesPartialShape(t *testing.T) {
	// Stores may return nil maps for fields that never got a value; the
	// boundary must still report a complete shape.
	store := &fakeStatsStore{current: &v1.FleetStatistics{TotalVehicles: 1}}
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/fleet-statistics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body["typeCount"])
	require.NotNil(t, body["powerSourceCount"])
	require.NotNil(t, body["decadeCount"])
}

func TestHandleGetStatistics_StoreError(t *testing.T) {
	store := &fakeStatsStore{err: fmt.Errorf("connection refused")}
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/fleet-statistics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
