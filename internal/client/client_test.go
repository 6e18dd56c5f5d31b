package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniquify-worker/pkg/models"
)

var fast = Options{RetryMax: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: 2 * time.Millisecond}

func TestPublishManifest(t *testing.T) {
	var got models.BatchManifest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/batches/B1/manifest", r.URL.Path)
		assert.Equal(t, "w1", r.Header.Get("X-Worker-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewReportClient(srv.URL+"/", "w1", fast, zerolog.Nop())
	err := c.PublishManifest(context.Background(), &models.BatchManifest{BatchID: "B1", Requested: 3, Succeeded: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Succeeded)
}

func TestUpdateProgressRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var p models.ProgressPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "w1", p.WorkerID)
		assert.Equal(t, http.MethodPatch, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewReportClient(srv.URL, "w1", fast, zerolog.Nop())
	require.NoError(t, c.UpdateProgress(context.Background(), models.ProgressPayload{BatchID: "B1", Done: 1, Total: 3}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestStateErrorOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewReportClient(srv.URL, "w1", fast, zerolog.Nop())
	err := c.UpdateProgress(context.Background(), models.ProgressPayload{BatchID: "gone"})
	var se *ReportStateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewReportClient(srv.URL, "w1", fast, zerolog.Nop())
	err := c.PublishManifest(context.Background(), &models.BatchManifest{BatchID: "B1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
