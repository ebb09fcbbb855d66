package kie

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanobanano/miniapp/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.Config{
		KIEAPIKey:      "test-key",
		KIEBaseURL:     srv.URL,
		RequestTimeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateTaskSuccess(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/jobs/createTask", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"model":"google/nano-banana"`)
		assert.Contains(t, string(body), `"image_size":"1:1"`)

		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-123"}}`))
	})

	taskID, err := client.CreateTask(context.Background(), "a cat", "1:1")
	require.NoError(t, err)
	assert.Equal(t, "task-123", taskID)
}

func TestCreateTaskProviderRejection(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":422,"msg":"prompt rejected","data":null}`))
	})

	_, err := client.CreateTask(context.Background(), "bad prompt", "1:1")
	require.Error(t, err)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 422, providerErr.Code)
	assert.Equal(t, "prompt rejected", providerErr.Msg)
	assert.Equal(t, "prompt rejected", providerErr.Error())
}

func TestCreateTaskEmptyTaskID(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"msg":"success","data":{}}`))
	})

	_, err := client.CreateTask(context.Background(), "a cat", "1:1")
	assert.ErrorContains(t, err, "empty taskId")
}

func TestCreateTaskDecodeError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})

	_, err := client.CreateTask(context.Background(), "a cat", "1:1")
	assert.ErrorContains(t, err, "decode createTask response")
}

func TestTaskStatusSuccessWithResult(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/recordInfo", r.URL.Path)
		assert.Equal(t, "task-123", r.URL.Query().Get("taskId"))

		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-123","state":"success","resultJson":"{\"resultUrls\":[\"http://x/y.jpg\",\"http://x/z.jpg\"]}"}}`))
	})

	status, err := client.TaskStatus(context.Background(), "task-123")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, status.State)
	assert.Equal(t, "http://x/y.jpg", status.ResultURL)
}

func TestTaskStatusSuccessWithoutResult(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-123","state":"success","resultJson":""}}`))
	})

	status, err := client.TaskStatus(context.Background(), "task-123")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, status.State)
	assert.Empty(t, status.ResultURL)
}

func TestTaskStatusFail(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-123","state":"fail","failCode":"500","failMsg":"boom"}}`))
	})

	status, err := client.TaskStatus(context.Background(), "task-123")
	require.NoError(t, err)
	assert.Equal(t, StateFail, status.State)
}

func TestTaskStatusEnvelopeErrorIsFail(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":404,"msg":"record not found","data":null}`))
	})

	status, err := client.TaskStatus(context.Background(), "task-123")
	require.NoError(t, err)
	assert.Equal(t, StateFail, status.State)
}

func TestTaskStatusIntermediateStatesAreWaiting(t *testing.T) {
	for _, state := range []string{"waiting", "queuing", "generating", "brand-new-state"} {
		t.Run(state, func(t *testing.T) {
			client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-123","state":"` + state + `"}}`))
			})

			status, err := client.TaskStatus(context.Background(), "task-123")
			require.NoError(t, err)
			assert.Equal(t, StateWaiting, status.State)
		})
	}
}

func TestTaskStatusDecodeError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`garbage`))
	})

	_, err := client.TaskStatus(context.Background(), "task-123")
	assert.ErrorContains(t, err, "decode recordInfo response")
}

func TestFirstResultURLMalformedJSON(t *testing.T) {
	assert.Empty(t, firstResultURL("{not json"))
	assert.Empty(t, firstResultURL(`{"resultUrls":[]}`))
	assert.Equal(t, "http://a/b.jpg", firstResultURL(`{"resultUrls":["http://a/b.jpg"]}`))
}
