package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXForecaster/internal/model"
	"FXForecaster/internal/recorder"
)

func sample() model.PredictionResult {
	return model.PredictionResult{
		Symbol:          "EURUSD=X",
		Quote:           model.Quote{Symbol: "EURUSD=X", Price: 1.05, Open: 1.049, High: 1.06, Low: 1.04},
		Value:           1.0520004,
		Confidence:      95.76,
		TimeToClose:     "01:01:01",
		ArtifactVersion: "20261001T230000Z-abcd1234",
		ProducedAt:      time.Date(2026, 10, 1, 21, 58, 59, 0, time.UTC),
	}
}

func TestFormatReport(t *testing.T) {
	out := FormatReport(sample())
	assert.Contains(t, out, "Current Price:              1.05\n")
	assert.Contains(t, out, "Predicted Closing Price:    1.052\n")
	assert.Contains(t, out, "Predicted price is:         0.002 units higher than current price.\n")
	assert.Contains(t, out, "Prediction Confidence:      95.76%\n")
	assert.Contains(t, out, "Time to Market Close:       01:01:01\n")
	assert.Equal(t, 2, strings.Count(out, rule))

	r := sample()
	r.Value = 1.04
	assert.Contains(t, FormatReport(r), "units lower than current price.")
}

func TestFormatRetrain(t *testing.T) {
	start := time.Date(2026, 10, 1, 23, 30, 0, 0, time.UTC)
	ok := FormatRetrain(&recorder.RetrainRun{
		StartedAt: start, FinishedAt: start.Add(42 * time.Second), Symbol: "EURUSD",
		Version: "v1", Outcome: "ok", Rows: 10, Added: 1,
	})
	assert.Contains(t, ok, "Retrain complete")
	assert.Contains(t, ok, "Took: 42s")

	failed := FormatRetrain(&recorder.RetrainRun{
		StartedAt: start, FinishedAt: start, Symbol: "EURUSD",
		Stage: "Fitting", Outcome: "failed", Error: "a < b",
	})
	assert.Contains(t, failed, "Stage: Fitting")
	assert.Contains(t, failed, "a &lt; b")
}

func TestConsoleEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := NewConsoleEmitter(&buf, zerolog.Nop())
	require.NoError(t, e.Emit(context.Background(), sample()))
	assert.Contains(t, buf.String(), "Predicted Closing Price:    1.052")
}

type errEmitter struct{ calls int }

func (e *errEmitter) Emit(context.Context, model.PredictionResult) error {
	e.calls++
	return errors.New("down")
}

func TestMulti_CallsAll(t *testing.T) {
	a, b := &errEmitter{}, &errEmitter{}
	err := Multi{a, b}.Emit(context.Background(), sample())
	assert.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestTelegram_SendAndRetry(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	fail := 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var payload map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		defer mu.Unlock()
		if fail > 0 {
			fail--
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		texts = append(texts, payload["text"])
		assert.Equal(t, "42", payload["chat_id"])
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	tn.BaseURL = srv.URL
	require.NoError(t, tn.SendWithRetry(context.Background(), "hello", 1))
	require.Len(t, texts, 1)
	assert.Equal(t, "hello", texts[0])

	require.NoError(t, tn.Emit(context.Background(), sample()))
	assert.Contains(t, texts[1], "Predicted close: <b>1.052</b>")
}

func TestTelegram_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("bad", "42", "", zerolog.Nop())
	tn.BaseURL = srv.URL
	err := tn.SendWithRetry(context.Background(), "x", 0)
	assert.ErrorContains(t, err, "status 401")
}

func TestTelegram_Polling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var replies []string
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			replies = append(replies, payload["text"])
			cancel()
			return
		}
		polls++
		if polls == 1 {
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":7,"message":{"text":"/status","chat":{"id":99}}},
				{"update_id":8,"message":{"text":" /status ","chat":{"id":42}}}]}`))
			return
		}
		assert.Equal(t, "9", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	tn.BaseURL = srv.URL
	var got []string
	tn.StartPolling(ctx, func(_ context.Context, cmd string) string {
		got = append(got, cmd)
		return "ok: " + cmd
	})

	assert.Equal(t, []string{"/status"}, got)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ok: /status"}, replies)
}
