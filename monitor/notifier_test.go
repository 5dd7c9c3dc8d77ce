package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/vigil/monitor/internal/store"
)

func TestNotifierFromConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		cfgs    []NotifyConfig
		wantErr bool
	}{
		{"stdout", []NotifyConfig{{Type: "stdout"}}, false},
		{"webhook", []NotifyConfig{{Type: "webhook", URL: "https://hooks.example.com"}}, false},
		{"webhook without url", []NotifyConfig{{Type: "webhook"}}, true},
		{"unknown type", []NotifyConfig{{Type: "pager"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NotifierFromConfig(tt.cfgs, logger)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("err = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NotifierFromConfig: %v", err)
			}
			n.Close()
		})
	}
}

func TestRoutedNotifierDeliversEvent(t *testing.T) {
	var got struct {
		Type string `json:"type"`
		Data struct {
			Target  *store.Target `json:"target"`
			Summary string        `json:"summary"`
		} `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n, err := NotifierFromConfig([]NotifyConfig{{Type: "webhook", URL: srv.URL}}, logger)
	if err != nil {
		t.Fatalf("NotifierFromConfig: %v", err)
	}
	defer n.Close()

	ev := &Event{
		Target:  &store.Target{ID: "tgt_1", URL: "https://example.com"},
		Summary: "https://example.com changed: 1 modified",
	}
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.Type != "change" {
		t.Errorf("envelope type = %q, want change", got.Type)
	}
	if got.Data.Target == nil || got.Data.Target.ID != "tgt_1" {
		t.Errorf("payload target = %+v", got.Data.Target)
	}
	if got.Data.Summary == "" {
		t.Error("payload summary empty")
	}
}
