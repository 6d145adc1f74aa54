package lichess

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/discochess/gambit/internal/tablebase"
)

const krk = "8/8/8/4k3/8/8/4K3/4R3 w - - 0 1"

func TestClient_Probe(t *testing.T) {
	var gotFEN string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFEN = r.URL.Query().Get("fen")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"category": "win", "dtz": 31,
			"moves": [
				{"uci": "e1e4", "category": "loss", "dtz": -30},
				{"uci": "e2d3", "category": "loss", "dtz": -28},
				{"uci": "e1e3", "category": "draw", "dtz": 0},
				{"uci": "e2f2", "category": "unknown"}
			]
		}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithRateLimit(1000, 1))
	res, err := c.Probe(context.Background(), krk)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if gotFEN != krk {
		t.Errorf("server saw fen %q, want %q", gotFEN, krk)
	}
	if res.WDL != tablebase.Win || res.DTZ != 31 {
		t.Errorf("Probe() = %v dtz %d, want win dtz 31", res.WDL, res.DTZ)
	}
	if len(res.Moves) != 3 {
		t.Fatalf("len(Moves) = %d, want 3 (unknown skipped)", len(res.Moves))
	}
	if res.Moves[0].WDL != tablebase.Win || res.Moves[2].WDL != tablebase.Draw {
		t.Errorf("Moves = %+v, want categories inverted to the mover", res.Moves)
	}

	best, ok := res.BestMove()
	if !ok || best.UCI != "e2d3" {
		t.Errorf("BestMove() = %q, %v, want e2d3", best.UCI, ok)
	}
}

func TestClient_SkipsLargePositions(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	_, err := c.Probe(context.Background(), "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if !errors.Is(err, tablebase.ErrNotFound) {
		t.Errorf("Probe() error = %v, want ErrNotFound", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, "", ErrRateLimited},
		{"not found", http.StatusNotFound, "", tablebase.ErrNotFound},
		{"server error", http.StatusBadGateway, "", tablebase.ErrUnavailable},
		{"unknown category", http.StatusOK, `{"category":"unknown"}`, tablebase.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(WithBaseURL(srv.URL), WithRateLimit(1000, 1))
			if _, err := c.Probe(context.Background(), krk); !errors.Is(err, tt.wantErr) {
				t.Errorf("Probe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(WithBaseURL(url))
	if _, err := c.Probe(context.Background(), krk); !errors.Is(err, tablebase.ErrUnavailable) {
		t.Errorf("Probe() error = %v, want ErrUnavailable", err)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		in     string
		want   tablebase.WDL
		wantOK bool
	}{
		{"win", tablebase.Win, true},
		{"maybe-win", tablebase.Win, true},
		{"cursed-win", tablebase.CursedWin, true},
		{"draw", tablebase.Draw, true},
		{"blessed-loss", tablebase.BlessedLoss, true},
		{"syzygy-loss", tablebase.Loss, true},
		{"unknown", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := category(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("category(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
