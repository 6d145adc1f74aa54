package builder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/notnil/chess"

	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/tablebase"
	"github.com/discochess/gambit/internal/tablebase/shardbase"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const testPGN = `[Event "Rated Blitz game"]
[White "alice"]
[Black "bob"]
[WhiteElo "2000"]
[BlackElo "1900"]
[Result "1-0"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6 5. O-O Be7 1-0

[Event "Rated Blitz game"]
[White "carol"]
[Black "dave"]
[WhiteElo "2100"]
[BlackElo "2100"]
[Result "1/2-1/2"]

1. e4 c5 2. Nf3 d6 3. d4 cxd4 4. Nxd4 Nf6 5. Nc3 a6 1/2-1/2

[Event "Rated Blitz game"]
[White "erin"]
[Black "frank"]
[WhiteElo "2100"]
[BlackElo "2100"]
[Result "0-1"]

1. d4 d5 2. c4 e6 3. Nc3 Nf6 4. Bg5 Be7 5. e3 O-O 0-1

[Event "Rated Bullet game"]
[White "gina"]
[Black "hank"]
[WhiteElo "1500"]
[BlackElo "1500"]
[Result "1-0"]

1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0
`

func collect[T any](t *testing.T, src Source, input string) map[string]T {
	t.Helper()
	got := make(map[string]T)
	err := src.Records(context.Background(), strings.NewReader(input), func(key string, line []byte) error {
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("emitted invalid JSON %q: %v", line, err)
		}
		got[key] = rec
		return nil
	})
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	return got
}

func normalized(t *testing.T, moves ...string) string {
	t.Helper()
	g := chess.NewGame()
	for _, m := range moves {
		if err := g.MoveStr(m); err != nil {
			t.Fatalf("MoveStr(%q) error = %v", m, err)
		}
	}
	key, err := fen.Normalize(g.Position().String())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return key
}

func TestRepertoireSource_Records(t *testing.T) {
	src := NewRepertoireSource()
	got := collect[repertoire.Record](t, src, testPGN)

	if read, accepted := src.Games(); read != 4 || accepted != 3 {
		t.Errorf("Games() = %d, %d, want 4, 3 (short game rejected)", read, accepted)
	}

	start := got[normalized(t)]
	if len(start.Moves) != 2 {
		t.Fatalf("start moves = %+v, want e2e4 and d2d4", start.Moves)
	}
	want := []repertoire.Entry{
		{Move: "e2e4", Weight: 3, Wins: 1, Draws: 1},
		{Move: "d2d4", Weight: 0, Losses: 1},
	}
	for i, w := range want {
		if start.Moves[i] != w {
			t.Errorf("start.Moves[%d] = %+v, want %+v", i, start.Moves[i], w)
		}
	}

	// Black's replies are credited to Black.
	afterE4 := got[normalized(t, "e4")]
	if len(afterE4.Moves) != 2 || afterE4.Moves[0].Move != "c7c5" || afterE4.Moves[1].Move != "e7e5" {
		t.Errorf("after e4 = %+v, want c7c5 (draw) before e7e5 (loss)", afterE4.Moves)
	}
	if afterE4.Moves[1].Losses != 1 {
		t.Errorf("e7e5 losses = %d, want 1", afterE4.Moves[1].Losses)
	}

	for key, rec := range got {
		if rec.Key != key {
			t.Errorf("record key %q emitted under %q", rec.Key, key)
		}
	}
}

func TestRepertoireSource_Filters(t *testing.T) {
	tests := []struct {
		name     string
		opts     []RepertoireOption
		accepted int
	}{
		{"elo floor", []RepertoireOption{WithEloRange(1950, 0)}, 2},
		{"elo ceiling", []RepertoireOption{WithEloRange(0, 2050)}, 1},
		{"decisive only", []RepertoireOption{WithResults("1-0", "0-1")}, 2},
		{"short games allowed", []RepertoireOption{WithGameLength(1, 200)}, 4},
		{"long games only", []RepertoireOption{WithGameLength(11, 0)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewRepertoireSource(tt.opts...)
			collect[repertoire.Record](t, src, testPGN)
			if _, accepted := src.Games(); accepted != tt.accepted {
				t.Errorf("accepted = %d, want %d", accepted, tt.accepted)
			}
		})
	}
}

func TestRepertoireSource_BookPliesAndMinGames(t *testing.T) {
	got := collect[repertoire.Record](t, NewRepertoireSource(WithBookPlies(1)), testPGN)
	if len(got) != 1 {
		t.Errorf("positions = %d, want only the start position", len(got))
	}

	got = collect[repertoire.Record](t, NewRepertoireSource(WithMinGames(2)), testPGN)
	start := got[normalized(t)]
	if len(start.Moves) != 1 || start.Moves[0].Move != "e2e4" {
		t.Errorf("start moves = %+v, want only e2e4", start.Moves)
	}
	if _, ok := got[normalized(t, "d4")]; ok {
		t.Error("position seen in one game kept with WithMinGames(2)")
	}
}

func TestRepertoireSource_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRepertoireSource().Records(ctx, strings.NewReader(testPGN), func(string, []byte) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Records() error = %v, want context.Canceled", err)
	}
}

func TestPGNError(t *testing.T) {
	tests := []struct {
		name  string
		pgn   string
		games int
	}{
		{"no trailing newline", "[Result \"1-0\"]\n\n1. e4 e5 2. Nf3 1-0", 1},
		{"several games", testPGN, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := chess.NewScanner(strings.NewReader(tt.pgn))
			games := 0
			for scanner.Scan() {
				games++
			}
			if games != tt.games {
				t.Errorf("scanned %d games, want %d", games, tt.games)
			}
			if err := PGNError(scanner); err != nil {
				t.Errorf("PGNError() = %v, want nil", err)
			}
		})
	}
}

func TestTablebaseSource_Records(t *testing.T) {
	input := strings.Join([]string{
		`{"fen":"7k/8/8/8/8/8/8/K5Q1 w - - 0 50","wdl":2,"dtz":5,"moves":[{"uci":"g1a7","wdl":2,"dtz":4}]}`,
		`{"key":"4k3/8/8/8/8/8/4P3/R3K2R w KQ -","wdl":2,"dtz":1}`,
		`{"fen":"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1","wdl":0}`,
		`{"fen":"not a fen","wdl":0}`,
		`not json`,
		``,
	}, "\n")

	src := NewTablebaseSource(0)
	got := collect[shardbase.Record](t, src, input)

	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if src.Skipped() != 3 {
		t.Errorf("Skipped() = %d, want 3", src.Skipped())
	}

	rec, ok := got["7k/8/8/8/8/8/8/K5Q1 w - -"]
	if !ok {
		t.Fatalf("record not keyed by normalized FEN: %v", got)
	}
	if rec.WDL != tablebase.Win || len(rec.Moves) != 1 || rec.Moves[0].UCI != "g1a7" {
		t.Errorf("record = %+v, want win via g1a7", rec)
	}
	if src.MaxPieces() != shardbase.DefaultMaxPieces {
		t.Errorf("MaxPieces() = %d, want %d", src.MaxPieces(), shardbase.DefaultMaxPieces)
	}
}
