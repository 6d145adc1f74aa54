package builder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/notnil/chess"
	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/store"
	"github.com/discochess/gambit/internal/tablebase"
	"github.com/discochess/gambit/internal/tablebase/shardbase"
)

// EmitFunc receives one record: its key, the normalized FEN, and the JSON
// line to store.
type EmitFunc func(key string, line []byte) error

// Source turns raw input into the records of one table.
type Source interface {
	// Table names the table the records belong to.
	Table() string

	// Records reads r and calls emit once per record. Keys need not be
	// unique or ordered; the builder sorts each shard.
	Records(ctx context.Context, r io.Reader, emit EmitFunc) error
}

// Repertoire build defaults.
const (
	DefaultMinGamePlies = 10
	DefaultMaxGamePlies = 200
	DefaultBookPlies    = 20
)

// RepertoireSource builds the repertoire table from PGN games. Each of the
// first book plies of an accepted game credits the move played with the
// game's result for the side that played it.
type RepertoireSource struct {
	minElo    int
	maxElo    int
	minPlies  int
	maxPlies  int
	bookPlies int
	minGames  int
	results   map[string]bool
	logger    *zap.Logger

	gamesRead     int
	gamesAccepted int
}

// RepertoireOption configures a RepertoireSource.
type RepertoireOption func(*RepertoireSource)

// WithEloRange accepts games whose players are both rated within
// [min, max]. Zero bounds are open. Games without ratings are rejected
// once a bound is set.
func WithEloRange(min, max int) RepertoireOption {
	return func(s *RepertoireSource) { s.minElo, s.maxElo = min, max }
}

// WithGameLength accepts games of [min, max] plies.
func WithGameLength(min, max int) RepertoireOption {
	return func(s *RepertoireSource) { s.minPlies, s.maxPlies = min, max }
}

// WithBookPlies sets how many plies of each game enter the repertoire.
func WithBookPlies(n int) RepertoireOption {
	return func(s *RepertoireSource) { s.bookPlies = n }
}

// WithMinGames drops moves seen in fewer than n games.
func WithMinGames(n int) RepertoireOption {
	return func(s *RepertoireSource) { s.minGames = n }
}

// WithResults sets the accepted PGN results. Default: decisive games and
// draws.
func WithResults(results ...string) RepertoireOption {
	return func(s *RepertoireSource) {
		s.results = make(map[string]bool, len(results))
		for _, r := range results {
			s.results[r] = true
		}
	}
}

// WithSourceLogger sets the logger.
func WithSourceLogger(l *zap.Logger) RepertoireOption {
	return func(s *RepertoireSource) { s.logger = l }
}

// NewRepertoireSource creates a PGN repertoire source.
func NewRepertoireSource(opts ...RepertoireOption) *RepertoireSource {
	s := &RepertoireSource{
		minPlies:  DefaultMinGamePlies,
		maxPlies:  DefaultMaxGamePlies,
		bookPlies: DefaultBookPlies,
		minGames:  1,
		results:   map[string]bool{"1-0": true, "0-1": true, "1/2-1/2": true},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns store.TableRepertoire.
func (s *RepertoireSource) Table() string {
	return store.TableRepertoire
}

// Games returns how many games were read and accepted by the last
// Records call.
func (s *RepertoireSource) Games() (read, accepted int) {
	return s.gamesRead, s.gamesAccepted
}

// PGNError returns the error that stopped scanner, if any. The scanner
// reports io.EOF once the last game has been read.
func PGNError(scanner *chess.Scanner) error {
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading PGN: %w", err)
	}
	return nil
}

type tally struct {
	wins, draws, losses int
}

func (t tally) games() int {
	return t.wins + t.draws + t.losses
}

// Records scans PGN games, aggregates moves per position and emits one
// repertoire.Record per position with moves ordered by weight.
func (s *RepertoireSource) Records(ctx context.Context, r io.Reader, emit EmitFunc) error {
	s.gamesRead, s.gamesAccepted = 0, 0
	positions := make(map[string]map[string]*tally)

	scanner := chess.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		game := scanner.Next()
		s.gamesRead++
		result, ok := s.accept(game)
		if !ok {
			continue
		}
		s.gamesAccepted++
		s.addGame(positions, game, result)
	}
	if err := PGNError(scanner); err != nil {
		return err
	}

	s.logger.Info("games scanned",
		zap.Int("read", s.gamesRead),
		zap.Int("accepted", s.gamesAccepted),
		zap.Int("positions", len(positions)),
	)

	keys := make([]string, 0, len(positions))
	for k := range positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := repertoire.Record{Key: key}
		for move, t := range positions[key] {
			if t.games() < s.minGames {
				continue
			}
			rec.Moves = append(rec.Moves, repertoire.Entry{
				Move:   move,
				Weight: repertoire.Weight(t.wins, t.draws),
				Wins:   t.wins,
				Draws:  t.draws,
				Losses: t.losses,
			})
		}
		if len(rec.Moves) == 0 {
			continue
		}
		sort.Slice(rec.Moves, func(i, j int) bool {
			if rec.Moves[i].Weight != rec.Moves[j].Weight {
				return rec.Moves[i].Weight > rec.Moves[j].Weight
			}
			return rec.Moves[i].Move < rec.Moves[j].Move
		})

		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if err := emit(key, line); err != nil {
			return err
		}
	}
	return nil
}

// accept applies the result, length and rating filters.
func (s *RepertoireSource) accept(game *chess.Game) (string, bool) {
	result := tag(game, "Result")
	if result == "" {
		result = string(game.Outcome())
	}
	if !s.results[result] {
		return "", false
	}

	plies := len(game.Moves())
	if plies < s.minPlies || (s.maxPlies > 0 && plies > s.maxPlies) {
		return "", false
	}

	if s.minElo > 0 || s.maxElo > 0 {
		for _, name := range []string{"WhiteElo", "BlackElo"} {
			elo, err := strconv.Atoi(tag(game, name))
			if err != nil {
				return "", false
			}
			if (s.minElo > 0 && elo < s.minElo) || (s.maxElo > 0 && elo > s.maxElo) {
				return "", false
			}
		}
	}
	return result, true
}

func (s *RepertoireSource) addGame(positions map[string]map[string]*tally, game *chess.Game, result string) {
	moves := game.Moves()
	history := game.Positions()
	for i := 0; i < len(moves) && i < s.bookPlies && i < len(history); i++ {
		pos := history[i]
		key, err := fen.Normalize(pos.String())
		if err != nil {
			continue
		}

		byMove, ok := positions[key]
		if !ok {
			byMove = make(map[string]*tally)
			positions[key] = byMove
		}
		t, ok := byMove[moves[i].String()]
		if !ok {
			t = &tally{}
			byMove[moves[i].String()] = t
		}

		switch {
		case result == "1/2-1/2":
			t.draws++
		case (result == "1-0") == (pos.Turn() == chess.White):
			t.wins++
		default:
			t.losses++
		}
	}
}

func tag(game *chess.Game, key string) string {
	if tp := game.GetTagPair(key); tp != nil {
		return tp.Value
	}
	return ""
}

// TablebaseSource builds the tablebase table from JSON lines of the form
// {"fen": ..., "wdl": ..., "dtz": ..., "moves": [{"uci", "wdl", "dtz"}]}.
// Positions with more than the piece limit are skipped.
type TablebaseSource struct {
	maxPieces int
	skipped   int
}

// NewTablebaseSource creates a tablebase source holding positions of at
// most maxPieces pieces, kings included. Zero means shardbase.DefaultMaxPieces.
func NewTablebaseSource(maxPieces int) *TablebaseSource {
	if maxPieces <= 0 {
		maxPieces = shardbase.DefaultMaxPieces
	}
	return &TablebaseSource{maxPieces: maxPieces}
}

// Table returns store.TableTablebase.
func (s *TablebaseSource) Table() string {
	return store.TableTablebase
}

// MaxPieces returns the piece limit recorded in the manifest.
func (s *TablebaseSource) MaxPieces() int {
	return s.maxPieces
}

// Skipped returns how many lines the last Records call dropped.
func (s *TablebaseSource) Skipped() int {
	return s.skipped
}

type tablebaseLine struct {
	FEN   string           `json:"fen"`
	Key   string           `json:"key"`
	WDL   tablebase.WDL    `json:"wdl"`
	DTZ   int              `json:"dtz"`
	Moves []tablebase.Move `json:"moves"`
}

// Records re-keys each line by its normalized FEN.
func (s *TablebaseSource) Records(ctx context.Context, r io.Reader, emit EmitFunc) error {
	s.skipped = 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var in tablebaseLine
		if err := json.Unmarshal(raw, &in); err != nil {
			s.skipped++
			continue
		}
		src := in.FEN
		if src == "" {
			src = in.Key
		}
		key, err := fen.Normalize(src)
		if err != nil {
			s.skipped++
			continue
		}
		if n, err := fen.PieceCount(key); err != nil || n > s.maxPieces {
			s.skipped++
			continue
		}

		line, err := json.Marshal(shardbase.Record{Key: key, WDL: in.WDL, DTZ: in.DTZ, Moves: in.Moves})
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if err := emit(key, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	return nil
}
