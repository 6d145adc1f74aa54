// Package journal defines the persistent store behind the mistake ledger,
// the analysis cache and the decision and game logs.
package journal

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no cached analysis exists for a hash.
	ErrNotFound = errors.New("journal: not found")

	// ErrClosed is returned by operations on a closed journal.
	ErrClosed = errors.New("journal: closed")
)

// Mistake is a persisted mistake record.
type Mistake struct {
	PositionHash string    `json:"position_hash"`
	MovePlayed   string    `json:"move_played"`
	MoveEval     float64   `json:"move_eval"`
	BestMove     string    `json:"best_move"`
	BestEval     float64   `json:"best_eval"`
	Severity     string    `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
}

// RankedMove is one engine line reduced to its first move and score.
type RankedMove struct {
	Move string  `json:"move"`
	Eval float64 `json:"eval"`
}

// Analysis is a cached engine analysis of a position. Moves are ordered
// best first. Entries are never invalidated.
type Analysis struct {
	Hash       string       `json:"hash"`
	FEN        string       `json:"fen"`
	Evaluation float64      `json:"evaluation"`
	Moves      []RankedMove `json:"moves"`
	Depth      int          `json:"depth"`
	Nodes      int64        `json:"nodes"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Decision is a persisted decision log entry.
type Decision struct {
	SessionID       string    `json:"session_id"`
	PositionHash    string    `json:"position_hash"`
	FEN             string    `json:"fen"`
	PositionType    string    `json:"position_type"`
	Source          string    `json:"source"`
	Move            string    `json:"move"`
	Confidence      float64   `json:"confidence"`
	TimeAllocation  float64   `json:"time_allocation"`
	DepthAllocation int       `json:"depth_allocation"`
	Eval            *float64  `json:"eval,omitempty"`
	ElapsedMS       int64     `json:"elapsed_ms"`
	Explored        bool      `json:"explored,omitempty"`
	Filtered        bool      `json:"filtered,omitempty"`
	CacheHit        bool      `json:"cache_hit,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// GameResult is the outcome of one finished game.
type GameResult struct {
	GameID    string    `json:"game_id"`
	SessionID string    `json:"session_id,omitempty"`
	Color     string    `json:"color,omitempty"`
	Result    string    `json:"result"`
	Plies     int       `json:"plies"`
	Mistakes  int       `json:"mistakes"`
	PlayedAt  time.Time `json:"played_at"`
}

// Counts reports the number of rows in each table.
type Counts struct {
	Mistakes  int
	Analyses  int
	Decisions int
	Results   int
}

// Journal is an append-only store with four logical tables: mistakes,
// cached analyses, decisions and game results. Implementations must make
// appends durable before returning and tolerate concurrent readers.
type Journal interface {
	// AppendMistake durably appends a mistake record.
	AppendMistake(ctx context.Context, m Mistake) error

	// Mistakes returns every mistake record in append order.
	Mistakes(ctx context.Context) ([]Mistake, error)

	// MistakesByHash returns the mistakes recorded for a position hash.
	// An unknown hash yields an empty slice, not an error.
	MistakesByHash(ctx context.Context, hash string) ([]Mistake, error)

	// PutAnalysis stores an analysis. A later analysis for the same hash
	// replaces the earlier one.
	PutAnalysis(ctx context.Context, a Analysis) error

	// Analysis returns the cached analysis for a hash or ErrNotFound.
	Analysis(ctx context.Context, hash string) (*Analysis, error)

	// AppendDecision appends a decision log entry.
	AppendDecision(ctx context.Context, d Decision) error

	// Decisions returns every decision in append order.
	Decisions(ctx context.Context) ([]Decision, error)

	// AppendResult appends a game result.
	AppendResult(ctx context.Context, r GameResult) error

	// Results returns every game result in append order.
	Results(ctx context.Context) ([]GameResult, error)

	// Counts returns the size of each table.
	Counts(ctx context.Context) (Counts, error)

	// Close releases resources held by the journal.
	Close() error
}
