package selector

import "fmt"

// Source is a move source, listed in lookup priority order.
type Source int

const (
	EndgameDatabase Source = iota
	OpeningRepertoire
	SearchEngine
)

var sourceNames = [...]string{
	EndgameDatabase:   "endgame_database",
	OpeningRepertoire: "opening_repertoire",
	SearchEngine:      "search_engine",
}

// Sources lists every source in priority order.
var Sources = []Source{EndgameDatabase, OpeningRepertoire, SearchEngine}

// String returns the snake-case name of the source.
func (s Source) String() string {
	if s >= 0 && int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// ParseSource parses a snake-case source name.
func ParseSource(name string) (Source, error) {
	for i, n := range sourceNames {
		if n == name {
			return Source(i), nil
		}
	}
	return 0, fmt.Errorf("selector: unknown source %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	parsed, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
