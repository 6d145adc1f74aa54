package uci

import (
	"sort"
	"strconv"
	"strings"

	"github.com/discochess/gambit/internal/engine"
)

// accumulator keeps the latest info line per multipv slot.
type accumulator struct {
	lines map[int]engine.Line
	depth int
	nodes int64
}

// info folds one "info ..." line into the accumulator. Lines without a
// principal variation (currmove, string, hashfull reports) only update
// depth and node counts.
func (a *accumulator) info(line string) {
	fields := strings.Fields(line)
	var (
		l       engine.Line
		multipv = 1
		bound   bool
		hasPV   bool
	)

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			return
		case "depth":
			if i+1 < len(fields) {
				l.Depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "nodes":
			if i+1 < len(fields) {
				l.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil && n > 0 {
					multipv = n
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				n, _ := strconv.Atoi(fields[i+2])
				switch fields[i+1] {
				case "cp":
					l.Score = engine.Score{Centipawns: n}
				case "mate":
					l.Score = engine.Score{Mate: n}
				}
				i += 2
			}
		case "lowerbound", "upperbound":
			bound = true
		case "pv":
			l.PV = append([]string(nil), fields[i+1:]...)
			hasPV = len(l.PV) > 0
			i = len(fields)
		}
	}

	if l.Depth > a.depth {
		a.depth = l.Depth
	}
	if l.Nodes > a.nodes {
		a.nodes = l.Nodes
	}
	if !hasPV || bound {
		return
	}

	l.Move = l.PV[0]
	if a.lines == nil {
		a.lines = make(map[int]engine.Line)
	}
	a.lines[multipv] = l
}

// result assembles the final result ordered by multipv slot. If the engine
// reported a best move different from the first line, that move leads.
func (a *accumulator) result(best string) *engine.Result {
	slots := make([]int, 0, len(a.lines))
	for k := range a.lines {
		slots = append(slots, k)
	}
	sort.Ints(slots)

	res := &engine.Result{
		BestMove: best,
		Depth:    a.depth,
		Nodes:    a.nodes,
		Lines:    make([]engine.Line, 0, len(slots)),
	}
	for _, k := range slots {
		res.Lines = append(res.Lines, a.lines[k])
	}

	if best != "" && (len(res.Lines) == 0 || res.Lines[0].Move != best) {
		for i, l := range res.Lines {
			if l.Move == best {
				res.Lines = append(append([]engine.Line{l}, res.Lines[:i]...), res.Lines[i+1:]...)
				return res
			}
		}
		res.Lines = append([]engine.Line{{Move: best, PV: []string{best}, Depth: a.depth}}, res.Lines...)
	}
	return res
}
