// Package stats is the metrics seam shared by every gambit component.
package stats

import "strings"

// Metric names used throughout the library.
const (
	// Orchestrator metrics.
	MetricDecisions         = "gambit_decisions_total"
	MetricFallbacks         = "gambit_fallbacks_total"
	MetricNoMove            = "gambit_no_move_total"
	MetricExplored          = "gambit_explored_total"
	MetricDecisionSeconds   = "gambit_decision_seconds"
	MetricConfidence        = "gambit_confidence"
	MetricSourceUnavailable = "gambit_source_unavailable_total"

	// Ledger metrics.
	MetricMistakesRecorded   = "gambit_mistakes_recorded_total"
	MetricCandidatesFiltered = "gambit_candidates_filtered_total"
	MetricFilterExhausted    = "gambit_filter_exhausted_total"
	MetricLedgerSize         = "gambit_ledger_size"

	// Analysis cache metrics.
	MetricAnalysisHits   = "gambit_analysis_cache_hits_total"
	MetricAnalysisMisses = "gambit_analysis_cache_misses_total"

	// Collaborator metrics.
	MetricEngineSearchSeconds = "gambit_engine_search_seconds"
	MetricEngineSearches      = "gambit_engine_searches_total"
	MetricTablebaseProbes     = "gambit_tablebase_probes_total"
	MetricRepertoireLookups   = "gambit_repertoire_lookups_total"
	MetricShardFetches        = "gambit_shard_fetches_total"
	MetricShardBytes          = "gambit_shard_bytes_total"
	MetricShardFetchSeconds   = "gambit_shard_fetch_seconds"

	// Persistence metrics.
	MetricJournalErrors = "gambit_journal_errors_total"

	// Shard cache metrics.
	MetricCacheHits      = "gambit_shard_cache_hits_total"
	MetricCacheMisses    = "gambit_shard_cache_misses_total"
	MetricCacheSize      = "gambit_shard_cache_size"
	MetricCacheEvictions = "gambit_shard_cache_evictions_total"
	MetricCacheShared    = "gambit_shard_cache_shared_total"
)

var help = map[string]string{
	MetricDecisions:           "Decisions returned by the orchestrator.",
	MetricFallbacks:           "Decisions that fell through to a lower priority source.",
	MetricNoMove:              "Decisions requested for positions without a legal move.",
	MetricExplored:            "Decisions that played a non-best candidate on purpose.",
	MetricDecisionSeconds:     "Wall time spent producing one decision.",
	MetricConfidence:          "Classifier confidence of each decided position.",
	MetricSourceUnavailable:   "Resource lookups that failed and were skipped.",
	MetricMistakesRecorded:    "Mistakes written to the ledger after a game.",
	MetricCandidatesFiltered:  "Candidate moves removed because the ledger marks them as mistakes.",
	MetricFilterExhausted:     "Positions where the ledger filtered every candidate.",
	MetricLedgerSize:          "Positions currently held by the mistake ledger.",
	MetricAnalysisHits:        "Engine analyses served from the analysis cache.",
	MetricAnalysisMisses:      "Engine analyses that required a search.",
	MetricEngineSearchSeconds: "Wall time of one engine search.",
	MetricEngineSearches:      "Engine searches completed.",
	MetricTablebaseProbes:     "Tablebase probes issued.",
	MetricRepertoireLookups:   "Repertoire lookups issued.",
	MetricShardFetches:        "Shards fetched from a backing store.",
	MetricShardBytes:          "Decompressed shard bytes fetched from a backing store.",
	MetricShardFetchSeconds:   "Wall time of one shard fetch including decompression.",
	MetricJournalErrors:       "Journal writes that failed.",
	MetricCacheHits:           "Shard reads served from the shard cache.",
	MetricCacheMisses:         "Shard reads that missed the shard cache.",
	MetricCacheSize:           "Shards held by the shard cache.",
	MetricCacheEvictions:      "Shards evicted from the shard cache.",
	MetricCacheShared:         "Shard reads that joined a fetch already in flight.",
}

// Help describes a metric. Unknown names, including the per-source and
// per-position-type counters, fall back to a generic description.
func Help(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	if strings.HasPrefix(name, "gambit_source_") {
		return "Decisions served by " + strings.TrimSuffix(strings.TrimPrefix(name, "gambit_source_"), "_total") + "."
	}
	if strings.HasPrefix(name, "gambit_position_") {
		return "Decisions for " + strings.TrimSuffix(strings.TrimPrefix(name, "gambit_position_"), "_total") + " positions."
	}
	return name
}

// MetricSource returns the counter name for decisions served by a source.
func MetricSource(source string) string {
	return "gambit_source_" + source + "_total"
}

// MetricPositionType returns the counter name for decisions of a position type.
func MetricPositionType(tag string) string {
	return "gambit_position_" + tag + "_total"
}

// Collector receives metrics by name. Implementations must be safe for
// concurrent use.
type Collector interface {
	IncCounter(name string, delta int64)
	SetGauge(name string, value int64)
	ObserveHistogram(name string, value float64)
}
