package domain

import "strings"

// FormatKind discriminates the two input shapes of a raw record.
type FormatKind string

const (
	FormatCurated    FormatKind = "CURATED"
	FormatRawHistory FormatKind = "RAW_HISTORY"
)

// formatAliases maps the names used by the upstream collector to a FormatKind.
var formatAliases = map[string]FormatKind{
	"curated":     FormatCurated,
	"arxiv":       FormatCurated,
	"raw_history": FormatRawHistory,
	"rawhistory":  FormatRawHistory,
	"arxivraw":    FormatRawHistory,
}

// ParseFormatKind resolves a format name, case-insensitively. The second
// return value is false for unknown names.
func ParseFormatKind(s string) (FormatKind, bool) {
	k, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// Valid reports whether k is one of the known kinds.
func (k FormatKind) Valid() bool {
	return k == FormatCurated || k == FormatRawHistory
}

// RunMode selects how the driver discovers its input.
type RunMode string

const (
	RunModeHistory RunMode = "history"
	RunModeDaily   RunMode = "daily"
)

// Locality selects local filesystem or remote object storage.
type Locality string

const (
	LocalityLocal  Locality = "local"
	LocalityRemote Locality = "remote"
)

// OutputFormat is the encoding of analytical output batches.
type OutputFormat string

const (
	OutputFormatParquet OutputFormat = "parquet"
	OutputFormatJSONL   OutputFormat = "jsonl"
	OutputFormatCSV     OutputFormat = "csv"
)

// StateBackend selects the prior-state store implementation.
type StateBackend string

const (
	StateBackendMemory   StateBackend = "memory"
	StateBackendSQLite   StateBackend = "sqlite"
	StateBackendPostgres StateBackend = "postgres"
)

// Stage is a state of the chunked pipeline driver.
type Stage string

const (
	StageReading     Stage = "READING"
	StageReconciling Stage = "RECONCILING"
	StageWriting     Stage = "WRITING"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// Terminal reports whether no further transition is possible from s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// stageTransitions lists the allowed successor stages. FAILED is reachable
// from every non-terminal stage.
var stageTransitions = map[Stage][]Stage{
	StageReading:     {StageReconciling, StageDone, StageFailed},
	StageReconciling: {StageWriting, StageFailed},
	StageWriting:     {StageReading, StageFailed},
}

// CanTransition reports whether the driver may move from s to next.
func (s Stage) CanTransition(next Stage) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
