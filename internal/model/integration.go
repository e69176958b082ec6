package model

// IntegrationKind names the tracking-store update that records an applied
// command sequence.
type IntegrationKind string

const (
	IntegrateCheck           IntegrationKind = "check"
	IntegrateRepair          IntegrationKind = "repair"
	IntegrateRepairNeeded    IntegrationKind = "repair_needed"
	IntegrateAnalyze         IntegrationKind = "analyze"
	IntegrateHistogram       IntegrationKind = "analyze_histogram"
	IntegrateOptimizeBefore  IntegrationKind = "optimize_before"
	IntegrateOptimizeAfter   IntegrationKind = "optimize_after"
	IntegrateCompress        IntegrationKind = "compress"
	IntegrateFulltextRebuild IntegrationKind = "fulltext_rebuild"
)

// Integration is one tracking-store update. Sizes is filled in at execution
// time for the optimize snapshots; plan mode leaves it nil.
type Integration struct {
	Kind           IntegrationKind `json:"kind"`
	Target         TableRef        `json:"target"`
	RowFormat      string          `json:"row_format,omitempty"`
	PageCompressed bool            `json:"page_compressed,omitempty"`
	Sizes          *Sizes          `json:"sizes,omitempty"`
}

// Sizes is a snapshot of a table's on-disk footprint.
type Sizes struct {
	DataLength  int64 `json:"data_length"`
	IndexLength int64 `json:"index_length"`
	DataFree    int64 `json:"data_free"`
}

// SnapshotsSizes reports whether the integration records a size snapshot.
func (i Integration) SnapshotsSizes() bool {
	return i.Kind == IntegrateOptimizeBefore || i.Kind == IntegrateOptimizeAfter
}
