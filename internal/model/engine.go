package model

import "strings"

// Engine is the closed set of storage engines tablekeeper distinguishes.
type Engine string

const (
	EngineInnoDB  Engine = "InnoDB"
	EngineMyISAM  Engine = "MyISAM"
	EngineAria    Engine = "Aria"
	EngineArchive Engine = "ARCHIVE"
	EngineCSV     Engine = "CSV"
	EngineMroonga Engine = "Mroonga"
	EngineOther   Engine = "Other"
)

var knownEngines = []Engine{EngineInnoDB, EngineMyISAM, EngineAria, EngineArchive, EngineCSV, EngineMroonga}

// ParseEngine maps a catalog engine name to an Engine, ignoring case.
// Unknown or empty names map to EngineOther.
func ParseEngine(name string) Engine {
	for _, e := range knownEngines {
		if strings.EqualFold(name, string(e)) {
			return e
		}
	}
	return EngineOther
}

// In reports whether e is one of the given engines.
func (e Engine) In(engines ...Engine) bool {
	for _, other := range engines {
		if e == other {
			return true
		}
	}
	return false
}

// SupportsRepair reports whether REPAIR TABLE is meaningful for the engine.
func (e Engine) SupportsRepair() bool {
	return e.In(EngineMyISAM, EngineAria, EngineArchive, EngineCSV)
}

// SupportsCheck reports whether CHECK TABLE is meaningful for the engine.
func (e Engine) SupportsCheck() bool {
	return e.In(EngineArchive, EngineAria, EngineCSV, EngineInnoDB, EngineMyISAM)
}

// SupportsAnalyze reports whether ANALYZE TABLE is meaningful for the engine.
func (e Engine) SupportsAnalyze() bool {
	return e.In(EngineAria, EngineInnoDB, EngineMyISAM)
}

// SupportsOptimize reports whether OPTIMIZE TABLE is meaningful for the engine.
func (e Engine) SupportsOptimize() bool {
	return e.In(EngineInnoDB, EngineMyISAM, EngineAria, EngineArchive)
}

// SupportsFulltextRebuild reports whether fulltext indexes can be rebuilt.
func (e Engine) SupportsFulltextRebuild() bool {
	return e.In(EngineInnoDB, EngineMyISAM, EngineAria, EngineMroonga)
}
