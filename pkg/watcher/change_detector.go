package watcher

import (
	"github.com/ritzau/sbom-resolver/pkg/config"
)

// ReloadPlan describes what changed between two configurations and which
// components need to be rebuilt
type ReloadPlan struct {
	RebuildClient   bool // Endpoint, query settings or ontology changed
	RebuildResolver bool // Resolver settings changed, or the client it wraps
	PurgeCache      bool // Cached results may no longer match the upstream graph
	RebuildCache    bool // Capacity or TTL changed
	ReconfigureLog  bool
	RestartRequired []string // Keys that only take effect on restart
	ChangedKeys     []string
}

// Empty reports whether the plan has nothing to do
func (p *ReloadPlan) Empty() bool {
	return len(p.ChangedKeys) == 0
}

// AnalyzeChanges compares two configurations and determines which components
// need to be rebuilt
func AnalyzeChanges(old, cur *config.Config) *ReloadPlan {
	plan := &ReloadPlan{}
	changed := func(key string, differs bool) bool {
		if differs {
			plan.ChangedKeys = append(plan.ChangedKeys, key)
		}
		return differs
	}

	if changed("endpoint", old.Endpoint != cur.Endpoint) {
		// A different triplestore invalidates every cached answer
		plan.RebuildClient = true
		plan.PurgeCache = true
	}
	if changed("query", old.Query != cur.Query) {
		plan.RebuildClient = true
	}
	if changed("ontology", old.Ontology != cur.Ontology) {
		plan.RebuildClient = true
		plan.PurgeCache = true
	}
	if changed("cache", old.Cache != cur.Cache) {
		plan.RebuildCache = true
	}
	if changed("resolver", old.Resolver != cur.Resolver) {
		plan.RebuildResolver = true
	}
	if changed("logging", old.Verbosity != cur.Verbosity || old.VerboseCnt != cur.VerboseCnt || old.LogJSON != cur.LogJSON) {
		plan.ReconfigureLog = true
	}
	if changed("port", old.Port != cur.Port) {
		plan.RestartRequired = append(plan.RestartRequired, "port")
	}

	// The resolver holds the querier, so anything below it forces a rebuild
	if plan.RebuildClient || plan.RebuildCache {
		plan.RebuildResolver = true
	}
	return plan
}
