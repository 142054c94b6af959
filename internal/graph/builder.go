package graph

import (
	"fmt"
	"log/slog"

	"github.com/fedigraph/fedigraph/internal/model"
)

// groupRef ties a group's index to its owning host's index.
type groupRef struct {
	groupIndex int
	hostIndex  int
}

// Builder assembles the derived host-level graphs for one post-processing
// pass. Feed it the group-ownership mapping first, then the raw interaction
// stream, then call Build once.
//
// The builder owns its index maps and matrices for the duration of one pass;
// it is not safe for concurrent use and is not meant to be reused.
type Builder struct {
	logger *slog.Logger

	// hosts and groups record first-seen ordering; the index maps give the
	// matrix coordinates for each name.
	hosts     []string
	hostIndex map[string]int

	groups     []string
	groupIndex map[string]groupRef

	// ownershipDone flips when the first interaction arrives; groups seen
	// afterward would corrupt the matrix dimensions.
	ownershipDone bool

	// counts accumulates (acting host, group) interaction counts until the
	// matrices are built. A plain map keyed by matrix coordinates is
	// already the DOK form the multiply needs.
	counts map[cell]int64

	// recognized counts interaction records whose acting host was crawled.
	recognized int64
}

// NewBuilder creates a builder logging skipped records to logger.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		logger:     logger,
		hostIndex:  make(map[string]int),
		groupIndex: make(map[string]groupRef),
		counts:     make(map[cell]int64),
	}
}

// AddGroup registers one row of the group-ownership mapping: the group
// identifier and the host that owns it. Hosts and groups are indexed in
// first-seen order. All groups must be added before the first interaction.
func (b *Builder) AddGroup(group, ownerHost string) error {
	if b.ownershipDone {
		return fmt.Errorf("group %q added after interactions began", group)
	}

	hostIdx, ok := b.hostIndex[ownerHost]
	if !ok {
		hostIdx = len(b.hosts)
		b.hostIndex[ownerHost] = hostIdx
		b.hosts = append(b.hosts, ownerHost)
	}

	if _, exists := b.groupIndex[group]; exists {
		return nil
	}
	b.groupIndex[group] = groupRef{groupIndex: len(b.groups), hostIndex: hostIdx}
	b.groups = append(b.groups, group)
	return nil
}

// AddInteraction records one raw interaction: an entity on actingHost acted
// on the given group. Records whose acting host was never crawled are
// skipped and logged at debug level: the derived graphs are restricted to
// the crawled node set by contract, so this is a filter, not an error.
func (b *Builder) AddInteraction(actingHost, group string) {
	b.ownershipDone = true

	hostIdx, ok := b.hostIndex[actingHost]
	if !ok {
		b.logger.Debug("ignoring interaction from unknown host",
			"host", actingHost,
			"group", group,
		)
		return
	}
	ref, ok := b.groupIndex[group]
	if !ok {
		b.logger.Debug("ignoring interaction with unknown group",
			"host", actingHost,
			"group", group,
		)
		return
	}

	b.counts[cell{hostIdx, ref.groupIndex}]++
	b.recognized++
}

// GroupActivity is the per-group column sum of the interaction matrix.
type GroupActivity struct {
	// Host owns the group.
	Host string

	// Group is the fully qualified group identifier.
	Group string

	// Count is the total number of recognized interactions on the group.
	Count int64
}

// Result holds the derived graphs of one post-processing pass.
type Result struct {
	// SameHost is the directly composed activity graph: how much each
	// host's entities engage with content owned by each other host.
	// Weight of edge (A, B) = sum over groups owned by B of A's
	// interaction counts.
	SameHost []model.Relation

	// SharedInterest counts, for each ordered host pair, the groups both
	// hosts' entities engaged with. The measure is symmetric; it is stored
	// as directed edges in both directions.
	SharedInterest []model.Relation

	// Activity is the per-group interaction total.
	Activity []GroupActivity

	// Recognized is the number of interaction records that were counted
	// (acting host known). The sum of SameHost weights equals this.
	Recognized int64
}

// Build composes the matrices and emits the derived graphs.
//
//	sameHost       = interaction x ownership
//	sharedInterest = bool(interaction) x bool(interaction)^T
//
// where interaction is hosts-by-groups and ownership is groups-by-hosts
// with one unit entry per group at its owning host's column.
func (b *Builder) Build() Result {
	interaction := NewMatrix(len(b.hosts), len(b.groups))
	for k, v := range b.counts {
		interaction.Set(k.row, k.col, v)
	}

	ownership := NewMatrix(len(b.groups), len(b.hosts))
	for _, ref := range b.groupIndex {
		ownership.Set(ref.groupIndex, ref.hostIndex, 1)
	}

	sameHost := interaction.Mul(ownership)

	boolInteraction := interaction.Boolean()
	sharedInterest := boolInteraction.Mul(boolInteraction.Transpose())

	result := Result{Recognized: b.recognized}
	for _, e := range sameHost.Entries() {
		result.SameHost = append(result.SameHost, model.Relation{
			Source: b.hosts[e.Row],
			Target: b.hosts[e.Col],
			Weight: e.Value,
		})
	}
	for _, e := range sharedInterest.Entries() {
		result.SharedInterest = append(result.SharedInterest, model.Relation{
			Source: b.hosts[e.Row],
			Target: b.hosts[e.Col],
			Weight: e.Value,
		})
	}

	sums := interaction.ColumnSums()
	for groupIdx, total := range sums {
		group := b.groups[groupIdx]
		result.Activity = append(result.Activity, GroupActivity{
			Host:  b.hosts[b.groupIndex[group].hostIndex],
			Group: group,
			Count: total,
		})
	}
	return result
}
