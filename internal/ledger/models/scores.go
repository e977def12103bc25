package models

import (
	"fmt"
	"math"

	dErrors "backpack/pkg/domain-errors"
	"backpack/pkg/platform/strings"
)

// ScoreTable is the per-backpack running total of item weights by terpene tag.
//
// Invariants:
//   - scores[tag] equals the sum of Weight() over every applied item with that tag
//   - scores never decrease (additions saturate); Apply is the only mutation
//   - tags lists each tag once, in order of first application
//
// The table is maintained incrementally by the ledger write path and is always
// reconstructible from the item sequence with RecomputeScores.
type ScoreTable struct {
	tags   []string
	scores map[string]uint64
}

// NewScoreTable returns an empty table.
func NewScoreTable() *ScoreTable {
	return &ScoreTable{scores: make(map[string]uint64)}
}

// Apply adds the item's weight to its tag, creating the entry at zero first
// when the tag is new.
func (t *ScoreTable) Apply(item PurchaseItem) {
	if _, ok := t.scores[item.TerpeneTag]; !ok {
		t.scores[item.TerpeneTag] = 0
		t.tags = append(t.tags, item.TerpeneTag)
	}
	t.scores[item.TerpeneTag] = saturatingAdd(t.scores[item.TerpeneTag], item.Weight())
}

// saturatingAdd pins at MaxUint64 instead of wrapping, so a score can never
// appear to decrease.
func saturatingAdd(a, b uint64) uint64 {
	if math.MaxUint64-a < b {
		return math.MaxUint64
	}
	return a + b
}

// Score returns the cumulative score for tag (zero when absent).
func (t *ScoreTable) Score(tag string) uint64 {
	return t.scores[tag]
}

// Len returns the number of distinct tags.
func (t *ScoreTable) Len() int {
	return len(t.tags)
}

// Map returns a copy of the tag -> score mapping.
func (t *ScoreTable) Map() map[string]uint64 {
	out := make(map[string]uint64, len(t.scores))
	for tag, score := range t.scores {
		out[tag] = score
	}
	return out
}

// Rows returns the table in first-applied order.
func (t *ScoreTable) Rows() []CategoryScore {
	rows := make([]CategoryScore, 0, len(t.tags))
	for _, tag := range t.tags {
		rows = append(rows, CategoryScore{Tag: tag, Score: t.scores[tag]})
	}
	return rows
}

// RecomputeScores rebuilds the table from scratch over an item sequence.
func RecomputeScores(items []PurchaseItem) *ScoreTable {
	table := NewScoreTable()
	for _, item := range items {
		table.Apply(item)
	}
	return table
}

// DistinctTags lists the terpene tags of items in order of first appearance.
func DistinctTags(items []PurchaseItem) []string {
	tags := make([]string, len(items))
	for i, item := range items {
		tags[i] = item.TerpeneTag
	}
	return strings.FirstSeen(tags)
}

// ResolveTopCategory scans tags in the given order, tracking the running
// maximum. A tag only displaces the current leader with a strictly greater
// score, so ties go to the earliest-seen tag. No tags (or only zero scores)
// yields the zero Category.
func ResolveTopCategory(tags []string, scores map[string]uint64) Category {
	var top Category
	for _, tag := range tags {
		if score := scores[tag]; score > top.Score {
			top = Category{Label: tag, Score: score}
		}
	}
	return top
}

// TopCategory resolves the dominant category of a snapshot: distinct tags from
// the item sequence, scored from the stored table.
func (s Snapshot) TopCategory() Category {
	return ResolveTopCategory(DistinctTags(s.Items), s.Scores)
}

// ScoreRows returns the snapshot's stored scores in first-seen tag order.
func (s Snapshot) ScoreRows() []CategoryScore {
	tags := DistinctTags(s.Items)
	rows := make([]CategoryScore, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, CategoryScore{Tag: tag, Score: s.Scores[tag]})
	}
	return rows
}

// VerifyScores checks the stored table against a recomputation over the
// item sequence.
func (s Snapshot) VerifyScores() error {
	expected := RecomputeScores(s.Items)
	if expected.Len() != len(s.Scores) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("backpack %s: score table has %d tags, ledger has %d", s.BackpackID, len(s.Scores), expected.Len()))
	}
	for _, row := range expected.Rows() {
		stored, ok := s.Scores[row.Tag]
		if !ok || stored != row.Score {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("backpack %s: tag %q scored %d, ledger sums to %d", s.BackpackID, row.Tag, stored, row.Score))
		}
	}
	return nil
}
