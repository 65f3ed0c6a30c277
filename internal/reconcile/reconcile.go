// Package reconcile assigns final block identifiers so that previously
// persisted blocks owning images keep their identity across re-imports.
package reconcile

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

// ErrUnmatchedImageBlocks is returned when an image-owning block could not
// be matched to any new block.
var ErrUnmatchedImageBlocks = errors.New("unmatched image blocks")

// Reconciler matches new blocks against prior image owners.
type Reconciler struct {
	owners []doctree.Block
	next   int64
}

// New returns a reconciler for the given prior owners. maxID is the highest
// block id persisted before the import; fresh ids start after it.
func New(owners []doctree.Block, maxID int64) *Reconciler {
	sorted := slices.Clone(owners)
	slices.SortFunc(sorted, func(a, b doctree.Block) int { return cmp.Compare(a.ID, b.ID) })
	for _, o := range sorted {
		maxID = max(maxID, o.ID)
	}
	return &Reconciler{owners: sorted, next: maxID + 1}
}

// Assign sets ID on every block. Owners are matched first by exact
// (type, raw text, section, chapter) key, then by proximity within the
// same chapter; every other block gets a fresh id in emission order.
// Blocks are modified in place.
func (r *Reconciler) Assign(blocks []doctree.Block) ([]doctree.Anomaly, error) {
	taken := make([]bool, len(blocks))
	used := make([]bool, len(r.owners))

	for i, o := range r.owners {
		j := closest(blocks, taken, o.Order, func(b doctree.Block) bool {
			return b.Type == o.Type && b.RawText == o.RawText &&
				doctree.SameString(b.Section, o.Section) && doctree.SameString(b.Chapter, o.Chapter)
		})
		if j >= 0 {
			claim(&blocks[j], o)
			taken[j], used[i] = true, true
		}
	}

	var anomalies []doctree.Anomaly
	for i, o := range r.owners {
		if used[i] {
			continue
		}
		sameChapter := func(b doctree.Block) bool { return doctree.SameString(b.Chapter, o.Chapter) }
		j := closest(blocks, taken, o.Order, func(b doctree.Block) bool {
			return sameChapter(b) && b.Type == o.Type
		})
		if j < 0 {
			j = closest(blocks, taken, o.Order, sameChapter)
		}
		if j < 0 {
			continue
		}
		claim(&blocks[j], o)
		taken[j], used[i] = true, true
		anomalies = append(anomalies, doctree.Anomaly{
			Kind:    doctree.AnomalyReassigned,
			Message: fmt.Sprintf("Reassigned image block_id=%d to %s near order %d", o.ID, blocks[j].Type, blocks[j].Order),
		})
	}

	var missing []string
	for i, o := range r.owners {
		if !used[i] {
			missing = append(missing, strconv.FormatInt(o.ID, 10))
		}
	}
	if len(missing) > 0 {
		return anomalies, fmt.Errorf("%w: %s", ErrUnmatchedImageBlocks, strings.Join(missing, ","))
	}

	for j := range blocks {
		if !taken[j] {
			blocks[j].ID = r.next
			r.next++
		}
	}
	return anomalies, nil
}

func claim(b *doctree.Block, owner doctree.Block) {
	b.ID = owner.ID
	if b.ImageBlobID == nil {
		b.ImageBlobID = owner.ImageBlobID
	}
}

// closest returns the index of the untaken block accepted by match whose
// order is nearest to order, earliest on ties, or -1.
func closest(blocks []doctree.Block, taken []bool, order int, match func(doctree.Block) bool) int {
	best, bestDist := -1, 0
	for j, b := range blocks {
		if taken[j] || !match(b) {
			continue
		}
		d := b.Order - order
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}
