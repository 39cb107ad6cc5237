package algorithm

import (
	"context"

	"github.com/zpam/categorizer/pkg/datastore"
	"github.com/zpam/categorizer/pkg/features"
)

// Gather looks up the per-category counts of every distinct feature.
//
// Features unseen by every category are kept with zero counts; their
// smoothed weight still differs between categories. Use HasEvidence to tell
// whether the document shares anything with the model. Store failures are
// returned as is.
func Gather(ctx context.Context, store datastore.Store, snap *Snapshot, feats []string) ([]Evidence, error) {
	order, tf := features.Counts(feats)
	counter, bulk := store.(datastore.FeatureCounter)

	evidence := make([]Evidence, 0, len(order))
	for _, f := range order {
		counts := make([]int64, len(snap.Categories))

		if bulk {
			byCat, err := counter.FeatureCounts(ctx, f)
			if err != nil {
				return nil, err
			}
			for i, c := range snap.Categories {
				counts[i] = byCat[c]
			}
		} else {
			for i, c := range snap.Categories {
				n, err := store.FeatureCount(ctx, c, f)
				if err != nil {
					return nil, err
				}
				counts[i] = n
			}
		}

		evidence = append(evidence, Evidence{
			Feature: f,
			Weight:  float64(tf[f]),
			Counts:  counts,
		})
	}

	return evidence, nil
}

// HasEvidence reports whether any feature was seen by at least one category
func HasEvidence(evidence []Evidence) bool {
	for _, e := range evidence {
		if e.Seen() {
			return true
		}
	}
	return false
}
