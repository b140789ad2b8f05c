package load

import "primesquare/internal/schema"

// plan describes how artifact columns map onto the canonical set.
//
// Rules, applied to the artifact header:
//   - Alias headers are renamed to their canonical names.
//   - Headers with no canonical counterpart are dropped.
//   - Canonical columns absent from the artifact are synthesized as all-NULL.
//   - Output columns are in canonical order regardless of artifact order.
//   - When two headers reconcile to the same canonical name, the first
//     occurrence wins; later duplicates are dropped.
type plan struct {
	src     []int    // canonical index -> artifact column index, -1 when absent
	dropped []string // artifact columns with no canonical counterpart
	missing []string // canonical columns synthesized as all-NULL
}

func buildPlan(header []string) plan {
	p := plan{src: make([]int, len(schema.Columns))}
	for i := range p.src {
		p.src[i] = -1
	}

	for j, name := range header {
		i := schema.ColumnIndex(schema.CanonicalName(name))
		if i < 0 || p.src[i] != -1 {
			p.dropped = append(p.dropped, name)
			continue
		}
		p.src[i] = j
	}
	for i, j := range p.src {
		if j == -1 {
			p.missing = append(p.missing, schema.Columns[i])
		}
	}
	return p
}

// apply maps artifact records into canonical rows. Empty cells become nil so
// they land as SQL NULL.
func (p plan) apply(records [][]string) [][]any {
	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(p.src))
		for i, j := range p.src {
			if j < 0 || j >= len(rec) || rec[j] == "" {
				row[i] = nil
				continue
			}
			row[i] = rec[j]
		}
		rows[r] = row
	}
	return rows
}
