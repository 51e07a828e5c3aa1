// Package place orders ranked evidence for the judge so the strongest and
// weakest items sit at the start and end of the context.
package place

import "github.com/ppiankov/groundcheck/internal/model"

// Place reorders items sorted best to worst. With three or fewer items the
// order is unchanged. Otherwise ranks 1-3 come first, then ranks 7 through
// the last, then ranks 6, 5 and 4. Position is set 1-based on every item.
func Place(items []model.EvidenceItem) []model.EvidenceItem {
	out := make([]model.EvidenceItem, 0, len(items))

	if len(items) <= 3 {
		out = append(out, items...)
	} else {
		out = append(out, items[:3]...)
		if len(items) > 6 {
			out = append(out, items[6:]...)
		}
		middleEnd := len(items)
		if middleEnd > 6 {
			middleEnd = 6
		}
		for i := middleEnd - 1; i >= 3; i-- {
			out = append(out, items[i])
		}
	}

	for i := range out {
		out[i].Position = i + 1
	}
	return out
}
