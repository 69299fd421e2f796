package wlscraper

import (
	"strings"

	"github.com/thoas/go-funk"
	"github.com/underlx/disturbancesvie/types"
)

// DescriptionSeparator joins the descriptions of feed entries that collapse
// into the same disturbance
const DescriptionSeparator = " / "

// NormalizeID strips the per-segment suffix from a feed entry name.
// "ma_1234-5" is kept as is, "ma_1234-5-2" becomes "ma_1234-5".
func NormalizeID(raw string) string {
	if strings.Count(raw, "-") <= 1 {
		return raw
	}
	return raw[:strings.LastIndex(raw, "-")]
}

// LineResolver maps a feed line reference to a persistent Line
type LineResolver interface {
	ResolveLine(code, typeString string) (*types.Line, error)
}

// BuildCandidates turns feed entries into candidate disturbances, one per
// entry, in feed order. Candidates can share an ID until MergeDuplicates runs.
func BuildCandidates(entries []*Entry, resolver LineResolver) ([]*types.Disturbance, error) {
	candidates := make([]*types.Disturbance, 0, len(entries))
	for _, entry := range entries {
		id := NormalizeID(entry.Name)
		candidate := &types.Disturbance{
			ID:        id,
			Title:     entry.Title,
			Type:      types.ClassifyDisturbance(entry.Title),
			StartTime: entry.StartTime,
			Descriptions: []*types.Description{{
				DisturbanceID: id,
				Text:          entry.Description,
				CreatedAt:     entry.StartTime,
			}},
		}
		for _, ref := range entry.Lines {
			line, err := resolver.ResolveLine(ref.Code, ref.Type)
			if err != nil {
				return nil, err
			}
			if !funk.ContainsString(candidate.LineIDs(), line.ID) {
				candidate.Lines = append(candidate.Lines, line)
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// MergeDuplicates collapses candidates sharing an ID into one, kept at the
// position of the first occurrence. Title and start time come from the first
// occurrence, lines are unioned in order of appearance and description texts
// are joined with DescriptionSeparator. The input candidates are not modified.
func MergeDuplicates(candidates []*types.Disturbance) []*types.Disturbance {
	merged := []*types.Disturbance{}
	byID := make(map[string]*types.Disturbance)
	for _, candidate := range candidates {
		existing, ok := byID[candidate.ID]
		if !ok {
			c := candidate.Snapshot()
			byID[c.ID] = c
			merged = append(merged, c)
			continue
		}

		lineIDs := existing.LineIDs()
		for _, line := range candidate.Lines {
			if !funk.ContainsString(lineIDs, line.ID) {
				l := *line
				existing.Lines = append(existing.Lines, &l)
				lineIDs = append(lineIDs, line.ID)
			}
		}

		latest := existing.LatestDescription()
		other := candidate.LatestDescription()
		switch {
		case other == nil:
		case latest == nil:
			d := *other
			d.DisturbanceID = existing.ID
			existing.Descriptions = append(existing.Descriptions, &d)
		default:
			latest.Text = latest.Text + DescriptionSeparator + other.Text
		}
	}
	return merged
}
