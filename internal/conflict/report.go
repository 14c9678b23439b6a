package conflict

import "github.com/kirinyoku/rehearsal-go/internal/domain"

// Collisions reports every occupant of the snapshots whose buffered
// interval overlaps the raw candidate. An occupant present in several
// snapshots is reported once.
func Collisions(candidate domain.Interval, snaps ...domain.ConflictSnapshot) domain.ConflictReport {
	var (
		report domain.ConflictReport
		seen   = make(map[string]struct{})
	)

	for _, snap := range snaps {
		for _, o := range snap.Occupants {
			if !o.Buffered.Overlaps(candidate) {
				continue
			}
			key := string(o.Source) + o.ID.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			report.Add(o)
		}
	}

	return report
}
