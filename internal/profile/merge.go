package profile

// MergeStats summarizes what a merge did to the remote side's profiles.
type MergeStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Kept    int `json:"kept"`
}

// Merge reconciles two divergent profile collections into one. It is pure:
// neither input is mutated.
//
// Policy:
//   - every local profile survives; a profile deleted remotely but present
//     locally reappears (data loss is never silent, tombstones are not synced)
//   - a remote profile with an unknown id is added
//   - a remote profile with a known id replaces the local one only when its
//     usage count is strictly greater; ties favor local to minimize churn
//   - the remote active id wins iff it references a profile present in the
//     merged result, otherwise the local active id is kept
//   - the remote storage location preference wins when supplied
func Merge(local, remote Config) (Config, MergeStats) {
	merged := local.Clone()
	var stats MergeStats

	for _, rp := range remote.List {
		idx := merged.FindProfile(rp.ID)
		if idx < 0 {
			merged.List = append(merged.List, rp.Clone())
			stats.Added++
			continue
		}
		if rp.Evolving.UsageCount > merged.List[idx].Evolving.UsageCount {
			merged.List[idx] = rp.Clone()
			stats.Updated++
		} else {
			stats.Kept++
		}
	}

	if remote.ActiveProfileID != "" && merged.FindProfile(remote.ActiveProfileID) >= 0 {
		merged.ActiveProfileID = remote.ActiveProfileID
	}

	if remote.StorageLocation != "" {
		merged.StorageLocation = remote.StorageLocation
	}

	return merged, stats
}
