package members

import (
	"sort"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/EmpoweredVote/mp-sync/internal/textnorm"
)

// NearDuplicate pairs two members of the same riding whose names are close
// but not equal after normalization. These are for review only and are
// never merged automatically.
type NearDuplicate struct {
	A          Member  `json:"a"`
	B          Member  `json:"b"`
	Similarity float64 `json:"similarity"`
}

type nearBucket struct {
	riding uuid.UUID
	active bool
}

// SuggestNearDuplicates returns near-duplicate pairs scoring at least
// threshold, best match first.
func SuggestNearDuplicates(members []Member, threshold float64) []NearDuplicate {
	buckets := make(map[nearBucket][]int)
	for i := range members {
		m := &members[i]
		if m.RidingID == nil || textnorm.NameKey(deref(m.Name)) == "" {
			continue
		}
		b := nearBucket{riding: *m.RidingID, active: m.Active}
		buckets[b] = append(buckets[b], i)
	}

	var out []NearDuplicate
	for _, idx := range buckets {
		for x := 0; x < len(idx); x++ {
			for y := x + 1; y < len(idx); y++ {
				a, b := members[idx[x]], members[idx[y]]
				ka, kb := textnorm.NameKey(deref(a.Name)), textnorm.NameKey(deref(b.Name))
				if ka == kb {
					continue
				}
				sim := matchr.JaroWinkler(ka, kb, false)
				if sim < threshold {
					continue
				}
				if CompareExternalIDs(a.ExternalID, b.ExternalID) < 0 {
					a, b = b, a
				}
				out = append(out, NearDuplicate{A: a, B: b, Similarity: sim})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return CompareExternalIDs(out[i].A.ExternalID, out[j].A.ExternalID) > 0
	})
	return out
}
