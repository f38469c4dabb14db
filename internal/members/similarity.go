package members

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/EmpoweredVote/mp-sync/internal/metrics"
	"github.com/EmpoweredVote/mp-sync/internal/textnorm"
)

// groupBatchSize is how many members GroupDuplicates pulls per query.
const groupBatchSize = 500

var clusterNamespace = uuid.MustParse("6f1c2b1e-4a0e-5d3c-9b8a-2f6d7e8c9a10")

// SimilarityKey identifies a person across reissued external ids.
type SimilarityKey struct {
	Name     string
	RidingID uuid.UUID
	Active   bool
}

func (k SimilarityKey) String() string {
	return fmt.Sprintf("%s|%s|%t", k.Name, k.RidingID, k.Active)
}

// KeyOf returns m's similarity key. Members with no riding or a blank name
// have no key and are never grouped.
func KeyOf(m *Member) (SimilarityKey, bool) {
	if m.RidingID == nil || *m.RidingID == uuid.Nil {
		return SimilarityKey{}, false
	}
	name := textnorm.NameKey(deref(m.Name))
	if name == "" {
		return SimilarityKey{}, false
	}
	return SimilarityKey{Name: name, RidingID: *m.RidingID, Active: m.Active}, true
}

// Cluster is a set of members sharing one similarity key. Members are sorted
// by external id, highest first.
type Cluster struct {
	ID      uuid.UUID `json:"id"`
	Key     string    `json:"key"`
	Members []Member  `json:"members"`

	key SimilarityKey
}

func (c Cluster) SimilarityKey() SimilarityKey {
	return c.key
}

// Target is the member with the highest external id, taken to be the
// current term's record.
func (c Cluster) Target() *Member {
	return &c.Members[0]
}

// Sources are the remaining members, highest external id first.
func (c Cluster) Sources() []*Member {
	out := make([]*Member, 0, len(c.Members)-1)
	for i := 1; i < len(c.Members); i++ {
		out = append(out, &c.Members[i])
	}
	return out
}

// SnapshotDuplicates groups duplicates under the reconcile lock, so the
// clusters never mix records from before and after a running import.
func SnapshotDuplicates(ctx context.Context, store Store) ([]Cluster, error) {
	var clusters []Cluster
	err := store.WithReconcileLock(ctx, func(s Store) error {
		var err error
		clusters, err = GroupDuplicates(ctx, s)
		return err
	})
	return clusters, err
}

// GroupDuplicates scans every member in the store and returns the clusters
// of duplicates. Callers outside a reconcile lock want SnapshotDuplicates.
func GroupDuplicates(ctx context.Context, store Store) ([]Cluster, error) {
	g := NewGrouper()
	err := store.EachMember(ctx, groupBatchSize, func(batch []Member) error {
		g.Add(batch...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan members: %w", err)
	}
	clusters := g.Clusters()
	metrics.DuplicateClusters.Set(float64(len(clusters)))
	return clusters, nil
}

// Grouper accumulates members by similarity key.
type Grouper struct {
	byKey map[SimilarityKey][]Member
}

func NewGrouper() *Grouper {
	return &Grouper{byKey: make(map[SimilarityKey][]Member)}
}

func (g *Grouper) Add(members ...Member) {
	for _, m := range members {
		k, ok := KeyOf(&m)
		if !ok {
			continue
		}
		g.byKey[k] = append(g.byKey[k], m)
	}
}

// Clusters returns every key holding more than one distinct external id,
// ordered by name descending, then riding, then active first.
func (g *Grouper) Clusters() []Cluster {
	var out []Cluster
	for k, ms := range g.byKey {
		distinct := make(map[string]struct{}, len(ms))
		for _, m := range ms {
			distinct[m.ExternalID] = struct{}{}
		}
		if len(distinct) < 2 {
			continue
		}

		sorted := append([]Member(nil), ms...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return CompareExternalIDs(sorted[i].ExternalID, sorted[j].ExternalID) > 0
		})

		out = append(out, Cluster{
			ID:      uuid.NewSHA1(clusterNamespace, []byte("cluster:"+k.String())),
			Key:     k.String(),
			Members: sorted,
			key:     k,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key, out[j].key
		if a.Name != b.Name {
			return a.Name > b.Name
		}
		if a.RidingID != b.RidingID {
			return a.RidingID.String() < b.RidingID.String()
		}
		return a.Active && !b.Active
	})
	return out
}

// CompareExternalIDs orders ids numerically when both are integers and
// lexicographically otherwise. It returns -1, 0 or 1.
func CompareExternalIDs(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
