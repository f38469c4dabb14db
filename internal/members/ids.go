package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
)

var ErrNoIDs = errors.New("no member ids to import")

// DirectoryLister lists the member ids published for a term.
type DirectoryLister interface {
	ListMemberIDs(ctx context.Context, term parl.Term) ([]string, error)
}

// IDRequest selects the ids of an import batch. Sources are combined.
type IDRequest struct {
	IDs           []string `json:"ids"`
	AllKnown      bool     `json:"all_known"`
	FromDirectory bool     `json:"from_directory"`
}

// ResolveIDs expands req into a de-duplicated id list, explicit ids first.
// dir may be nil when FromDirectory is not requested.
func ResolveIDs(ctx context.Context, req IDRequest, store Store, dir DirectoryLister, term parl.Term) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	add(req.IDs)

	if req.AllKnown {
		known, err := store.KnownExternalIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list known ids: %w", err)
		}
		add(known)
	}

	if req.FromDirectory {
		if dir == nil {
			return nil, errors.New("directory listing is not configured")
		}
		listed, err := dir.ListMemberIDs(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("list directory: %w", err)
		}
		add(listed)
	}

	if len(out) == 0 {
		return nil, ErrNoIDs
	}
	return out, nil
}

// NearDuplicatesFromStore scans the store under the reconcile lock and
// suggests near duplicates.
func NearDuplicatesFromStore(ctx context.Context, store Store, threshold float64) ([]NearDuplicate, error) {
	var all []Member
	err := store.WithReconcileLock(ctx, func(s Store) error {
		return s.EachMember(ctx, groupBatchSize, func(batch []Member) error {
			all = append(all, batch...)
			return nil
		})
	})
	if err != nil {
		if IsPhaseConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan members: %w", err)
	}
	return SuggestNearDuplicates(all, threshold), nil
}
