package members

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/metrics"
)

// ImageAdopter fetches an image and stores it under a member's identity,
// returning the member's new image reference.
type ImageAdopter interface {
	Adopt(ctx context.Context, m *Member, sourceURL string) (string, error)
}

type ReconcileOptions struct {
	// DryRun computes every merge without writing anything.
	DryRun bool
	// MergedBy is recorded on audit rows. Defaults to "system".
	MergedBy string
}

// ClusterResult is what reconciliation did with one cluster.
type ClusterResult struct {
	ClusterID         uuid.UUID `json:"cluster_id"`
	TargetExternalID  string    `json:"target_external_id"`
	SourceExternalIDs []string  `json:"source_external_ids"`
	FilledFields      []string  `json:"filled_fields,omitempty"`
	ImageScheduled    bool      `json:"image_scheduled"`
	ImageAdopted      bool      `json:"image_adopted"`
	Merges            int       `json:"merges"`
	Saved             bool      `json:"saved"`
}

type ReconcileReport struct {
	DryRun     bool            `json:"dry_run"`
	Clusters   []ClusterResult `json:"clusters"`
	Merged     int             `json:"merged"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Reconciler merges duplicate clusters into their newest record. It runs
// under an exclusive store lock so clusters are never computed mid-write.
type Reconciler struct {
	store  Store
	merger Merger
	images ImageAdopter
	events Publisher
	log    *zap.Logger
}

// NewReconciler builds a Reconciler. images and events may be nil.
func NewReconciler(store Store, merger Merger, images ImageAdopter, events Publisher, log *zap.Logger) *Reconciler {
	if events == nil {
		events = nopPublisher{}
	}
	return &Reconciler{
		store:  store,
		merger: merger,
		images: images,
		events: events,
		log:    log.Named("reconciler"),
	}
}

// Run groups duplicates and merges every source into its cluster's target,
// highest external id first. It returns ErrReconcileInProgress when another
// reconciliation holds the lock.
func (r *Reconciler) Run(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error) {
	if opts.MergedBy == "" {
		opts.MergedBy = "system"
	}
	report := ReconcileReport{DryRun: opts.DryRun, StartedAt: time.Now()}
	var pending []Event
	var adoptions []imageAdoption

	err := r.store.WithReconcileLock(ctx, func(s Store) error {
		clusters, err := GroupDuplicates(ctx, s)
		if err != nil {
			return err
		}
		r.log.Info("duplicate clusters found", zap.Int("clusters", len(clusters)))

		for _, c := range clusters {
			res, ev, err := r.reconcileCluster(ctx, s, c, opts)
			if err != nil {
				return fmt.Errorf("cluster %s (target %s): %w", c.ID, c.Target().ExternalID, err)
			}
			report.Clusters = append(report.Clusters, res)
			report.Merged += res.Merges
			if ev != nil {
				pending = append(pending, *ev)
			}

			target := c.Target()
			if !opts.DryRun && r.images != nil && target.PendingImageURL != "" {
				adoptions = append(adoptions, imageAdoption{cluster: len(report.Clusters) - 1, target: *target})
			}
		}
		return nil
	})
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}

	// Only announce merges once the transaction has committed.
	if len(pending) > 0 {
		if err := r.events.Publish(ctx, pending...); err != nil {
			r.log.Warn("failed to publish merge events", zap.Error(err))
		}
	}

	// Downloads run after commit so a slow image host never holds the locks.
	for _, a := range adoptions {
		if r.adoptImage(ctx, &a.target) {
			report.Clusters[a.cluster].ImageAdopted = true
		}
	}
	report.FinishedAt = time.Now()

	r.log.Info("reconciliation finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("clusters", len(report.Clusters)),
		zap.Int("merged", report.Merged),
	)
	return report, nil
}

func (r *Reconciler) reconcileCluster(ctx context.Context, s Store, c Cluster, opts ReconcileOptions) (ClusterResult, *Event, error) {
	target := c.Target()
	res := ClusterResult{ClusterID: c.ID, TargetExternalID: target.ExternalID}

	var merges []MemberMerge
	for _, src := range c.Sources() {
		mr := r.merger.Merge(target, src)
		res.SourceExternalIDs = append(res.SourceExternalIDs, src.ExternalID)
		res.FilledFields = append(res.FilledFields, mr.FilledFields...)
		res.ImageScheduled = res.ImageScheduled || mr.ImageScheduled
		if !mr.Changed() {
			continue
		}
		merges = append(merges, MemberMerge{
			TargetMemberID:   target.ID,
			SourceMemberID:   src.ID,
			TargetExternalID: target.ExternalID,
			SourceExternalID: src.ExternalID,
			FilledFields:     mr.FilledFields,
			ImageScheduled:   mr.ImageScheduled,
			MergedBy:         opts.MergedBy,
		})
	}

	res.Merges = len(merges)
	if opts.DryRun {
		return res, nil, nil
	}

	if len(merges) == 0 {
		return res, nil, nil
	}

	if err := s.SaveMerge(ctx, target, merges); err != nil {
		return res, nil, err
	}
	res.Saved = true
	metrics.MergesTotal.Add(float64(len(merges)))

	return res, &Event{
		Type:              EventMemberMerged,
		ExternalID:        target.ExternalID,
		MemberID:          target.ID,
		Name:              deref(target.Name),
		SourceExternalIDs: res.SourceExternalIDs,
		FilledFields:      res.FilledFields,
		ImageScheduled:    res.ImageScheduled,
		OccurredAt:        time.Now(),
	}, nil
}

type imageAdoption struct {
	cluster int
	target  Member
}

// adoptImage downloads target's pending image and records the new ref. A
// failure leaves the image pending for the next run.
func (r *Reconciler) adoptImage(ctx context.Context, target *Member) bool {
	pendingURL := target.PendingImageURL
	ref, err := r.images.Adopt(ctx, target, pendingURL)
	if err != nil {
		r.log.Warn("image adoption failed",
			zap.String("external_id", target.ExternalID),
			zap.String("url", pendingURL),
			zap.Error(err),
		)
		return false
	}

	if err := r.store.SaveImageRef(ctx, target.ExternalID, pendingURL, ref); err != nil {
		r.log.Warn("failed to save adopted image",
			zap.String("external_id", target.ExternalID),
			zap.String("image_ref", ref),
			zap.Error(err),
		)
		return false
	}
	return true
}
