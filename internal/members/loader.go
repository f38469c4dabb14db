package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/logging"
	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
	"github.com/EmpoweredVote/mp-sync/internal/metrics"
)

// Loader upserts extracted profiles into the store.
type Loader struct {
	store  Store
	log    *zap.Logger
	events Publisher
	now    func() time.Time
	locks  keyedMutex
}

func NewLoader(store Store, log *zap.Logger, events Publisher) *Loader {
	if events == nil {
		events = nopPublisher{}
	}
	return &Loader{
		store:  store,
		log:    log.Named("loader"),
		events: events,
		now:    time.Now,
	}
}

// Load finds or creates the member keyed by the extracted external id, copies
// the scraped fields onto it, resolves its party, province and riding, marks
// it active and saves it.
//
// On a validation failure the record is returned along with a
// *ValidationError. Any other error comes straight from the store.
func (l *Loader) Load(ctx context.Context, f parl.Fields) (*Member, error) {
	start := time.Now()
	externalID := strings.TrimSpace(deref(f.ExternalID))

	unlock := l.locks.Lock(externalID)
	defer unlock()

	m, err := l.findOrNew(ctx, externalID)
	if err != nil {
		metrics.LoadTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	applyFields(m, f)
	m.Active = true
	m.LastSynced = l.now()

	// A province or riding missing from the page keeps the stored reference.
	// Only a scraped value that matches nothing clears it.
	if err := l.resolveReferences(ctx, m, f); err != nil {
		metrics.LoadTotal.WithLabelValues("error").Inc()
		return m, err
	}

	if warnings := Lint(m); len(warnings) > 0 {
		l.log.Warn("member has malformed fields",
			zap.String("external_id", externalID),
			zap.Strings("messages", warnings),
		)
	}

	if err := l.store.SaveMember(ctx, m); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.LoadTotal.WithLabelValues("invalid").Inc()
			l.log.Warn("member failed validation",
				zap.String("external_id", externalID),
				zap.Strings("messages", verr.Messages),
			)
			return m, err
		}
		metrics.LoadTotal.WithLabelValues("error").Inc()
		logging.LogError(l.log, "loader", "save member", err, zap.String("external_id", externalID))
		return m, fmt.Errorf("save member %s: %w", externalID, err)
	}

	metrics.LoadTotal.WithLabelValues("saved").Inc()
	logging.LogUpsert(l.log, "loader", 1, time.Since(start))

	if err := l.events.Publish(ctx, Event{
		Type:       EventMemberLoaded,
		ExternalID: m.ExternalID,
		MemberID:   m.ID,
		Name:       deref(m.Name),
		OccurredAt: m.LastSynced,
	}); err != nil {
		l.log.Warn("failed to publish member event", zap.String("external_id", externalID), zap.Error(err))
	}

	return m, nil
}

func (l *Loader) findOrNew(ctx context.Context, externalID string) (*Member, error) {
	if externalID == "" {
		return &Member{ImageRef: PlaceholderImageRef}, nil
	}
	m, err := l.store.FindMemberByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("find member %s: %w", externalID, err)
	}
	if m == nil {
		m = &Member{ExternalID: externalID, ImageRef: PlaceholderImageRef}
	}
	return m, nil
}

// applyFields copies the simple scalars. An absent field leaves the record's
// value as it was.
func applyFields(m *Member, f parl.Fields) {
	if f.ExternalID != nil {
		m.ExternalID = strings.TrimSpace(*f.ExternalID)
	}
	copyField(&m.ConstituencyExternalID, f.ConstituencyExternalID)
	copyField(&m.Name, f.Name)
	copyField(&m.Email, f.Email)
	copyField(&m.Website, f.Website)
	copyField(&m.ParliamentaryPhone, f.ParliamentaryPhone)
	copyField(&m.ParliamentaryFax, f.ParliamentaryFax)
	copyField(&m.PreferredLanguage, f.PreferredLanguage)
	copyField(&m.ConstituencyAddress, f.ConstituencyAddress)
	copyField(&m.ConstituencyCity, f.ConstituencyCity)
	copyField(&m.ConstituencyPostalCode, f.ConstituencyPostalCode)
	copyField(&m.ConstituencyPhone, f.ConstituencyPhone)
	copyField(&m.ConstituencyFax, f.ConstituencyFax)
}

func copyField(dst **string, v *string) {
	if v == nil {
		return
	}
	s := *v
	*dst = &s
}

// resolveReferences sets party, province and riding. A reference whose field
// was not scraped is left alone; one that was scraped but matches nothing is
// cleared.
func (l *Loader) resolveReferences(ctx context.Context, m *Member, f parl.Fields) error {
	if f.Party != nil && strings.TrimSpace(*f.Party) != "" {
		p, err := l.store.FindOrCreateParty(ctx, *f.Party)
		if err != nil {
			return fmt.Errorf("resolve party %q: %w", *f.Party, err)
		}
		m.PartyID, m.Party = &p.ID, p
	}

	if f.Province != nil {
		p, err := l.store.FindProvinceByName(ctx, *f.Province)
		if err != nil {
			return fmt.Errorf("resolve province %q: %w", *f.Province, err)
		}
		m.ProvinceID, m.Province = nil, nil
		if p != nil {
			m.ProvinceID, m.Province = &p.ID, p
		} else {
			l.log.Debug("province not found", zap.String("external_id", m.ExternalID), zap.String("province", *f.Province))
		}
	}

	if f.ConstituencyExternalID != nil {
		r, err := l.store.FindRidingByExternalID(ctx, *f.ConstituencyExternalID)
		if err != nil {
			return fmt.Errorf("resolve riding %q: %w", *f.ConstituencyExternalID, err)
		}
		m.RidingID, m.Riding = nil, nil
		if r != nil {
			m.RidingID, m.Riding = &r.ID, r
		} else {
			l.log.Debug("riding not found", zap.String("external_id", m.ExternalID), zap.String("constituency_external_id", *f.ConstituencyExternalID))
		}
	}

	return nil
}
