package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EmpoweredVote/mp-sync/internal/db"
)

const (
	reconcileLockKey = "members.reconcile"
	// phaseLockKey is held shared by import batches and exclusively by
	// anything that groups duplicates, so the two never interleave.
	phaseLockKey = "members.phase"
)

// Store is the canonical record store consumed by the pipeline.
//
// Lookups that find nothing return (nil, nil); absence is never an error.
type Store interface {
	Ping(ctx context.Context) error
	FindMemberByExternalID(ctx context.Context, externalID string) (*Member, error)
	SaveMember(ctx context.Context, m *Member) error
	FindOrCreateParty(ctx context.Context, name string) (*Party, error)
	FindProvinceByName(ctx context.Context, name string) (*Province, error)
	FindRidingByExternalID(ctx context.Context, externalID string) (*Riding, error)
	// EachMember streams every member in batches of at most size.
	EachMember(ctx context.Context, size int, fn func([]Member) error) error
	KnownExternalIDs(ctx context.Context) ([]string, error)
	// SaveMerge persists a merged target together with its audit rows.
	SaveMerge(ctx context.Context, target *Member, merges []MemberMerge) error
	// SaveImageRef stores an adopted image on the member, provided its
	// pending image is still pendingURL.
	SaveImageRef(ctx context.Context, externalID, pendingURL, imageRef string) error
	// WithReconcileLock runs fn on a consistent snapshot while holding the
	// exclusive reconciliation and phase locks. It returns
	// ErrReconcileInProgress when another reconciliation holds them and
	// ErrImportInProgress while an import batch is running.
	WithReconcileLock(ctx context.Context, fn func(Store) error) error
	// WithImportLock runs fn while holding the phase lock shared with other
	// import batches. It returns ErrReconcileInProgress when a
	// reconciliation holds the lock.
	WithImportLock(ctx context.Context, fn func() error) error
}

// GormStore is the Postgres implementation of Store.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

func (s *GormStore) Ping(ctx context.Context) error {
	var err error
	if s.inTx {
		err = s.db.WithContext(ctx).Exec("SELECT 1").Error
	} else {
		err = db.Ping(ctx, s.db)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *GormStore) FindMemberByExternalID(ctx context.Context, externalID string) (*Member, error) {
	var m Member
	err := s.db.WithContext(ctx).
		Preload("Party").Preload("Province").Preload("Riding").
		Where("external_id = ?", externalID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// memberColumns are overwritten when a load hits an existing external_id.
var memberColumns = []string{
	"constituency_external_id", "name", "email", "website",
	"parliamentary_phone", "parliamentary_fax", "preferred_language",
	"constituency_address", "constituency_city", "constituency_postal_code",
	"constituency_phone", "constituency_fax",
	"party_id", "province_id", "riding_id", "active", "last_synced", "updated_at",
}

// SaveMember validates and upserts m by external_id. Constraint violations
// are reported as *ValidationError.
func (s *GormStore) SaveMember(ctx context.Context, m *Member) error {
	if err := Validate(m); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "external_id"}},
				DoUpdates: clause.AssignmentColumns(memberColumns),
			},
			clause.Returning{Columns: []clause.Column{{Name: "id"}}},
		).
		Create(m).Error
	return classify(m.ExternalID, err)
}

func (s *GormStore) FindOrCreateParty(ctx context.Context, name string) (*Party, error) {
	name = strings.TrimSpace(name)
	tx := s.db.WithContext(ctx)

	var p Party
	err := tx.Where("LOWER(name) = LOWER(?)", name).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p = Party{Name: name}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return nil, err
	}
	// Lost a race with another creator; read the winner back.
	if err := tx.Where("LOWER(name) = LOWER(?)", name).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) FindProvinceByName(ctx context.Context, name string) (*Province, error) {
	var p Province
	err := s.db.WithContext(ctx).Where("name_en = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) FindRidingByExternalID(ctx context.Context, externalID string) (*Riding, error) {
	var r Riding
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *GormStore) EachMember(ctx context.Context, size int, fn func([]Member) error) error {
	var batch []Member
	return s.db.WithContext(ctx).
		FindInBatches(&batch, size, func(_ *gorm.DB, _ int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(batch)
		}).Error
}

func (s *GormStore) KnownExternalIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Member{}).
		Order("external_id").
		Pluck("external_id", &ids).Error
	return ids, err
}

// mergeColumns are the only columns a merge may write on the target.
var mergeColumns = []string{
	"date_of_birth", "place_of_birth", "wikipedia", "wikipedia_riding",
	"facebook", "twitter", "image_ref", "pending_image_url", "updated_at",
}

func (s *GormStore) SaveMerge(ctx context.Context, target *Member, merges []MemberMerge) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target.UpdatedAt = time.Now()
		if err := tx.Model(target).Select(mergeColumns).Updates(target).Error; err != nil {
			return classify(target.ExternalID, err)
		}
		if len(merges) == 0 {
			return nil
		}
		return tx.Create(&merges).Error
	})
}

func (s *GormStore) SaveImageRef(ctx context.Context, externalID, pendingURL, imageRef string) error {
	return s.db.WithContext(ctx).
		Model(&Member{}).
		Where("external_id = ? AND pending_image_url = ?", externalID, pendingURL).
		Updates(map[string]any{
			"image_ref":         imageRef,
			"pending_image_url": "",
			"updated_at":        time.Now(),
		}).Error
}

func (s *GormStore) WithReconcileLock(ctx context.Context, fn func(Store) error) error {
	// Repeatable read pins the snapshot at the lock query, so a batched scan
	// sees one state of the table.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := db.TryXactLock(ctx, tx, reconcileLockKey)
		if err != nil {
			return fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			return ErrReconcileInProgress
		}

		ok, err = db.TryXactLock(ctx, tx, phaseLockKey)
		if err != nil {
			return fmt.Errorf("acquire phase lock: %w", err)
		}
		if !ok {
			return ErrImportInProgress
		}
		return fn(&GormStore{db: tx, inTx: true})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
}

func (s *GormStore) WithImportLock(ctx context.Context, fn func() error) error {
	release, ok, err := db.TrySharedLock(ctx, s.db, phaseLockKey)
	if err != nil {
		return fmt.Errorf("acquire phase lock: %w", err)
	}
	if !ok {
		return ErrReconcileInProgress
	}
	defer release()
	return fn()
}

// classify turns integrity constraint violations (SQLSTATE class 23) into
// validation failures so the batch moves on to the next id.
func classify(externalID string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		msg := pgErr.Message
		if pgErr.ConstraintName != "" {
			msg += " (" + pgErr.ConstraintName + ")"
		}
		return &ValidationError{ExternalID: externalID, Messages: []string{msg}, Err: err}
	}
	return err
}
