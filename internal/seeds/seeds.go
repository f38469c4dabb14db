// Package seeds loads reference data the member loader resolves against.
package seeds

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EmpoweredVote/mp-sync/internal/members"
)

//go:embed data/provinces.yaml
var provincesYAML []byte

// Provinces returns the provinces and territories in the embedded seed file.
func Provinces() ([]members.Province, error) {
	var provinces []members.Province
	if err := yaml.Unmarshal(provincesYAML, &provinces); err != nil {
		return nil, fmt.Errorf("failed to parse provinces.yaml: %w", err)
	}
	return provinces, nil
}

// SeedAll inserts any missing reference rows. Existing rows are left alone.
func SeedAll(d *gorm.DB, log *zap.Logger) error {
	provinces, err := Provinces()
	if err != nil {
		return err
	}

	res := d.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_en"}},
		DoNothing: true,
	}).Create(&provinces)
	if res.Error != nil {
		return fmt.Errorf("failed to seed provinces: %w", res.Error)
	}

	log.Info("seeded provinces", zap.Int("inserted", int(res.RowsAffected)), zap.Int("total", len(provinces)))
	return nil
}
