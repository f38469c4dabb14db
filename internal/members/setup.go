package members

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/EmpoweredVote/mp-sync/internal/db"
)

// Init prepares the members schema. It is safe to run on every start.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "members"); err != nil {
		return fmt.Errorf("ensure schema members: %w", err)
	}

	if err := db.EnsureUUIDExtension(d); err != nil {
		return err
	}

	if err := d.AutoMigrate(
		&Party{},
		&Province{},
		&Riding{},
		&Member{},
		&MemberMerge{},
	); err != nil {
		return fmt.Errorf("auto-migrate members tables: %w", err)
	}

	// Case insensitive unique for parties.name
	if err := d.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS parties_name_ci_unique
        ON members.parties (LOWER(name));
    `).Error; err != nil {
		return fmt.Errorf("create parties_name_ci_unique: %w", err)
	}

	return nil
}
