package migrations

import (
	"io/fs"

	referrals "github.com/goliatone/go-referrals"
)

func init() {
	coreFS, err := fs.Sub(referrals.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return
	}
	Register(CoreSource, coreFS)
}
