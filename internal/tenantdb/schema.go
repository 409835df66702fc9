package tenantdb

import (
	"context"
	"log"
)

// controlPlaneSchema is additive only: several instances may run it at the
// same time against the same database.
var controlPlaneSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS branches (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		db_host TEXT NOT NULL,
		db_port TEXT NOT NULL DEFAULT '5432',
		db_name TEXT NOT NULL,
		db_user TEXT NOT NULL,
		db_password TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS is_admin BOOLEAN NOT NULL DEFAULT false`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS active BOOLEAN NOT NULL DEFAULT true`,
	`ALTER TABLE branches ADD COLUMN IF NOT EXISTS kasa_numbers INTEGER[] NOT NULL DEFAULT '{}'`,
	`ALTER TABLE branches ADD COLUMN IF NOT EXISTS closing_hour INTEGER NOT NULL DEFAULT 6`,
	`CREATE INDEX IF NOT EXISTS idx_branches_user_id ON branches(user_id)`,
}

const promoteSeedAdminSQL = `UPDATE users SET is_admin = true WHERE email = $1 AND is_admin = false`

// ensureSchema returns the number of statements that failed for reasons other
// than the object already existing.
func (r *Registry) ensureSchema(ctx context.Context) int {
	exec := r.ControlPlane()
	failures := 0
	for _, ddl := range controlPlaneSchema {
		if _, err := exec.Exec(ctx, Statement{SQL: ddl}); err != nil {
			if IsDuplicateObject(err) {
				continue
			}
			failures++
			log.Printf("[tenantdb] WARN: schema statement failed: %v (%s)", err, compactSQL(ddl))
		}
	}

	if r.opts.SeedAdminEmail != "" {
		promoted, err := exec.Exec(ctx, Statement{SQL: promoteSeedAdminSQL, Args: []any{r.opts.SeedAdminEmail}})
		if err != nil {
			failures++
			log.Printf("[tenantdb] WARN: seed admin promotion failed: %v", err)
		} else if promoted > 0 {
			log.Printf("[tenantdb] promoted %s to admin", r.opts.SeedAdminEmail)
		}
	}
	return failures
}
