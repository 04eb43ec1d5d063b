// Package pg bootstraps PostgreSQL access with pgx/v5: a retrying pool
// constructor, goose migrations from an fs.FS, a readiness check, and helpers
// that classify pgx errors.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
package pg
