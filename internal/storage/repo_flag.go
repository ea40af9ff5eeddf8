package storage

import "context"

// FlagRepo stores typing interrupt flags in Postgres, shared by every
// process that points at the same database.
type FlagRepo struct {
	db DB
}

func NewFlagRepo(db DB) *FlagRepo {
	return &FlagRepo{db: db}
}

func (r *FlagRepo) Get(ctx context.Context, key string) (bool, error) {
	var set bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM typing_interrupts WHERE key = $1)`, key,
	).Scan(&set)
	return set, err
}

func (r *FlagRepo) Set(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO typing_interrupts (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, key)
	return err
}

func (r *FlagRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM typing_interrupts WHERE key = $1`, key)
	return err
}
