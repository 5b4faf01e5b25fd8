package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
)

// Migration errors.
var (
	ErrMigrationAborted = errors.New("migration aborted")
	ErrReadBackMismatch = errors.New("migrated entry does not read back")
)

type migrated struct {
	id    string
	words []string
	fresh bool // written by this run
}

// Migrate moves every entry of version from into version to.
//
// All new entries are committed in one batch and read back before any source
// entry is deleted. On failure the source namespace is left untouched and
// entries written by this run are removed again. Keys already present in to
// are not re-encrypted; their source entry is deleted once the target reads
// back to the same words. An empty source makes the call a no-op.
func (v *Vault) Migrate(ctx context.Context, from, to Version, password []byte) error {
	if from >= to {
		return fmt.Errorf("%w: cannot migrate %s to %s", ErrMigrationAborted, from, to)
	}
	src, err := v.space(from)
	if err != nil {
		return err
	}
	dst, err := v.space(to)
	if err != nil {
		return err
	}

	list := func() ([]string, error) { return v.KeyIDs(from) }
	return v.exclusive(ctx, list, func(ids []string) error {
		if len(ids) == 0 {
			return nil
		}
		logger := log.Vault.With().Stringer("from", from).Stringer("to", to).Logger()
		done := log.Benchmark("vault.migrate")
		defer done()

		var staged []migrated
		defer func() {
			for _, m := range staged {
				wipeWords(m.words)
			}
		}()

		b := dst.NewBatch()
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrMigrationAborted, err)
			}
			e, err := v.Entry(from, id)
			if err != nil {
				return fmt.Errorf("%w: read %s: %w", ErrMigrationAborted, id, err)
			}
			words, err := Decrypt(e, password)
			if err != nil {
				return fmt.Errorf("%w: key %s: %w", ErrMigrationAborted, id, err)
			}

			exists, err := dst.Has([]byte(id))
			if err != nil {
				wipeWords(words)
				return fmt.Errorf("%w: %w", ErrMigrationAborted, err)
			}
			staged = append(staged, migrated{id: id, words: words, fresh: !exists})
			if exists {
				continue
			}

			ne, err := Encrypt(to, id, words, password, e.Params)
			if err != nil {
				return fmt.Errorf("%w: key %s: %w", ErrMigrationAborted, id, err)
			}
			data, err := marshalEntry(ne)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMigrationAborted, err)
			}
			if err := b.Put([]byte(id), data); err != nil {
				return fmt.Errorf("%w: %w", ErrMigrationAborted, err)
			}
		}

		if err := b.Commit(); err != nil {
			v.rollback(to, staged)
			return fmt.Errorf("%w: commit: %w", ErrMigrationAborted, err)
		}

		for _, m := range staged {
			got, err := v.decryptWords(to, m.id, password)
			if err == nil && !sameWords(got, m.words) {
				err = ErrReadBackMismatch
			}
			wipeWords(got)
			if err != nil {
				v.rollback(to, staged)
				return fmt.Errorf("%w: key %s: %w", ErrMigrationAborted, m.id, err)
			}
		}

		del := src.NewBatch()
		for _, m := range staged {
			if err := del.Delete([]byte(m.id)); err != nil {
				return err
			}
		}
		if err := del.Commit(); err != nil {
			// Targets are valid; a rerun finishes the cleanup.
			return fmt.Errorf("delete migrated %s entries: %w", from, err)
		}
		logger.Info().Int("keys", len(staged)).Msg("Vault migrated")
		return nil
	})
}

// MigrateChain brings every older version up to the current one, one step
// at a time.
func (v *Vault) MigrateChain(ctx context.Context, password []byte) error {
	for ver := V2; ver < v.current; ver++ {
		if err := v.Migrate(ctx, ver, ver+1, password); err != nil {
			return err
		}
	}
	return nil
}

// NeedsMigration reports whether any version older than the current one
// still holds entries.
func (v *Vault) NeedsMigration() (bool, error) {
	for ver := V2; ver < v.current; ver++ {
		empty, err := v.IsEmpty(ver)
		if err != nil {
			return false, err
		}
		if !empty {
			return true, nil
		}
	}
	return false, nil
}

func (v *Vault) decryptWords(ver Version, id string, password []byte) ([]string, error) {
	e, err := v.Entry(ver, id)
	if err != nil {
		return nil, err
	}
	return Decrypt(e, password)
}

// rollback removes the entries this run wrote into ver. Entries that were
// already there before the run stay.
func (v *Vault) rollback(ver Version, staged []migrated) {
	b := v.spaces[ver].NewBatch()
	n := 0
	for _, m := range staged {
		if m.fresh {
			_ = b.Delete([]byte(m.id))
			n++
		}
	}
	if n == 0 {
		return
	}
	if err := b.Commit(); err != nil {
		log.Vault.Error().Err(err).Stringer("version", ver).Msg("Migration rollback failed")
	}
}

func sameWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
