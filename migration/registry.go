package migration

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// List returns the migrations of all providers, sorted by name in ascending
// order. Definitions that failed to load, are invalid or have a duplicate name
// are excluded, and reported in the returned error. The remaining migrations
// are returned even if the error is not nil.
func List(ctx context.Context, providers ...Provider) ([]*Migration, error) {
	var (
		all  []*Migration
		errs []error
	)
	for _, p := range providers {
		migs, err := p.Migrations(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		all = append(all, migs...)
	}

	all = slices.DeleteFunc(all, func(m *Migration) bool { return m == nil })
	slices.SortStableFunc(all, func(a, b *Migration) int {
		return strings.Compare(a.Name, b.Name)
	})

	migs := make([]*Migration, 0, len(all))
	for _, m := range all {
		switch {
		case m.Name == "":
			errs = append(errs, &DiscoveryError{Source: "<unnamed>", Msg: "migration name is empty"})
			continue
		case m.Up == nil:
			errs = append(errs, &DiscoveryError{Source: m.Name, Msg: "migration has no up operation"})
			continue
		case len(migs) > 0 && migs[len(migs)-1].Name == m.Name:
			errs = append(errs, &DiscoveryError{Source: m.Name, Msg: "duplicate migration name"})
			continue
		}
		migs = append(migs, m)
	}

	return migs, errors.Join(errs...)
}
