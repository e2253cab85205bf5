package rules

import (
	"context"
	"log/slog"

	"github.com/rivercweiss/chime/internal/model"
)

// Store serves rules from a directory of CUE files. Every call re-reads
// the directory so edits take effect on the next pass without a restart.
type Store struct {
	dir string
}

// NewStore returns a store reading rule files under dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// EnabledValidRules loads the directory and returns the enabled rules
// that passed structural validation. Broken files and rules are logged
// and skipped; only a directory-level failure is an error.
func (s *Store) EnabledValidRules(ctx context.Context) ([]model.Rule, error) {
	res, err := LoadDir(s.dir)
	if err != nil {
		return nil, err
	}

	for _, lerr := range res.Errors {
		slog.Warn("rule skipped", "error", lerr.Error())
	}

	out := make([]model.Rule, 0, len(res.Rules))
	for _, r := range res.Rules {
		if !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
