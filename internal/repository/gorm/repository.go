package gormrepository

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"executor/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// jsonPatch encodes a payload merge operand for `payload || ?::jsonb`.
func jsonPatch(patch map[string]any) (string, error) {
	if len(patch) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

var _ repository.Repository = (*Store)(nil)
