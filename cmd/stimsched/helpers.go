package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/danielpatrickdp/stimsched/internal/state"
)

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseSeeds turns section=root pairs into pinned roots. Roots accept
// decimal or 0x-prefixed hex.
func parseSeeds(raw map[string]string) (map[string]uint64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	seeds := make(map[string]uint64, len(raw))
	for name, s := range raw {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("seed for section %q: %w", name, err)
		}
		seeds[name] = v
	}
	return seeds, nil
}

func (g *globals) openStore() (*state.Store, error) {
	store, err := state.NewStore(g.db)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", g.db, err)
	}
	return store, nil
}
