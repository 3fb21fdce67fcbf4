// Package raffle implements tier-weighted winner selection for limited drops.
package raffle

import (
	"math/rand/v2"
)

// Candidate is a pending entry as seen by the draw.
type Candidate struct {
	EntryID    int64
	UserID     int64
	Multiplier int
}

// Result splits the candidates into winning and losing entry ids.
type Result struct {
	Winners []int64
	Losers  []int64
}

// Draw picks min(winners, distinct users) winners. Each candidate occupies
// Multiplier slots in a shuffled pool (at least one); the pool is walked in
// order and a user wins at most once.
func Draw(candidates []Candidate, winners int, rng *rand.Rand) Result {
	if winners < 0 {
		winners = 0
	}

	pool := make([]int, 0, len(candidates))
	for i, c := range candidates {
		slots := c.Multiplier
		if slots < 1 {
			slots = 1
		}
		for j := 0; j < slots; j++ {
			pool = append(pool, i)
		}
	}

	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	won := make(map[int]bool, winners)
	users := make(map[int64]bool, winners)
	for _, idx := range pool {
		if len(users) >= winners {
			break
		}
		c := candidates[idx]
		if users[c.UserID] {
			continue
		}
		users[c.UserID] = true
		won[idx] = true
	}

	var res Result
	for i, c := range candidates {
		if won[i] {
			res.Winners = append(res.Winners, c.EntryID)
		} else {
			res.Losers = append(res.Losers, c.EntryID)
		}
	}
	return res
}

// NewRand returns a generator seeded from the runtime's secure source.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
