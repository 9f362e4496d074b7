package resolve

import (
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/seed"
)

// #region blocks
// Blocks walks the block structure of pool for NumberOfBlocks × LengthOfBlocks
// trials. Three streams are derived from root: the starting block and sub-list,
// the Bernoulli transition draws, and the value draws inside the active
// sub-list. The Bernoulli draw is taken even when only one block identity or
// sub-list exists.
func Blocks(pool *experiment.ValuePool, root uint64) *BlockSeries {
	bs := pool.Blocks
	experiment.Assertf(bs != nil, "pool %q has no block structure", pool.Name)

	start := seed.NewStream(root, seed.BlockStart, 0)
	change := seed.NewStream(root, seed.BlockChange, 0)
	value := seed.NewStream(root, seed.BlockValue, 0)

	n := bs.Trials()
	out := &BlockSeries{
		Indices: make([]int, n),
		Blocks:  make([]int, n),
		Lists:   make([]int, n),
	}
	ids := bs.Identities()
	block := start.IntN(ids)
	list := start.IntN(len(bs.Lists(block)))

	for t := 0; t < n; t++ {
		if t > 0 {
			moved := false
			if t%bs.LengthOfBlocks == 0 && change.Bernoulli(bs.ProbChangeBlock) && ids > 1 {
				block = other(change, block, ids)
				list = start.IntN(len(bs.Lists(block)))
				moved = true
			}
			if !moved {
				if lists := len(bs.Lists(block)); change.Bernoulli(bs.ProbChangeList) && lists > 1 {
					list = other(change, list, lists)
				}
			}
		}
		active := bs.Lists(block)[list]
		out.Indices[t] = active[value.IntN(len(active))]
		out.Blocks[t] = block
		out.Lists[t] = list
	}
	return out
}

// other draws uniformly among the n-1 choices different from cur.
func other(s *seed.Stream, cur, n int) int {
	return (cur + 1 + s.IntN(n-1)) % n
}
// #endregion blocks
