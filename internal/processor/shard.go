package processor

// shardFor implements the pinned Knuth-multiplicative sharding function:
// shard(key) = (key * 2654435761) mod shards, matching the untruncated
// arithmetic of the formula this is pinned to exactly, for every key and
// every shard count (not just powers of two).
//
// Rather than performing the multiply in a fixed machine width (which
// wraps for large enough key*2654435761 and, worse, disagrees with the
// true mod whenever shards isn't a power of two), this reduces both
// operands mod shards first: (a*b) mod n == ((a mod n)*(b mod n)) mod n
// holds for all integers, so the result is exact regardless of key's
// magnitude or sign. Go's %  can return a negative remainder for a
// negative key; it's folded back into [0, shards) to match the
// non-negative result of a true mod.
func shardFor(key, shards int) int {
	kMod := key % shards
	if kMod < 0 {
		kMod += shards
	}
	cMod := 2654435761 % shards
	h := (kMod * cMod) % shards
	if h < 0 {
		h += shards
	}
	return h
}
