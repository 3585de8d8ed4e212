package wander

// Superblock holds the volume-wide counters that spec.md §6 logs in the
// journal footer rather than a superblock block, because they aren't
// otherwise covered by the tree's journaling path (supplemented from
// original_source/'s super_ops.c, which hints at the same three counters).
type Superblock struct {
	FreeBlocks uint64
	NrFiles    uint64
	NextOID    uint64
}

// Apply rehydrates the superblock's counters from a durable journal footer,
// used on mount/recovery so these values don't need re-deriving from a walk
// of the whole tree.
func (s *Superblock) Apply(f Footer) {
	s.FreeBlocks = f.FreeBlocks
	s.NrFiles = f.NrFiles
	s.NextOID = f.NextOID
}

// Footer snapshots the superblock's current counters into a Footer ready
// to be written at the end of a commit, paired with the committing
// transaction's address.
func (s *Superblock) Footer(lastFlushedTx uint64) Footer {
	return Footer{
		LastFlushedTx: lastFlushedTx,
		FreeBlocks:    s.FreeBlocks,
		NrFiles:       s.NrFiles,
		NextOID:       s.NextOID,
	}
}
