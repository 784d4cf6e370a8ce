package lending

import (
	"github.com/google/btree"
)

// RankEntry is one row of the health ranking.
type RankEntry struct {
	Account        string
	Health         Health
	BorrowedAssets []string
}

func rankLess(a, b RankEntry) bool {
	if a.Health.Less(b.Health) {
		return true
	}
	if b.Health.Less(a.Health) {
		return false
	}
	return a.Account < b.Account
}

// HealthRanking is an ascending view of account health taken at one point in
// time. Entries are produced lazily by Next and the walk may be restarted or
// resumed after any account.
type HealthRanking struct {
	tree    *btree.BTreeG[RankEntry]
	byID    map[string]RankEntry
	skipped []string
	last    RankEntry
	started bool
}

func newHealthRanking() *HealthRanking {
	return &HealthRanking{
		tree: btree.NewG[RankEntry](16, rankLess),
		byID: make(map[string]RankEntry),
	}
}

func (r *HealthRanking) insert(entry RankEntry) {
	if prev, ok := r.byID[entry.Account]; ok {
		r.tree.Delete(prev)
	}
	r.tree.ReplaceOrInsert(entry)
	r.byID[entry.Account] = entry
}

func (r *HealthRanking) skip(account string) {
	r.skipped = append(r.skipped, account)
}

// Skipped lists indebted accounts whose valuation could not be represented.
func (r *HealthRanking) Skipped() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.skipped...)
}

// Len returns the number of ranked accounts.
func (r *HealthRanking) Len() int {
	if r == nil {
		return 0
	}
	return r.tree.Len()
}

// Next returns the following entry in ascending order.
func (r *HealthRanking) Next() (RankEntry, bool) {
	if r == nil {
		return RankEntry{}, false
	}
	if !r.started {
		entry, ok := r.tree.Min()
		if ok {
			r.last, r.started = entry, true
		}
		return entry, ok
	}
	var (
		next  RankEntry
		found bool
	)
	r.tree.AscendGreaterOrEqual(r.last, func(item RankEntry) bool {
		if item.Account == r.last.Account {
			return true
		}
		next, found = item, true
		return false
	})
	if found {
		r.last = next
	}
	return next, found
}

// Reset restarts the walk from the lowest health index.
func (r *HealthRanking) Reset() {
	if r == nil {
		return
	}
	r.started = false
	r.last = RankEntry{}
}

// SeekAfter positions the walk so the next entry follows account. It reports
// false when the account is not ranked.
func (r *HealthRanking) SeekAfter(account string) bool {
	if r == nil {
		return false
	}
	entry, ok := r.byID[account]
	if !ok {
		return false
	}
	r.last, r.started = entry, true
	return true
}

// Take returns up to n further entries; n <= 0 drains the ranking.
func (r *HealthRanking) Take(n int) []RankEntry {
	out := make([]RankEntry, 0)
	for n <= 0 || len(out) < n {
		entry, ok := r.Next()
		if !ok {
			break
		}
		out = append(out, entry)
	}
	return out
}
