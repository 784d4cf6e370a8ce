package trie

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"lendledger/storage"
)

// EmptyRoot is the root of a trie with no entries.
var EmptyRoot = types.EmptyRootHash

type leaf struct {
	key   []byte
	value []byte
}

// Root computes the Merkle-Patricia root of every key under prefix. Keys are
// hashed with keccak256 before insertion so the layout does not depend on
// key lengths; the walk is sorted, which the stack trie requires.
func Root(db storage.Database, prefix []byte) (common.Hash, error) {
	if db == nil {
		return common.Hash{}, fmt.Errorf("trie: database not configured")
	}
	leaves := make([]leaf, 0)
	err := db.Iterate(prefix, func(key, value []byte) bool {
		if len(value) == 0 {
			return true
		}
		leaves = append(leaves, leaf{key: crypto.Keccak256(key), value: value})
		return true
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("trie: iterate: %w", err)
	}
	return rootOf(leaves)
}

func rootOf(leaves []leaf) (common.Hash, error) {
	if len(leaves) == 0 {
		return EmptyRoot, nil
	}
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i].key, leaves[j].key) < 0
	})
	st := gethtrie.NewStackTrie(nil)
	for _, l := range leaves {
		if err := st.Update(l.key, l.value); err != nil {
			return common.Hash{}, fmt.Errorf("trie: update: %w", err)
		}
	}
	return st.Hash(), nil
}
