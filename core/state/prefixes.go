package state

import "fmt"

var (
	lendingPrefix  = []byte("lending/")
	assetPrefix    = []byte("lending/asset/")
	poolPrefix     = []byte("lending/pool/")
	positionPrefix = []byte("lending/position/")
	accountPrefix  = []byte("lending/account/")
	boundaryPrefix = []byte("lending/boundary/")
)

func prefixed(prefix []byte, parts ...string) []byte {
	size := len(prefix)
	for i, part := range parts {
		if i > 0 {
			size++
		}
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, part...)
	}
	return buf
}

func assetKey(asset string) []byte { return prefixed(assetPrefix, asset) }

func poolKey(asset string) []byte { return prefixed(poolPrefix, asset) }

// Asset identifiers never contain '/', so the separator keeps position keys
// unambiguous even when the account does.
func positionKey(account, asset string) []byte {
	return prefixed(positionPrefix, account, asset)
}

func accountKey(account string) []byte { return prefixed(accountPrefix, account) }

// Days are zero padded so boundaries of one asset iterate in day order.
func boundaryKey(asset string, day uint64) []byte {
	return prefixed(boundaryPrefix, asset, fmt.Sprintf("%020d", day))
}

var ledgerDayKey = []byte("lending/meta/day")
