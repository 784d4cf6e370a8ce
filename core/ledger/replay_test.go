package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/storage"
)

const sampleLog = `# two pools, one borrower
{"type":"init_pool","asset":"DOT","rate":"6.5","day":1}
{"type":"init_pool","asset":"USDT","rate":"1","day":1,"listing":{"collateral_eligible":false}}
{"type":"supply","account":"bob","asset":"USDT","amount":"5000","day":1}
{"type":"supply","account":"alice","asset":"DOT","amount":"100","collateral":true,"day":2}

{"type":"borrow","account":"alice","asset":"USDT","amount":"1000","day":3}
{"type":"borrow","account":"alice","asset":"USDT","amount":"300","day":3}
{"type":"set_rate","asset":"DOT","rate":"4","day":40}
{"type":"liquidate","account":"bob","target":"alice","borrowed_asset":"USDT","collateral_asset":"DOT","amount":"100","day":41}
`

func TestReplayDeterministicRoots(t *testing.T) {
	mem := storage.NewMemDB()
	defer mem.Close()
	level, err := storage.NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer level.Close()

	var roots []string
	for _, db := range []storage.Database{mem, level} {
		l, err := New(db, Options{Clock: fixedClock(1)})
		require.NoError(t, err)
		result, err := l.Replay(context.Background(), strings.NewReader(sampleLog))
		require.NoError(t, err)
		require.Equal(t, 10, result.Lines)
		require.Equal(t, 7, result.Applied)
		require.Equal(t, 1, result.Rejected)

		root, err := l.Root()
		require.NoError(t, err)
		roots = append(roots, root.Hex())
	}
	require.Equal(t, roots[0], roots[1])
}

func TestReplayIgnoresClockForUndatedRecords(t *testing.T) {
	undated := `{"type":"init_pool","asset":"DOT","rate":"6.5"}
{"type":"init_pool","asset":"USDT","rate":"1","listing":{"collateral_eligible":false}}
{"type":"supply","account":"bob","asset":"USDT","amount":"5000"}
{"type":"supply","account":"alice","asset":"DOT","amount":"100","collateral":true}
{"type":"borrow","account":"alice","asset":"USDT","amount":"300"}
{"type":"accrue","asset":"USDT","day":30}
{"type":"repay","account":"alice","asset":"USDT","amount":"100"}
`
	var roots []string
	for _, day := range []int64{10, 400} {
		l, _ := newTestLedger(t, Options{Clock: fixedClock(day)})
		result, err := l.Replay(context.Background(), strings.NewReader(undated))
		require.NoError(t, err)
		require.Equal(t, 7, result.Applied)

		ledgerDay, err := l.Day()
		require.NoError(t, err)
		require.Equal(t, uint64(30), ledgerDay)
		root, err := l.Root()
		require.NoError(t, err)
		roots = append(roots, root.Hex())
	}
	require.Equal(t, roots[0], roots[1])
}

func TestReplayStopsOnMalformedRecord(t *testing.T) {
	l, _ := newTestLedger(t, Options{})
	log := `{"type":"init_pool","asset":"DOT","rate":"1"}
{"type":"supply","account":"alice","asset":"DOT","amount":"1","bogus":true}
{"type":"supply","account":"alice","asset":"DOT","amount":"1"}
`
	result, err := l.Replay(context.Background(), strings.NewReader(log))
	require.ErrorIs(t, err, ErrInvalidAction)
	require.Contains(t, err.Error(), "line 2")
	require.Equal(t, 1, result.Applied)
}

func TestDecodeAction(t *testing.T) {
	action, err := DecodeAction([]byte(`{"type":"set_pool_enabled","asset":"DOT","enabled":false}`))
	require.NoError(t, err)
	require.NotNil(t, action.Enabled)
	require.False(t, *action.Enabled)
	require.NoError(t, action.Validate())

	_, err = DecodeAction([]byte(`{"type":"supply"} {"type":"borrow"}`))
	require.ErrorIs(t, err, ErrInvalidAction)
}
