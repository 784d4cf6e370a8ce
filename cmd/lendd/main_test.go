package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/core/ledger"
	"lendledger/rpc"
)

const cliLog = `{"type":"supply","account":"bob","asset":"USDT","amount":"5000","day":1}
{"type":"supply","account":"alice","asset":"DOT","amount":"100","collateral":true,"day":2}
{"type":"borrow","account":"alice","asset":"USDT","amount":"400","day":3}
{"type":"borrow","account":"carol","asset":"USDT","amount":"1","day":3}
`

func writeNodeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	body := `DataDir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"

[log]
Level = "error"

[[assets]]
Asset = "DOT"
ExchangeRate = "6"

[[assets]]
Asset = "USDT"
ExchangeRate = "1"
CollateralEligible = false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), stderr.String())
	return stdout.String()
}

func TestReplayThenInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeNodeConfig(t, dir)
	logPath := filepath.Join(dir, "actions.jsonl")
	require.NoError(t, os.WriteFile(logPath, []byte(cliLog), 0o644))

	var replayed replayOutput
	require.NoError(t, json.Unmarshal([]byte(execute(t, "replay", "--config", cfgPath, logPath)), &replayed))
	require.Equal(t, 4, replayed.Lines)
	require.Equal(t, 3, replayed.Applied)
	require.Equal(t, 1, replayed.Rejected)
	require.Equal(t, uint64(3), replayed.Day)

	var root rpc.RootResponse
	require.NoError(t, json.Unmarshal([]byte(execute(t, "root", "--config", cfgPath)), &root))
	require.Equal(t, replayed.Root, root.Root)
	require.Equal(t, uint64(3), root.Day)

	var page ledger.RankingPage
	require.NoError(t, json.Unmarshal([]byte(execute(t, "rankings", "--config", cfgPath, "--json")), &page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, "alice", page.Entries[0].Account)

	table := execute(t, "rankings", "--config", cfgPath)
	require.True(t, strings.HasPrefix(table, "ACCOUNT"))
	require.Contains(t, table, "alice")
}

func TestReplayIsDeterministicAcrossDataDirs(t *testing.T) {
	var roots []string
	for i := 0; i < 2; i++ {
		dir := t.TempDir()
		cfgPath := writeNodeConfig(t, dir)
		cmd := newRootCommand()
		var stdout bytes.Buffer
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetIn(strings.NewReader(cliLog))
		cmd.SetArgs([]string{"replay", "--config", cfgPath, "-"})
		require.NoError(t, cmd.Execute())

		var out replayOutput
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
		roots = append(roots, out.Root)
	}
	require.Equal(t, roots[0], roots[1])
}
