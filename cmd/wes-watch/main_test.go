package main

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/provider/client/pkg/types"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	params, err = parseParams([]string{`["latest", false]`})
	require.NoError(t, err)
	assert.JSONEq(t, `["latest", false]`, string(params.(json.RawMessage)))

	_, err = parseParams([]string{`[latest`})
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WES_ENDPOINT", "http://node.example:8545")
	globalFlags = GlobalFlags{}
	t.Cleanup(func() { globalFlags = GlobalFlags{} })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://node.example:8545", cfg.Endpoint)
	assert.Equal(t, "stderr", cfg.Log.FilePath)

	globalFlags.Endpoint = "ws://127.0.0.1:8546"
	globalFlags.LogLevel = "debug"
	globalFlags.MetricsAddr = ":9100"
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8546", cfg.Endpoint)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9100", cfg.MetricsAddr)

	globalFlags.Endpoint = "ipc:///tmp/node.ipc"
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	n := hexutil.Uint64(7)
	b := &types.Block{
		Header:       types.Header{Number: &n, Hash: common.HexToHash("0x07")},
		Transactions: types.HashesOnly(common.HexToHash("0x01"), common.HexToHash("0x02")),
	}
	s := summarize(b)
	assert.EqualValues(t, 7, s.Height)
	assert.Equal(t, 2, s.Transactions)
	assert.Contains(t, s.String(), "#7")
}
