package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/config"
	"github.com/weisyn/provider/client/core/transport"
)

func TestModule(t *testing.T) {
	chain := newFakeChain()
	chain.mine()

	cfg := config.Default()
	cfg.Endpoint = chain.serveHTTP(t).URL

	var p *Provider
	app := fxtest.New(t,
		config.Module(cfg),
		fx.Supply(zap.NewNop()),
		Module(),
		fx.Populate(&p),
	)
	app.RequireStart()

	n, err := p.BlockNumber(testCtx(t))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, cfg.DefaultConfirmations, p.opts.DefaultConfirmations)

	app.RequireStop()
	_, err = p.BlockNumber(testCtx(t))
	assert.ErrorIs(t, err, transport.ErrBackendGone)
}

func TestModuleDialFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Endpoint = "ftp://node.example"

	app := fx.New(
		fx.NopLogger,
		config.Module(cfg),
		Module(),
		fx.Invoke(func(*Provider) {}),
	)
	assert.Error(t, app.Err())
}
