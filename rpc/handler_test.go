package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/decisions"
	"github.com/tolelom/quorum/events"
	"github.com/tolelom/quorum/internal/testutil"
	"github.com/tolelom/quorum/rpc"
	"github.com/tolelom/quorum/storage"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, coreFn func() *consensus.Core) *rpc.Handler {
	t.Helper()
	db := testutil.NewMemDB()
	state := storage.NewStateDB(db)
	blockStore := testutil.NewMemBlockStore()
	bc := core.NewBlockchain(blockStore)
	require.NoError(t, bc.Init())
	mp := core.NewMempool()
	emitter := events.NewEmitter(zap.NewNop().Sugar())
	idx := decisions.New(db, emitter, zap.NewNop().Sugar())
	if coreFn == nil {
		coreFn = func() *consensus.Core { return nil }
	}
	return rpc.NewHandler(bc, mp, state, idx, coreFn)
}

func dispatch(handler *rpc.Handler, method string, params any) rpc.Response {
	raw, _ := json.Marshal(params)
	return handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
}

func TestHandlerGetBlockHeight(t *testing.T) {
	handler := newTestHandler(t, nil)
	resp := dispatch(handler, "getBlockHeight", struct{}{})
	require.Nil(t, resp.Error)
	require.EqualValues(t, 0, resp.Result)
}

func TestHandlerGetBalanceUnknownAccount(t *testing.T) {
	handler := newTestHandler(t, nil)
	resp := dispatch(handler, "getBalance", map[string]string{"address": "nonexistent"})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 0, result["balance"])
}

func TestHandlerGetMempoolSizeEmpty(t *testing.T) {
	handler := newTestHandler(t, nil)
	resp := dispatch(handler, "getMempoolSize", struct{}{})
	require.Nil(t, resp.Error)
	require.EqualValues(t, 0, resp.Result)
}

func TestHandlerMethodNotFound(t *testing.T) {
	handler := newTestHandler(t, nil)
	resp := dispatch(handler, "nonExistentMethod", struct{}{})
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}

func TestHandlerConsensusEndpointsWithoutActiveInstance(t *testing.T) {
	handler := newTestHandler(t, nil)

	resp := dispatch(handler, "getLNCTips", struct{}{})
	require.Nil(t, resp.Error)
	require.Empty(t, resp.Result)

	resp = dispatch(handler, "getFinalized", struct{}{})
	require.Nil(t, resp.Error)
	require.Nil(t, resp.Result)

	resp = dispatch(handler, "getGraphviz", struct{}{})
	require.Nil(t, resp.Error)
	require.Equal(t, "", resp.Result)
}

func TestHandlerGetBlocksByProposerEmpty(t *testing.T) {
	handler := newTestHandler(t, nil)
	resp := dispatch(handler, "getBlocksByProposer", map[string]string{"proposer": "nobody"})
	require.Nil(t, resp.Error)
	require.Empty(t, resp.Result)
}
