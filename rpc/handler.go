package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/decisions"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	idx     *decisions.Index
	core    func() *consensus.Core // returns the in-flight instance's Core, or nil between instances
}

// NewHandler creates an RPC Handler. coreFn may return nil when no
// consensus instance is currently in flight (e.g. between blocks).
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *decisions.Index, coreFn func() *consensus.Core) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, idx: idx, core: coreFn}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getBlocksByProposer":
		return h.getBlocksByProposer(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	case "getLNCTips":
		return h.getLNCTips(req)

	case "getFinalized":
		return h.getFinalized(req)

	case "getGraphviz":
		return h.getGraphviz(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getBlocksByProposer(req Request) Response {
	var params struct {
		Proposer string `json:"proposer"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Proposer == "" {
		return errResponse(req.ID, CodeInvalidParams, "proposer is required")
	}
	hashes, err := h.idx.GetBlocksByProposer(params.Proposer)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, hashes)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

func (h *Handler) getLNCTips(req Request) Response {
	c := h.core()
	if c == nil {
		return okResponse(req.ID, []string{})
	}
	tips := c.GetLNCTips()
	hexTips := make([]string, len(tips))
	for i, t := range tips {
		hexTips[i] = t.String()
	}
	return okResponse(req.ID, hexTips)
}

func (h *Handler) getFinalized(req Request) Response {
	c := h.core()
	if c == nil {
		return okResponse(req.ID, nil)
	}
	prop, ok := c.GetFinalized()
	if !ok {
		return okResponse(req.ID, nil)
	}
	return okResponse(req.ID, map[string]any{
		"tick": prop.Tick,
		"hash": prop.CHash().String(),
	})
}

func (h *Handler) getGraphviz(req Request) Response {
	c := h.core()
	if c == nil {
		return okResponse(req.ID, "")
	}
	return okResponse(req.ID, c.DebugGraphviz())
}
