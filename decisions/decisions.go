// Package decisions maintains a secondary index over finalized blocks so
// a client can look up which blocks a given proposer produced without
// scanning the whole chain.
package decisions

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/events"
	"github.com/tolelom/quorum/storage"
)

const prefixProposerBlocks = "idx:proposer:block:"

// Index subscribes to block-commit events and updates the proposer lookup
// table.
type Index struct {
	db      storage.DB
	emitter *events.Emitter
	log     *zap.SugaredLogger
}

// New creates an Index backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, log *zap.SugaredLogger) *Index {
	idx := &Index{db: db, emitter: emitter, log: log}
	emitter.Subscribe(events.EventBlockCommit, idx.onBlockCommit)
	return idx
}

// GetBlocksByProposer returns all block hashes finalized with the given
// proposer's public key hex as Block.Proposer.
func (idx *Index) GetBlocksByProposer(proposer string) ([]string, error) {
	return idx.getList(prefixProposerBlocks + proposer)
}

func (idx *Index) onBlockCommit(ev events.Event) {
	hash, _ := ev.Data["hash"].(string)
	proposer, _ := ev.Data["proposer"].(string)
	if hash == "" || proposer == "" {
		return
	}
	if err := idx.addToList(prefixProposerBlocks+proposer, hash); err != nil {
		idx.log.Warnw("index write failed", "proposer", proposer, "block", hash, "error", err)
	}
}

func (idx *Index) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decisions unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Index) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
