// Command quorum-node runs a participant in a weighted-voting Streamlet
// network: one chained consensus instance per block height, driven by a
// decider.Decider over an app.Host.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tolelom/quorum/app"
	"github.com/tolelom/quorum/config"
	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/crypto/certgen"
	"github.com/tolelom/quorum/decider"
	"github.com/tolelom/quorum/decisions"
	"github.com/tolelom/quorum/events"
	"github.com/tolelom/quorum/network"
	"github.com/tolelom/quorum/rpc"
	"github.com/tolelom/quorum/storage"
	"github.com/tolelom/quorum/vm"
	"github.com/tolelom/quorum/wallet"
)

// atomicCore holds the consensus.Core for the instance currently being
// decided, for RPC status endpoints to read concurrently with the
// consensus loop swapping it at each height boundary.
type atomicCore struct {
	mu   sync.RWMutex
	core *consensus.Core
}

func (a *atomicCore) Set(c *consensus.Core) {
	a.mu.Lock()
	a.core = c
	a.mu.Unlock()
}

func (a *atomicCore) Get() *consensus.Core {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.core
}

func main() {
	root := &cobra.Command{
		Use:   "quorum-node",
		Short: "Run a weighted-voting consensus node",
	}

	var cfgPath, keyPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "path to config file")
	root.PersistentFlags().StringVar(&keyPath, "key", "node.key", "path to keystore file")

	root.AddCommand(runCmd(&cfgPath, &keyPath))
	root.AddCommand(genKeyCmd(&keyPath))
	root.AddCommand(genCertsCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func genKeyCmd(keyPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a new signing key and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("QUORUM_PASSWORD")
			if password == "" {
				fmt.Fprintln(os.Stderr, "WARNING: QUORUM_PASSWORD not set — keystore will use an empty password")
			}
			w, err := wallet.Generate()
			if err != nil {
				return err
			}
			if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
				return err
			}
			fmt.Printf("Generated key. Public key: %s\n", w.PubKey())
			fmt.Printf("Saved to: %s\n", *keyPath)
			return nil
		},
	}
}

func genCertsCmd(cfgPath *string) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "gencerts",
		Short: "Generate a CA and node TLS certificate pair and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := certgen.GenerateAll(outDir, cfg.NodeID, nil); err != nil {
				return fmt.Errorf("gencerts: %w", err)
			}
			fmt.Printf("Certificates generated in %s for node %q\n", outDir, cfg.NodeID)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "certs", "output directory for generated certificates")
	return cmd
}

func runCmd(cfgPath, keyPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(*cfgPath, *keyPath)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func runNode(cfgPath, keyPath string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	log := logger.Sugar()

	password := os.Getenv("QUORUM_PASSWORD")
	if password == "" {
		log.Warn("QUORUM_PASSWORD not set, keystore will use an empty password")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	priv, err := wallet.LoadKey(keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	state := storage.NewStateDB(db)
	blockStore := storage.NewLevelBlockStore(db)

	bc := core.NewBlockchain(blockStore)
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, priv)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.Infow("genesis block committed", "hash", genesisBlock.Hash)
	}

	emitter := events.NewEmitter(log)
	idx := decisions.New(db, emitter, log)
	mempool := core.NewMempool()
	exec := vm.NewExecutor(state, emitter)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		log.Info("mTLS enabled for P2P")
	}

	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, mempool, tlsCfg, log)
	gossiper := network.NewConsensusGossiper(node, log)
	syncer := network.NewSyncer(node, bc, core.IntegrityValidator{}, exec, state, log)
	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	log.Infow("p2p listening", "addr", p2pAddr)

	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			log.Warnw("seed peer connect failed", "id", sp.ID, "addr", sp.Addr, "error", err)
			continue
		}
		if peer := node.Peer(sp.ID); peer != nil {
			if err := syncer.RequestBlocks(peer, bc.Height()+1); err != nil {
				log.Warnw("initial block sync request failed", "peer", sp.ID, "error", err)
			}
		}
		log.Infow("connected to seed peer", "id", sp.ID, "addr", sp.Addr)
	}

	parts, err := cfg.VoteWeights()
	if err != nil {
		return fmt.Errorf("vote weights: %w", err)
	}
	seedHi, seedLo, err := cfg.Seed()
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	host := app.New(bc, state, mempool, exec, gossiper, parts, seedHi, seedLo, priv, cfg.MaxBlockTxs, log)

	var activeCore atomicCore
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, activeCore.Get)
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken, log)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	log.Infow("rpc listening", "addr", rpcAddr)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	log.Infow("consensus driving", "participant", priv.Public().Hex())
	for ctx.Err() == nil {
		height := bc.Height() + 1
		host.SetInstance(height)

		d := decider.New(host, log)
		activeCore.Set(d.Core())

		body, err := d.TickToEnd(ctx)
		activeCore.Set(nil)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warnw("instance did not finalize", "height", height, "error", err)
			continue
		}
		emitter.Emit(events.Event{
			Type:        events.EventDecided,
			BlockHeight: height,
		})

		block, err := core.DecodeBlock(*body)
		if err != nil {
			log.Errorw("decode finalized block failed", "height", height, "error", err)
			continue
		}
		if err := host.Commit(block); err != nil {
			log.Errorw("commit finalized block failed", "height", height, "error", err)
			continue
		}
		emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"hash": block.Hash, "proposer": block.Header.Proposer},
		})
		node.BroadcastBlock(block)
		log.Infow("block committed", "height", block.Header.Height, "hash", block.Hash, "txs", len(block.Transactions))

		time.Sleep(50 * time.Millisecond)
	}

	log.Info("shutdown complete")
	return nil
}
