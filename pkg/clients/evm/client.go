package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/openbridge/gmp-relayer/config"
	"github.com/openbridge/gmp-relayer/pkg/contracts/gateway"
	"github.com/openbridge/gmp-relayer/pkg/types"
)

const rtyAttNum = uint(3)

var (
	rtyAtt = retry.Attempts(rtyAttNum)
	rtyDel = retry.Delay(time.Millisecond * 400)
	rtyErr = retry.LastErrorOnly(true)
)

// EvmClient binds one configured chain: RPC connection, gateway contract
// and the transactor derived from the relayer signer.
type EvmClient struct {
	ChainConfig    *config.ChainConfig
	client         *ethclient.Client
	gateway        *bind.BoundContract
	gatewayAddress common.Address
	signer         *Signer
	auth           *bind.TransactOpts
}

// NewEvmClients connects a client per configured chain. A chain that cannot
// be reached at startup is skipped with a warning, matching the monitors'
// tolerance of transient RPC failure.
func NewEvmClients(ctx context.Context, cfg *config.Config, signer *Signer) ([]*EvmClient, error) {
	clients := make([]*EvmClient, 0, len(cfg.Chains))
	for i := range cfg.Chains {
		client, err := NewEvmClient(ctx, &cfg.Chains[i], signer)
		if err != nil {
			log.Warn().Err(err).Str("chain", cfg.Chains[i].Name).
				Msg("[EvmClient] [NewEvmClients] failed to create client, skipping chain")
			continue
		}
		clients = append(clients, client)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no chain could be connected")
	}
	return clients, nil
}

func NewEvmClient(ctx context.Context, chainCfg *config.ChainConfig, signer *Signer) (*EvmClient, error) {
	rpcClient, err := rpc.DialContext(ctx, chainCfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %s: %w", chainCfg.Name, err)
	}
	client := ethclient.NewClient(rpcClient)

	if chainCfg.Gateway == "" {
		return nil, fmt.Errorf("gateway address is not set for chain %s", chainCfg.Name)
	}
	gatewayAddress := common.HexToAddress(chainCfg.Gateway)
	bound := bind.NewBoundContract(gatewayAddress, gateway.ABI(), client, client, client)

	chainID := new(big.Int).SetUint64(chainCfg.ChainID)
	if chainCfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query chain id for %s: %w", chainCfg.Name, err)
		}
	}
	auth, err := bind.NewKeyedTransactorWithChainID(signer.privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor for chain %s: %w", chainCfg.Name, err)
	}
	auth.GasLimit = chainCfg.GasLimit
	if chainCfg.GasPrice > 0 {
		auth.GasPrice = big.NewInt(chainCfg.GasPrice)
	}

	return &EvmClient{
		ChainConfig:    chainCfg,
		client:         client,
		gateway:        bound,
		gatewayAddress: gatewayAddress,
		signer:         signer,
		auth:           auth,
	}, nil
}

func (c *EvmClient) Name() string {
	return c.ChainConfig.Name
}

// BlockNumber returns the current chain head.
func (c *EvmClient) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := retry.Do(func() error {
		var err error
		head, err = c.client.BlockNumber(ctx)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to read head of chain %s: %w", c.Name(), err)
	}
	return head, nil
}

// FilterGatewayEvents scans gateway logs in [from, to] and parses them into
// RelayEvents. Logs that fail to parse are logged and skipped.
func (c *EvmClient) FilterGatewayEvents(ctx context.Context, from, to uint64) ([]*types.RelayEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.gatewayAddress},
		Topics:    [][]common.Hash{gateway.EventTopics()},
	}
	var logs []ethtypes.Log
	err := retry.Do(func() error {
		var err error
		logs, err = c.client.FilterLogs(ctx, query)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gateway logs on %s: %w", c.Name(), err)
	}
	events := make([]*types.RelayEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := gateway.ParseLog(c.Name(), lg)
		if err != nil {
			log.Error().Err(err).
				Str("chain", c.Name()).
				Str("txHash", lg.TxHash.Hex()).
				Uint("logIndex", lg.Index).
				Msg("[EvmClient] [FilterGatewayEvents] failed to parse gateway log")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// IsCommandExecuted queries the destination gateway's replay registry.
func (c *EvmClient) IsCommandExecuted(ctx context.Context, commandID string) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{From: c.signer.Address(), Context: ctx}
	err := c.gateway.Call(opts, &out, "isCommandExecuted", common.HexToHash(commandID))
	if err != nil {
		return false, fmt.Errorf("isCommandExecuted call failed on %s: %w", c.Name(), err)
	}
	executed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isCommandExecuted result on %s", c.Name())
	}
	return executed, nil
}

// IsWhitelistedRelayer reports whether the signer may call execute.
func (c *EvmClient) IsWhitelistedRelayer(ctx context.Context) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{From: c.signer.Address(), Context: ctx}
	err := c.gateway.Call(opts, &out, "isWhitelistedRelayer", c.signer.Address())
	if err != nil {
		return false, fmt.Errorf("isWhitelistedRelayer call failed on %s: %w", c.Name(), err)
	}
	whitelisted, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isWhitelistedRelayer result on %s", c.Name())
	}
	return whitelisted, nil
}

// RelayerBalance returns the signer's native balance on this chain.
func (c *EvmClient) RelayerBalance(ctx context.Context) (*big.Int, error) {
	return c.client.BalanceAt(ctx, c.signer.Address(), nil)
}

// ExecuteCommands signs the command batch and submits the execute
// transaction, waiting for inclusion. A reverted receipt is an error.
func (c *EvmClient) ExecuteCommands(ctx context.Context, commandID string, cmds []types.Command) (string, error) {
	hash, err := gateway.HashCommands(commandID, cmds)
	if err != nil {
		return "", err
	}
	signature, err := c.signer.SignHash(hash)
	if err != nil {
		return "", fmt.Errorf("failed to sign command %s: %w", commandID, err)
	}

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.gateway.Transact(&opts, "execute",
		common.HexToHash(commandID), gateway.ToBoundCommands(cmds), signature)
	if err != nil {
		return "", fmt.Errorf("failed to submit execute on %s: %w", c.Name(), err)
	}
	log.Info().
		Str("chain", c.Name()).
		Str("commandId", commandID).
		Str("txHash", tx.Hash().Hex()).
		Msg("[EvmClient] [ExecuteCommands] submitted execute transaction")

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return "", fmt.Errorf("failed waiting for execute receipt on %s: %w", c.Name(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return "", fmt.Errorf("execute transaction %s reverted on %s", tx.Hash().Hex(), c.Name())
	}
	return tx.Hash().Hex(), nil
}
