package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/token-analytics/internal/cache"
	"github.com/token-analytics/internal/config"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/observability"
	"github.com/token-analytics/internal/retry"
	"github.com/token-analytics/internal/types"
)

const ethereumSourceName = "ethereum"

var (
	// UniswapV3Factory is the mainnet Uniswap V3 factory
	UniswapV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	// WETH is the mainnet wrapped ether token that prices are quoted in
	WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	// feeTiers are tried in order when looking up a pool: 0.3%, 0.05%, 1%
	feeTiers = []int64{3000, 500, 10000}

	// q96 is 2^96, the fixed point scale of sqrtPriceX96
	q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
)

const (
	factoryABIJSON = `[{"name":"getPool","type":"function","stateMutability":"view",
		"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],
		"outputs":[{"name":"pool","type":"address"}]}]`

	poolABIJSON = `[{"name":"slot0","type":"function","stateMutability":"view","inputs":[],
		"outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}]}]`

	erc20ABIJSON = `[
		{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"Transfer","type":"event","anonymous":false,"inputs":[
			{"name":"from","type":"address","indexed":true},
			{"name":"to","type":"address","indexed":true},
			{"name":"value","type":"uint256","indexed":false}]}]`
)

var (
	factoryABI = mustParseABI(factoryABIJSON)
	poolABI    = mustParseABI(poolABIJSON)
	erc20ABI   = mustParseABI(erc20ABIJSON)

	transferTopic = erc20ABI.Events["Transfer"].ID
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// chainClient is the subset of ethclient.Client used by EthereumSource
type chainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

type dialFunc func(ctx context.Context, url string) (chainClient, error)

func dialEthclient(ctx context.Context, url string) (chainClient, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// EthereumSource reads prices, supplies, transfers and holders from an Ethereum RPC endpoint
type EthereumSource struct {
	mu       sync.RWMutex
	client   chainClient
	provider *RPCProvider
	dial     dialFunc

	limiter  *rate.Limiter
	retry    retry.Config
	lookback uint64
	now      func() time.Time

	pools *cache.Cache[common.Address]
}

// NewEthereumSource dials the primary RPC endpoint from cfg
func NewEthereumSource(ctx context.Context, cfg *config.ChainConfig) (*EthereumSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	provider, err := NewRPCProvider(cfg.RPCPrimary, cfg.RPCSecondary)
	if err != nil {
		return nil, err
	}

	client, err := dialEthclient(ctx, cfg.RPCPrimary)
	if err != nil {
		return nil, NewAdapterError(ethereumSourceName, "NewEthereumSource", err, map[string]interface{}{
			"rpcURL": redactURL(cfg.RPCPrimary),
		})
	}

	s := newEthereumSource(client, cfg.LookbackBlocks, cfg.RPCPerSecond)
	s.provider = provider
	s.dial = dialEthclient

	logging.WithFields(map[string]interface{}{
		"rpcURL":         redactURL(cfg.RPCPrimary),
		"hasSecondary":   cfg.RPCSecondary != "",
		"lookbackBlocks": s.lookback,
	}).Info("Ethereum market data source connected")

	return s, nil
}

func newEthereumSource(client chainClient, lookback uint64, rps float64) *EthereumSource {
	if lookback == 0 {
		lookback = 100
	}

	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	return &EthereumSource{
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		retry:    retryCfg,
		lookback: lookback,
		now:      time.Now,
		pools:    cache.New[common.Address](cache.WithName("uniswap-pools")),
	}
}

// Close closes the RPC connection
func (s *EthereumSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
	}
}

// Health returns the RPC provider health, or nil when no provider is configured
func (s *EthereumSource) Health() *ProviderHealth {
	if s.provider == nil {
		return nil
	}
	return s.provider.GetHealth()
}

func (s *EthereumSource) currentClient() chainClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// call runs one RPC operation under the rate limiter and retry policy,
// switching endpoints on rate limit, timeout and connection errors.
func (s *EthereumSource) call(ctx context.Context, op string, fn func(ctx context.Context, c chainClient) error) error {
	return retry.Run(ctx, s.retry, func(ctx context.Context, attempt int) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		err := fn(ctx, s.currentClient())
		elapsed := time.Since(start)
		observability.RecordUpstreamCall(op, elapsed.Seconds(), err)

		if err != nil {
			if s.provider != nil {
				s.provider.RecordFailure()
			}
			if shouldFailover(err) {
				s.failover(ctx, op, err)
			}
			return err
		}

		if s.provider != nil {
			s.provider.RecordSuccess(elapsed)
		}
		return nil
	})
}

func (s *EthereumSource) failover(ctx context.Context, op string, cause error) {
	if s.provider == nil || s.dial == nil {
		return
	}
	if err := s.provider.Failover(); err != nil {
		return
	}

	url := s.provider.CurrentURL()
	client, err := s.dial(ctx, url)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("rpcURL", redactURL(url)).Warn("RPC failover dial failed")
		return
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"operation": op,
		"rpcURL":    redactURL(url),
		"cause":     cause.Error(),
	}).Warn("Switched RPC endpoint")
}

func (s *EthereumSource) callContract(ctx context.Context, op string, parsed abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	var raw []byte
	err = s.call(ctx, op, func(ctx context.Context, c chainClient) error {
		var callErr error
		raw, callErr = c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrEmptyResult
	}

	return parsed.Unpack(method, raw)
}

func parseToken(op, token string) (common.Address, error) {
	if !common.IsHexAddress(token) {
		return common.Address{}, NewAdapterError(ethereumSourceName, op, ErrInvalidAddress, map[string]interface{}{
			"address": token,
		})
	}
	return common.HexToAddress(token), nil
}

// poolFor finds the token/WETH pool across fee tiers. Pool addresses never change once created.
func (s *EthereumSource) poolFor(ctx context.Context, token common.Address) (common.Address, error) {
	return s.pools.GetOrLoad(ctx, token.Hex(), 0, func(ctx context.Context) (common.Address, error) {
		for _, fee := range feeTiers {
			out, err := s.callContract(ctx, "getPool", factoryABI, UniswapV3Factory, "getPool", token, WETH, big.NewInt(fee))
			if err != nil {
				return common.Address{}, err
			}
			if pool, ok := out[0].(common.Address); ok && pool != (common.Address{}) {
				return pool, nil
			}
		}
		return common.Address{}, ErrPoolNotFound
	})
}

// GetPrice returns the Uniswap V3 token/WETH price: (sqrtPriceX96 / 2^96)^2
func (s *EthereumSource) GetPrice(ctx context.Context, token string) (float64, error) {
	addr, err := parseToken("GetPrice", token)
	if err != nil {
		return 0, err
	}

	pool, err := s.poolFor(ctx, addr)
	if err != nil {
		return 0, NewAdapterError(ethereumSourceName, "GetPrice", err, map[string]interface{}{"token": token})
	}

	out, err := s.callContract(ctx, "slot0", poolABI, pool, "slot0")
	if err != nil {
		return 0, NewAdapterError(ethereumSourceName, "GetPrice", err, map[string]interface{}{
			"token": token,
			"pool":  pool.Hex(),
		})
	}

	sqrtPrice, ok := out[0].(*big.Int)
	if !ok {
		return 0, NewAdapterError(ethereumSourceName, "GetPrice", ErrEmptyResult, nil)
	}
	return priceFromSqrtX96(sqrtPrice), nil
}

func priceFromSqrtX96(sqrtPriceX96 *big.Int) float64 {
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	price, _ := new(big.Float).Mul(ratio, ratio).Float64()
	return price
}

// GetSupply returns totalSupply scaled by decimals. A negative decimals reads decimals() from the contract.
func (s *EthereumSource) GetSupply(ctx context.Context, token string, decimals int) (float64, error) {
	addr, err := parseToken("GetSupply", token)
	if err != nil {
		return 0, err
	}

	if decimals < 0 {
		out, err := s.callContract(ctx, "decimals", erc20ABI, addr, "decimals")
		if err != nil {
			return 0, NewAdapterError(ethereumSourceName, "GetSupply", err, map[string]interface{}{"token": token})
		}
		d, _ := out[0].(uint8)
		decimals = int(d)
	}

	out, err := s.callContract(ctx, "totalSupply", erc20ABI, addr, "totalSupply")
	if err != nil {
		return 0, NewAdapterError(ethereumSourceName, "GetSupply", err, map[string]interface{}{"token": token})
	}

	supply, ok := out[0].(*big.Int)
	if !ok {
		return 0, NewAdapterError(ethereumSourceName, "GetSupply", ErrEmptyResult, nil)
	}
	return FormatUnits(supply, decimals), nil
}

// transfer is a decoded ERC20 Transfer log with an estimated block time
type transfer struct {
	log       ethtypes.Log
	from      common.Address
	to        common.Address
	value     *big.Int
	timestamp int64 // Unix milliseconds
}

// transferScan is the result of reading Transfer logs over the lookback range
type transferScan struct {
	transfers []transfer
	spanMs    int64 // Time covered by the scanned blocks
}

// scanTransfers reads Transfer logs over the last lookback blocks. Block times are
// interpolated between the first and last header of the range.
func (s *EthereumSource) scanTransfers(ctx context.Context, op string, token common.Address) (*transferScan, error) {
	var head uint64
	if err := s.call(ctx, "blockNumber", func(ctx context.Context, c chainClient) error {
		var err error
		head, err = c.BlockNumber(ctx)
		return err
	}); err != nil {
		return nil, NewAdapterError(ethereumSourceName, op, err, nil)
	}

	from := uint64(0)
	if head > s.lookback {
		from = head - s.lookback
	}

	fromTime, err := s.blockTime(ctx, from)
	if err != nil {
		return nil, NewAdapterError(ethereumSourceName, op, err, map[string]interface{}{"block": from})
	}
	headTime, err := s.blockTime(ctx, head)
	if err != nil {
		return nil, NewAdapterError(ethereumSourceName, op, err, map[string]interface{}{"block": head})
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{token},
		Topics:    [][]common.Hash{{transferTopic}},
	}

	var logs []ethtypes.Log
	if err := s.call(ctx, "filterLogs", func(ctx context.Context, c chainClient) error {
		var err error
		logs, err = c.FilterLogs(ctx, query)
		return err
	}); err != nil {
		return nil, NewAdapterError(ethereumSourceName, op, err, map[string]interface{}{
			"token":     token.Hex(),
			"fromBlock": from,
			"toBlock":   head,
		})
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	scan := &transferScan{spanMs: headTime - fromTime}
	for _, l := range logs {
		// ERC721 Transfer carries the token id as a third indexed topic
		if l.Removed || len(l.Topics) != 3 {
			continue
		}
		scan.transfers = append(scan.transfers, transfer{
			log:       l,
			from:      common.BytesToAddress(l.Topics[1].Bytes()),
			to:        common.BytesToAddress(l.Topics[2].Bytes()),
			value:     new(big.Int).SetBytes(l.Data),
			timestamp: interpolate(l.BlockNumber, from, head, fromTime, headTime),
		})
	}

	return scan, nil
}

func (s *EthereumSource) blockTime(ctx context.Context, number uint64) (int64, error) {
	var header *ethtypes.Header
	err := s.call(ctx, "headerByNumber", func(ctx context.Context, c chainClient) error {
		var err error
		header, err = c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return 0, err
	}
	return int64(header.Time) * 1000, nil // #nosec G115 - block timestamps fit in int64
}

func interpolate(block, from, head uint64, fromTime, headTime int64) int64 {
	if head <= from {
		return headTime
	}
	frac := float64(block-from) / float64(head-from)
	return fromTime + int64(frac*float64(headTime-fromTime))
}

// GetRecentTrades converts the latest Transfer logs into trades. Mints are buys, every
// other transfer is a sell by its sender. Holding time is the time since the sender
// last received tokens in the scanned range, or the full range span when unknown.
func (s *EthereumSource) GetRecentTrades(ctx context.Context, token string, window time.Duration) ([]types.Trade, error) {
	addr, err := parseToken("GetRecentTrades", token)
	if err != nil {
		return nil, err
	}

	scan, err := s.scanTransfers(ctx, "GetRecentTrades", addr)
	if err != nil {
		return nil, err
	}

	price, err := s.GetPrice(ctx, token)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("token", token).Debug("Using default price for trades")
		price = DefaultPrice
	}

	cutoff := s.now().Add(-window).UnixMilli()
	lastReceived := make(map[common.Address]int64)
	trades := make([]types.Trade, 0, min(len(scan.transfers), MaxTrades))

	for _, t := range scan.transfers {
		holding := scan.spanMs
		if received, ok := lastReceived[t.from]; ok {
			holding = t.timestamp - received
		}
		lastReceived[t.to] = t.timestamp

		if window > 0 && t.timestamp < cutoff {
			continue
		}

		tradeType := types.TradeSell
		if t.from == (common.Address{}) {
			tradeType = types.TradeBuy
		}

		trades = append(trades, types.Trade{
			ID:           t.log.TxHash.Hex() + ":" + strconv.FormatUint(uint64(t.log.Index), 10),
			TokenAddress: token,
			Type:         tradeType,
			Price:        price,
			Volume:       FormatUnits(t.value, 18),
			Timestamp:    t.timestamp,
			HoldingTime:  holding,
		})
	}

	if len(trades) > MaxTrades {
		trades = trades[len(trades)-MaxTrades:]
	}
	return trades, nil
}

// GetHolders ranks addresses by their net Transfer balance over the scanned range
func (s *EthereumSource) GetHolders(ctx context.Context, token string) ([]types.Holder, error) {
	addr, err := parseToken("GetHolders", token)
	if err != nil {
		return nil, err
	}

	scan, err := s.scanTransfers(ctx, "GetHolders", addr)
	if err != nil {
		return nil, err
	}

	balances := make(map[common.Address]float64)
	for _, t := range scan.transfers {
		value := FormatUnits(t.value, 18)
		if t.from != (common.Address{}) {
			balances[t.from] -= value
		}
		if t.to != (common.Address{}) {
			balances[t.to] += value
		}
	}

	return rankHolders(balances), nil
}

func rankHolders(balances map[common.Address]float64) []types.Holder {
	holders := make([]types.Holder, 0, len(balances))
	for address, balance := range balances {
		if balance > 0 {
			holders = append(holders, types.Holder{Address: address.Hex(), Balance: balance})
		}
	}

	sort.Slice(holders, func(i, j int) bool {
		if holders[i].Balance != holders[j].Balance {
			return holders[i].Balance > holders[j].Balance
		}
		return holders[i].Address < holders[j].Address
	})

	if len(holders) > MaxHolders {
		holders = holders[:MaxHolders]
	}
	return holders
}
