package engine

import (
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// Version identifies the AMM flavour a route or transaction targets.
type Version string

const (
	V2 Version = "v2"
	V3 Version = "v3"
)

// Direction says which side of a trade the caller fixed.
type Direction string

const (
	// Input means the amount is exact-in and the quote is the expected output.
	Input Direction = "input"
	// Output means the amount is exact-out and the quote is the expected input.
	Output Direction = "output"
)

// TradePath classifies a pair by whether either side is the native currency.
type TradePath string

const (
	EthToErc20   TradePath = "ethToErc20"
	Erc20ToEth   TradePath = "erc20ToEth"
	Erc20ToErc20 TradePath = "erc20ToErc20"
)

// NativeAddress is the pseudo-address that stands for the chain's native currency.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

type Token struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
}

func (t Token) IsNative() bool {
	return t.Address == NativeAddress
}

// Transaction is an unsigned call envelope. Value is zero unless the native
// currency is spent.
type Transaction struct {
	To    common.Address `json:"to"`
	From  common.Address `json:"from"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

func (tx Transaction) Clone() Transaction {
	out := tx
	out.Data = slices.Clone(tx.Data)
	if tx.Value != nil {
		v := new(big.Int).Set(tx.Value.ToInt())
		out.Value = (*hexutil.Big)(v)
	}
	return out
}

// Route is an ordered token path through one version's pools. Path holds the
// on-chain addresses, with the native currency replaced by its wrapped token.
type Route struct {
	Version              Version          `json:"version"`
	Tokens               []Token          `json:"tokens"`
	Path                 []common.Address `json:"path"`
	FeeTier              uint32           `json:"feeTier,omitempty"`
	LiquidityProviderFee decimal.Decimal  `json:"liquidityProviderFee"`
}

// Label renders the route as "A > B > C".
func (r Route) Label() string {
	symbols := make([]string, len(r.Tokens))
	for i, t := range r.Tokens {
		symbols[i] = t.Symbol
	}
	return strings.Join(symbols, " > ")
}

func (r Route) Hops() int {
	return len(r.Tokens)
}

func (r Route) Clone() Route {
	out := r
	out.Tokens = slices.Clone(r.Tokens)
	out.Path = slices.Clone(r.Path)
	return out
}

// RouteQuote is a priced candidate route with its ready-to-sign transaction.
type RouteQuote struct {
	Route               Route            `json:"route"`
	Direction           Direction        `json:"direction"`
	ExpectedQuote       decimal.Decimal  `json:"expectedQuote"`
	SlippageBound       decimal.Decimal  `json:"slippageBound"`
	Transaction         Transaction      `json:"transaction"`
	Expires             int64            `json:"expires"`
	Label               string           `json:"label"`
	GasPriceEstimatedBy *decimal.Decimal `json:"gasPriceEstimatedBy,omitempty"`
}

func (q RouteQuote) Clone() RouteQuote {
	out := q
	out.Route = q.Route.Clone()
	out.Transaction = q.Transaction.Clone()
	if q.GasPriceEstimatedBy != nil {
		g := *q.GasPriceEstimatedBy
		out.GasPriceEstimatedBy = &g
	}
	return out
}

// TokenBalance reports a wallet balance against a requirement.
type TokenBalance struct {
	HasEnough bool            `json:"hasEnough"`
	Balance   decimal.Decimal `json:"balance"`
}

// TradeContext is the full answer to a swap request.
type TradeContext struct {
	Version             Version          `json:"version"`
	Direction           Direction        `json:"direction"`
	BaseRequest         decimal.Decimal  `json:"baseRequest"`
	ExpectedQuote       decimal.Decimal  `json:"expectedQuote"`
	MinimumOut          *decimal.Decimal `json:"minimumOut,omitempty"`
	MaximumIn           *decimal.Decimal `json:"maximumIn,omitempty"`
	LiquidityFee        decimal.Decimal  `json:"liquidityFee"`
	LiquidityFeePercent decimal.Decimal  `json:"liquidityFeePercent"`
	Expires             int64            `json:"expires"`
	RouteLabel          string           `json:"routeLabel"`
	RoutePath           []common.Address `json:"routePath"`
	RouteTokens         []Token          `json:"routeTokens"`
	HasEnoughAllowance  bool             `json:"hasEnoughAllowance"`
	ApprovalTransaction *Transaction     `json:"approvalTransaction,omitempty"`
	FromToken           Token            `json:"fromToken"`
	ToToken             Token            `json:"toToken"`
	FromBalance         TokenBalance     `json:"fromBalance"`
	ToBalance           decimal.Decimal  `json:"toBalance"`
	Transaction         Transaction      `json:"transaction"`
	GasPriceEstimatedBy *decimal.Decimal `json:"gasPriceEstimatedBy,omitempty"`
	AllTriedRoutes      []RouteQuote     `json:"allTriedRoutes"`
}

func (c TradeContext) Clone() TradeContext {
	out := c
	out.MinimumOut = cloneDecimal(c.MinimumOut)
	out.MaximumIn = cloneDecimal(c.MaximumIn)
	out.GasPriceEstimatedBy = cloneDecimal(c.GasPriceEstimatedBy)
	out.RoutePath = slices.Clone(c.RoutePath)
	out.RouteTokens = slices.Clone(c.RouteTokens)
	out.Transaction = c.Transaction.Clone()
	if c.ApprovalTransaction != nil {
		tx := c.ApprovalTransaction.Clone()
		out.ApprovalTransaction = &tx
	}
	if c.AllTriedRoutes != nil {
		out.AllTriedRoutes = make([]RouteQuote, len(c.AllTriedRoutes))
		for i, q := range c.AllTriedRoutes {
			out.AllTriedRoutes[i] = q.Clone()
		}
	}
	return out
}

// LiquidityTradeContext is the answer to an add- or remove-liquidity request.
// Token A and B keep the caller's order regardless of the pair's token0/token1.
type LiquidityTradeContext struct {
	Version           Version         `json:"version"`
	Direction         Direction       `json:"direction"`
	IsFirstSupplier   bool            `json:"isFirstSupplier"`
	BaseRequest       decimal.Decimal `json:"baseRequest"`
	ExpectedQuote     decimal.Decimal `json:"expectedQuote"`
	MinTokenA         decimal.Decimal `json:"minTokenA"`
	MinTokenB         decimal.Decimal `json:"minTokenB"`
	ExpectedTokenA    decimal.Decimal `json:"expectedTokenA"`
	ExpectedTokenB    decimal.Decimal `json:"expectedTokenB"`
	TokenA            Token           `json:"tokenA"`
	TokenB            Token           `json:"tokenB"`
	TokenABalance     TokenBalance    `json:"tokenABalance"`
	TokenBBalance     TokenBalance    `json:"tokenBBalance"`
	TokenAAllowance   bool            `json:"tokenAHasEnoughAllowance"`
	TokenBAllowance   bool            `json:"tokenBHasEnoughAllowance"`
	TokenAApproval    *Transaction    `json:"tokenAApprovalTransaction,omitempty"`
	TokenBApproval    *Transaction    `json:"tokenBApprovalTransaction,omitempty"`
	LPToken           *Token          `json:"lpToken,omitempty"`
	LPTokensToReceive decimal.Decimal `json:"lpTokensToReceive"`
	LPBalance         decimal.Decimal `json:"lpBalance"`
	LPAllowance       bool            `json:"lpHasEnoughAllowance"`
	LPApproval        *Transaction    `json:"lpApprovalTransaction,omitempty"`
	PoolShare         decimal.Decimal `json:"poolShare"`
	Transaction       Transaction     `json:"transaction"`
	Expires           int64           `json:"expires"`
}

func (c LiquidityTradeContext) Clone() LiquidityTradeContext {
	out := c
	out.Transaction = c.Transaction.Clone()
	out.TokenAApproval = cloneTx(c.TokenAApproval)
	out.TokenBApproval = cloneTx(c.TokenBApproval)
	out.LPApproval = cloneTx(c.LPApproval)
	if c.LPToken != nil {
		t := *c.LPToken
		out.LPToken = &t
	}
	return out
}

// AddLiquidityInfo describes a pair before any amount has been chosen.
type AddLiquidityInfo struct {
	PairAddress          common.Address  `json:"pairAddress"`
	LPToken              *Token          `json:"lpToken,omitempty"`
	LPBalance            decimal.Decimal `json:"lpBalance"`
	TokenAPerLP          decimal.Decimal `json:"tokenAPerLpToken"`
	TokenBPerLP          decimal.Decimal `json:"tokenBPerLpToken"`
	EstimatedTokenAOwned decimal.Decimal `json:"estimatedTokenAOwned"`
	EstimatedTokenBOwned decimal.Decimal `json:"estimatedTokenBOwned"`
	TokenAAllowance      decimal.Decimal `json:"tokenAAllowance"`
	TokenBAllowance      decimal.Decimal `json:"tokenBAllowance"`
	IsFirstSupplier      bool            `json:"isFirstSupplier"`
	SelfPoolLP           decimal.Decimal `json:"selfPoolLp"`
	TotalPoolLP          decimal.Decimal `json:"totalPoolLp"`
	PoolShare            decimal.Decimal `json:"poolShare"`
}

func (i AddLiquidityInfo) Clone() AddLiquidityInfo {
	out := i
	if i.LPToken != nil {
		t := *i.LPToken
		out.LPToken = &t
	}
	return out
}

// RemoveLiquidityInfo describes an existing position. InvalidPair is set,
// rather than an error returned, when the pair does not exist.
type RemoveLiquidityInfo struct {
	InvalidPair          bool            `json:"invalidPair"`
	PairAddress          common.Address  `json:"pairAddress"`
	LPToken              *Token          `json:"lpToken,omitempty"`
	LPBalance            decimal.Decimal `json:"lpBalance"`
	TokenAPerLP          decimal.Decimal `json:"tokenAPerLpToken"`
	TokenBPerLP          decimal.Decimal `json:"tokenBPerLpToken"`
	EstimatedTokenAOwned decimal.Decimal `json:"estimatedTokenAOwned"`
	EstimatedTokenBOwned decimal.Decimal `json:"estimatedTokenBOwned"`
	PoolShare            decimal.Decimal `json:"poolShare"`
	LPAllowance          decimal.Decimal `json:"lpAllowance"`
}

func (i RemoveLiquidityInfo) Clone() RemoveLiquidityInfo {
	out := i
	if i.LPToken != nil {
		t := *i.LPToken
		out.LPToken = &t
	}
	return out
}

// PairLiquidity is a wallet's position in one v2 pair.
type PairLiquidity struct {
	PairAddress          common.Address  `json:"pairAddress"`
	Token0               Token           `json:"token0"`
	Token1               Token           `json:"token1"`
	Reserve0             *big.Int        `json:"reserve0"`
	Reserve1             *big.Int        `json:"reserve1"`
	BlockTimestampLast   uint32          `json:"blockTimestampLast"`
	TotalSupply          decimal.Decimal `json:"totalSupply"`
	LPBalance            decimal.Decimal `json:"lpBalance"`
	EstimatedToken0Owned decimal.Decimal `json:"estimatedToken0Owned"`
	EstimatedToken1Owned decimal.Decimal `json:"estimatedToken1Owned"`
	PoolShare            decimal.Decimal `json:"poolShare"`
}

func (p PairLiquidity) Clone() PairLiquidity {
	out := p
	if p.Reserve0 != nil {
		out.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		out.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	return out
}

// BlockSummary contains only the essential block information for watchers.
type BlockSummary struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"` // Unix nanoseconds when the head was received.
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func cloneTx(tx *Transaction) *Transaction {
	if tx == nil {
		return nil
	}
	c := tx.Clone()
	return &c
}
