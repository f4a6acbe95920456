package contracts

import (
	"github.com/defistate/defistate-router-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// Canonical Uniswap deployments. They share an address on every supported network.
var (
	DefaultV2Router  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	DefaultV2Factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	DefaultV3Router  = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	DefaultV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	DefaultV3Quoter  = common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
)

// Addresses is the resolved contract set for one engine.
type Addresses struct {
	V2Router  common.Address
	V2Factory common.Address
	V3Router  common.Address
	V3Factory common.Address
	V3Quoter  common.Address
}

// Resolve returns the canonical addresses with any clone overrides applied.
func Resolve(clone *engine.CloneContracts) Addresses {
	addrs := Addresses{
		V2Router:  DefaultV2Router,
		V2Factory: DefaultV2Factory,
		V3Router:  DefaultV3Router,
		V3Factory: DefaultV3Factory,
		V3Quoter:  DefaultV3Quoter,
	}
	if clone == nil {
		return addrs
	}
	if clone.V2 != nil {
		addrs.V2Router = clone.V2.Router
		addrs.V2Factory = clone.V2.Factory
	}
	if clone.V3 != nil {
		addrs.V3Router = clone.V3.Router
		addrs.V3Factory = clone.V3.Factory
		addrs.V3Quoter = clone.V3.Quoter
	}
	return addrs
}

// Router returns the swap router for a version.
func (a Addresses) Router(v engine.Version) common.Address {
	if v == engine.V3 {
		return a.V3Router
	}
	return a.V2Router
}
