package omni

import (
	"strconv"
	"strings"
)

// Network identifies a chain. EVM chains use their real chain id, every other
// family uses a reserved sentinel value.
type Network int64

// Sentinel networks
const (
	Hot     Network = -4
	Tron    Network = 999
	Solana  Network = 1001
	Near    Network = 1010
	Stellar Network = 1100
	Ton     Network = 1111
	Juno    Network = 4444
	Gonka   Network = 4466
)

// EVM networks
const (
	Eth       Network = 1
	Optimism  Network = 10
	Bnb       Network = 56
	Polygon   Network = 137
	XLayer    Network = 196
	Kava      Network = 2222
	Base      Network = 8453
	Arbitrum  Network = 42161
	Avalanche Network = 43114
	Linea     Network = 59144
	Scroll    Network = 534352
	Aurora    Network = 1313161554
)

// Family groups networks sharing address formats and adapters
type Family int

// Families
const (
	FamilyUnknown Family = iota
	FamilyEVM
	FamilyNear
	FamilyTon
	FamilySolana
	FamilyStellar
	FamilyCosmos
	FamilyTron
	FamilyHot
)

var sentinels = map[Network]Family{
	Hot:     FamilyHot,
	Near:    FamilyNear,
	Ton:     FamilyTon,
	Solana:  FamilySolana,
	Stellar: FamilyStellar,
	Tron:    FamilyTron,
	Juno:    FamilyCosmos,
	Gonka:   FamilyCosmos,
}

var names = map[Network]string{
	Hot:       "hot",
	Near:      "near",
	Ton:       "ton",
	Solana:    "solana",
	Stellar:   "stellar",
	Tron:      "tron",
	Juno:      "juno",
	Gonka:     "gonka",
	Eth:       "eth",
	Optimism:  "optimism",
	Bnb:       "bnb",
	Polygon:   "polygon",
	XLayer:    "xlayer",
	Kava:      "kava",
	Base:      "base",
	Arbitrum:  "arbitrum",
	Avalanche: "avalanche",
	Linea:     "linea",
	Scroll:    "scroll",
	Aurora:    "aurora",
}

// Family returns the family of the network. Any positive id that is not a sentinel is EVM.
func (n Network) Family() Family {
	if f, ok := sentinels[n]; ok {
		return f
	}
	if n > 0 {
		return FamilyEVM
	}
	return FamilyUnknown
}

// IsEVM reports whether the network is an EVM chain
func (n Network) IsEVM() bool {
	return n.Family() == FamilyEVM
}

// IsSentinel reports whether the network id is reserved for a non-EVM family
func (n Network) IsSentinel() bool {
	_, ok := sentinels[n]
	return ok
}

// String returns the short network name, or the decimal id for unnamed EVM chains
func (n Network) String() string {
	if name, ok := names[n]; ok {
		return name
	}
	return strconv.FormatInt(int64(n), 10) //nolint:gomnd
}

// ParseNetwork accepts a network name ("ton", "base") or a decimal id
func ParseNetwork(s string) (Network, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for n, name := range names {
		if name == s {
			return n, true
		}
	}
	id, err := strconv.ParseInt(s, 10, 64) //nolint:gomnd
	if err != nil {
		return 0, false
	}
	n := Network(id)
	if n.Family() == FamilyUnknown {
		return 0, false
	}
	return n, true
}

// KnownEVMNetworks returns the named EVM networks
func KnownEVMNetworks() []Network {
	var out []Network
	for n := range names {
		if n.IsEVM() {
			out = append(out, n)
		}
	}
	return out
}
