package approval

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/multisigkit/intent-engine/chain"
	"github.com/multisigkit/intent-engine/internal/abis"
	"github.com/multisigkit/intent-engine/pkg/logger"
)

// TokenInfo is display metadata for a token. It is best-effort: a grant is
// valid without it.
type TokenInfo struct {
	Symbol   string
	Decimals uint8
	// NFT marks tokens that answered the ERC-721 probe (symbol but no
	// decimals).
	NFT bool
}

// MetadataSource resolves token metadata. A nil result with a nil error means
// the token is unknown, which callers must tolerate.
type MetadataSource interface {
	TokenInfo(ctx context.Context, token common.Address) (*TokenInfo, error)
}

// BalanceCache is the surrounding application's balance store, consulted
// before any on-chain lookup.
type BalanceCache interface {
	CachedTokenInfo(token common.Address) (*TokenInfo, bool)
}

// chainMetadata looks metadata up in the balance cache first, then with
// on-chain symbol()/decimals() calls, then with an ERC-721 symbol probe.
type chainMetadata struct {
	client chain.OnchainClient
	cache  BalanceCache
	lggr   logger.Logger

	mu   sync.Mutex
	seen map[common.Address]*TokenInfo
}

// NewChainMetadata returns a MetadataSource over the given client. cache may
// be nil.
func NewChainMetadata(client chain.OnchainClient, cache BalanceCache, lggr logger.Logger) MetadataSource {
	return &chainMetadata{
		client: client,
		cache:  cache,
		lggr:   lggr.Named("TokenMetadata"),
		seen:   make(map[common.Address]*TokenInfo),
	}
}

func (m *chainMetadata) TokenInfo(ctx context.Context, token common.Address) (*TokenInfo, error) {
	m.mu.Lock()
	if info, ok := m.seen[token]; ok {
		m.mu.Unlock()
		return info, nil
	}
	m.mu.Unlock()

	info := m.lookup(ctx, token)

	m.mu.Lock()
	m.seen[token] = info
	m.mu.Unlock()

	return info, nil
}

func (m *chainMetadata) lookup(ctx context.Context, token common.Address) *TokenInfo {
	if m.cache != nil {
		if info, ok := m.cache.CachedTokenInfo(token); ok {
			return info
		}
	}

	symbol, symErr := m.callString(ctx, token, "symbol")
	if symErr != nil {
		m.lggr.Debugw("Token metadata unavailable", "token", token, "error", symErr)
		return nil
	}

	decimals, decErr := m.callDecimals(ctx, token)
	if decErr != nil {
		// symbol() answered but decimals() did not: heuristically an NFT.
		return &TokenInfo{Symbol: symbol, NFT: true}
	}

	return &TokenInfo{Symbol: symbol, Decimals: decimals}
}

func (m *chainMetadata) callString(ctx context.Context, token common.Address, method string) (string, error) {
	data, err := abis.ERC20.Pack(method)
	if err != nil {
		return "", err
	}
	ret, err := m.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return "", err
	}
	unpacked, err := abis.ERC20.Unpack(method, ret)
	if err != nil {
		return "", err
	}

	return unpacked[0].(string), nil
}

func (m *chainMetadata) callDecimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := abis.ERC20.Pack("decimals")
	if err != nil {
		return 0, err
	}
	ret, err := m.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	unpacked, err := abis.ERC20.Unpack("decimals", ret)
	if err != nil {
		return 0, err
	}

	return unpacked[0].(uint8), nil
}

// AttachMetadata fills in TokenInfo for each grant from src, best-effort.
// Grants whose token stays unknown are returned unchanged.
func AttachMetadata(ctx context.Context, grants []Grant, src MetadataSource) []Grant {
	if src == nil {
		return grants
	}
	for i := range grants {
		info, err := src.TokenInfo(ctx, grants[i].Token)
		if err != nil || info == nil {
			continue
		}
		grants[i].TokenInfo = info
	}

	return grants
}
