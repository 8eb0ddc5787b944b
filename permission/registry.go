package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/multisigkit/intent-engine/pkg/logger"
)

// RoleFetcher fetches the roles deployed on a delegation module. Role data is
// read-only cached state; this system never writes it back.
type RoleFetcher interface {
	Roles(ctx context.Context, chainID uint64, modifier common.Address) ([]*Role, error)
}

// Registry is an HTTP client for the rule registry service, with an in-memory
// cache keyed by (chainID, modifier).
type Registry struct {
	baseURL string
	client  *http.Client
	lggr    logger.Logger

	mu    sync.Mutex
	cache map[registryKey][]*Role
}

type registryKey struct {
	chainID  uint64
	modifier common.Address
}

// NewRegistry returns a Registry for the service at baseURL. client may be
// nil, in which case a client with a sane timeout is used.
func NewRegistry(baseURL string, client *http.Client, lggr logger.Logger) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Registry{
		baseURL: baseURL,
		client:  client,
		lggr:    lggr.Named("RoleRegistry"),
		cache:   make(map[registryKey][]*Role),
	}
}

// roleRecord is the registry's wire representation of a role.
type roleRecord struct {
	Key     string         `json:"key"`
	Members []string       `json:"members"`
	Targets []targetRecord `json:"targets"`
	// Multisend lists the batch-dispatch contracts unwrapped for the role.
	Multisend []string `json:"multisend"`
	Version   string   `json:"version"`
}

type targetRecord struct {
	Address          string           `json:"address"`
	Clearance        string           `json:"clearance"`
	ExecutionOptions string           `json:"executionOptions"`
	Functions        []functionRecord `json:"functions"`
}

type functionRecord struct {
	Selector         string `json:"selector"`
	ExecutionOptions string `json:"executionOptions"`
	Wildcarded       bool   `json:"wildcarded"`
}

// Roles returns the roles of the modifier, serving from cache when possible.
func (r *Registry) Roles(ctx context.Context, chainID uint64, modifier common.Address) ([]*Role, error) {
	key := registryKey{chainID: chainID, modifier: modifier}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	records, err := r.fetch(ctx, chainID, modifier)
	if err != nil {
		return nil, err
	}

	roles := make([]*Role, 0, len(records))
	for i, rec := range records {
		role, err := parseRole(modifier, rec)
		if err != nil {
			return nil, fmt.Errorf("registry: invalid role record %d: %w", i, err)
		}
		roles = append(roles, role)
	}

	r.mu.Lock()
	r.cache[key] = roles
	r.mu.Unlock()

	return roles, nil
}

func (r *Registry) fetch(ctx context.Context, chainID uint64, modifier common.Address) ([]roleRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/chains/%d/modules/%s/roles",
		r.baseURL, chainID, url.PathEscape(modifier.Hex()))

	var out struct {
		Roles []roleRecord `json:"roles"`
	}
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("registry returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Unrecoverable(fmt.Errorf("registry returned status %d", resp.StatusCode))
		}

		return json.NewDecoder(resp.Body).Decode(&out)
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to fetch roles for %s: %w", modifier, err)
	}

	return out.Roles, nil
}

func parseRole(modifier common.Address, rec roleRecord) (*Role, error) {
	keyBytes, err := hexutil.Decode(rec.Key)
	if err != nil || len(keyBytes) != 32 {
		return nil, fmt.Errorf("invalid role key %q", rec.Key)
	}
	var key [32]byte
	copy(key[:], keyBytes)

	members := make(map[common.Address]bool, len(rec.Members))
	for _, m := range rec.Members {
		if !common.IsHexAddress(m) {
			return nil, fmt.Errorf("invalid member address %q", m)
		}
		members[common.HexToAddress(m)] = true
	}

	targets := make(map[common.Address]TargetRule, len(rec.Targets))
	for _, t := range rec.Targets {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("invalid target address %q", t.Address)
		}
		rule, err := parseTargetRule(t)
		if err != nil {
			return nil, err
		}
		targets[common.HexToAddress(t.Address)] = rule
	}

	batchTargets := make([]common.Address, 0, len(rec.Multisend))
	for _, m := range rec.Multisend {
		if !common.IsHexAddress(m) {
			return nil, fmt.Errorf("invalid multisend address %q", m)
		}
		batchTargets = append(batchTargets, common.HexToAddress(m))
	}

	role := &Role{
		Modifier:     modifier,
		Key:          key,
		Members:      members,
		Targets:      targets,
		BatchTargets: batchTargets,
	}
	if rec.Version != "" {
		v, err := semver.NewVersion(rec.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid module version %q: %w", rec.Version, err)
		}
		role.Version = v
	}

	return role, nil
}

func parseTargetRule(rec targetRecord) (TargetRule, error) {
	clearance, err := parseClearance(rec.Clearance)
	if err != nil {
		return TargetRule{}, err
	}
	execOpts, err := parseExecutionOptions(rec.ExecutionOptions)
	if err != nil {
		return TargetRule{}, err
	}

	functions := make(map[[4]byte]FunctionRule, len(rec.Functions))
	for _, f := range rec.Functions {
		selBytes, err := hexutil.Decode(f.Selector)
		if err != nil || len(selBytes) != 4 {
			return TargetRule{}, fmt.Errorf("invalid function selector %q", f.Selector)
		}
		fnOpts, err := parseExecutionOptions(f.ExecutionOptions)
		if err != nil {
			return TargetRule{}, err
		}
		var sel [4]byte
		copy(sel[:], selBytes)
		functions[sel] = FunctionRule{ExecOptions: fnOpts, Wildcarded: f.Wildcarded}
	}

	return TargetRule{Clearance: clearance, ExecOptions: execOpts, Functions: functions}, nil
}

func parseClearance(s string) (Clearance, error) {
	switch s {
	case "none", "":
		return ClearanceNone, nil
	case "target":
		return ClearanceTarget, nil
	case "function":
		return ClearanceFunction, nil
	default:
		return 0, fmt.Errorf("invalid clearance %q", s)
	}
}

func parseExecutionOptions(s string) (ExecutionOptions, error) {
	switch s {
	case "none", "":
		return ExecutionNone, nil
	case "send":
		return ExecutionSend, nil
	case "delegatecall":
		return ExecutionDelegateCall, nil
	case "both":
		return ExecutionBoth, nil
	default:
		return 0, fmt.Errorf("invalid execution options %q", s)
	}
}
