package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/multisigkit/intent-engine/chain"
	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/indexer"
	"github.com/multisigkit/intent-engine/internal/abis"
	"github.com/multisigkit/intent-engine/permission"
	"github.com/multisigkit/intent-engine/pkg/logger"
	"github.com/multisigkit/intent-engine/relay"
	"github.com/multisigkit/intent-engine/wallet"
)

// Indexing is the slice of the indexer client the router depends on.
type Indexing interface {
	RecommendedNonce(ctx context.Context, safe common.Address) (uint64, error)
	Propose(ctx context.Context, proposal indexer.Proposal) error
	ModuleTransactionByHash(ctx context.Context, txHash common.Hash) (indexer.ModuleTransaction, error)
	MultisigTransactions(ctx context.Context, safe common.Address) ([]indexer.MultisigTransaction, error)
}

// Relayer is the slice of the relay client the router depends on.
type Relayer interface {
	Submit(ctx context.Context, req relay.Request) (relay.Response, error)
	RemainingQuota(ctx context.Context, chainID uint64, safe common.Address) (relay.Quota, error)
}

// Router owns the execution lifecycle of intents on one chain.
type Router struct {
	chain  chain.Chain
	reader chain.SafeReader
	signer wallet.Signer
	index  Indexing
	// relayer is nil when the connected wallet has no relay support; the
	// relay path is then never offered.
	relayer Relayer
	// multiSend is the batch dispatch contract direct execution routes
	// multi-operation intents through.
	multiSend common.Address
	policy    RetryPolicy
	lggr      logger.Logger
}

// New returns a Router. relayer may be nil to disable the relay path.
func New(
	ch chain.Chain,
	reader chain.SafeReader,
	signer wallet.Signer,
	index Indexing,
	relayer Relayer,
	multiSend common.Address,
	policy RetryPolicy,
	lggr logger.Logger,
) *Router {
	return &Router{
		chain:     ch,
		reader:    reader,
		signer:    signer,
		index:     index,
		relayer:   relayer,
		multiSend: multiSend,
		policy:    policy,
		lggr:      lggr.Named("Router"),
	}
}

// safeTx returns the Safe transaction the intent executes: the single
// operation as-is, or the operation list wrapped into one delegate call to
// the batch dispatch contract.
func (r *Router) safeTx(in *Intent) (wallet.SafeTx, error) {
	if !in.batch() {
		return wallet.NewSafeTx(in.Operations[0], in.Nonce), nil
	}

	payload, err := decode.EncodeBatch(in.Operations)
	if err != nil {
		return wallet.SafeTx{}, fmt.Errorf("failed to encode batch: %w", err)
	}

	return wallet.NewSafeTx(decode.Operation{
		Target:  r.multiSend,
		Payload: payload,
		Kind:    decode.CallKindDelegateCall,
	}, in.Nonce), nil
}

// Hash returns the EIP-712 digest owners sign to approve the intent.
func (r *Router) Hash(in *Intent) (common.Hash, error) {
	tx, err := r.safeTx(in)
	if err != nil {
		return common.Hash{}, err
	}

	return tx.Hash(r.chain.ID, in.Safe)
}

// Submit commits a drafting intent: assigns its nonce, signs it as the
// proposer, and posts the proposal to the indexer.
//
// Nonce precedence: an explicit override wins, then the indexer's
// recommendation, then a nonce assigned on a previous submit attempt.
func (r *Router) Submit(ctx context.Context, in *Intent, nonceOverride *uint64) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.Status != StatusDrafting {
		return fmt.Errorf("cannot submit an intent in state %q", in.Status)
	}
	if len(in.Operations) == 0 {
		return errors.New("cannot submit an intent with no operations")
	}

	state, err := r.reader.SafeState(ctx, in.Safe)
	if err != nil {
		return fmt.Errorf("failed to read wallet state: %w", err)
	}
	in.Threshold = state.Threshold

	if nonceOverride != nil {
		in.Nonce = *nonceOverride
	} else if nonce, err := r.index.RecommendedNonce(ctx, in.Safe); err == nil {
		in.Nonce = nonce
	} else if in.nonceAssigned {
		r.lggr.Warnw("Indexer nonce recommendation unavailable, keeping the assigned nonce",
			"safe", in.Safe, "nonce", in.Nonce, "error", err)
	} else {
		r.lggr.Warnw("Indexer nonce recommendation unavailable, falling back to on-chain nonce",
			"safe", in.Safe, "error", err)
		in.Nonce = state.Nonce
	}
	in.nonceAssigned = true

	tx, err := r.safeTx(in)
	if err != nil {
		return err
	}
	hash, err := tx.Hash(r.chain.ID, in.Safe)
	if err != nil {
		return err
	}

	sig, err := r.signer.SignHash(ctx, hash)
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			return fmt.Errorf("%w: %w", ErrWalletRejected, err)
		}
		return fmt.Errorf("failed to sign proposal: %w", err)
	}

	if err := r.index.Propose(ctx, indexer.Proposal{
		Safe:       in.Safe,
		To:         tx.To,
		Value:      tx.Value.String(),
		Data:       hexutil.Encode(tx.Data),
		Operation:  uint8(tx.Operation),
		Nonce:      in.Nonce,
		SafeTxHash: hash,
		Sender:     r.signer.Address(),
		Signature:  hexutil.Encode(sig),
	}); err != nil {
		return fmt.Errorf("failed to propose intent: %w", err)
	}

	// The proposer's signature counts towards the threshold when the
	// proposer is an owner.
	if state.IsOwner(r.signer.Address()) && !in.signedBy(r.signer.Address()) {
		in.Signatures = append(in.Signatures, wallet.Signature{
			Signer: r.signer.Address(),
			Bytes:  sig,
		})
	}

	in.Status = StatusAwaitingSignatures
	r.lggr.Infow("Intent proposed",
		"intent", in.ID, "safe", in.Safe, "nonce", in.Nonce, "operations", len(in.Operations))

	return nil
}

// AddSignature collects one owner signature. The signer is recovered from
// the signature, must be a current owner, and duplicates are ignored.
func (r *Router) AddSignature(ctx context.Context, in *Intent, sig []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.Status.terminal() || in.Status.dispatching() {
		return fmt.Errorf("cannot add a signature in state %q", in.Status)
	}

	state, err := r.reader.SafeState(ctx, in.Safe)
	if err != nil {
		return fmt.Errorf("failed to read wallet state: %w", err)
	}
	hash, err := r.Hash(in)
	if err != nil {
		return err
	}

	attributed, err := wallet.ValidateSignature(hash, sig, state.Owners)
	if err != nil {
		return err
	}
	if in.signedBy(attributed.Signer) {
		return nil
	}
	in.Signatures = append(in.Signatures, attributed)

	return nil
}

// Refresh recomputes the intent's pre-dispatch state from the wallet's
// on-chain state and the permission evaluation (which may be nil when no
// roles apply).
//
// The executable gate requires both the signature threshold and an exactly
// current nonce; an intent queued behind other nonces simply stays awaiting.
func (r *Router) Refresh(ctx context.Context, in *Intent, eval *permission.Evaluation) (Status, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.Status == StatusDrafting || in.Status.dispatching() || in.Status.terminal() {
		return in.Status, nil
	}

	state, err := r.reader.SafeState(ctx, in.Safe)
	if err != nil {
		return in.Status, fmt.Errorf("failed to read wallet state: %w", err)
	}
	in.Threshold = state.Threshold

	switch {
	case in.thresholdMet() && in.Nonce == state.Nonce:
		in.Status = StatusExecutable
	case r.roleFor(in, eval) != nil:
		in.Status = StatusExecutableViaRole
	default:
		in.Status = StatusAwaitingSignatures
	}

	return in.Status, nil
}

// roleFor returns the role the connected actor can execute the intent
// through, or nil.
func (r *Router) roleFor(in *Intent, eval *permission.Evaluation) *permission.Role {
	if eval == nil {
		return nil
	}
	actor := r.signer.Address()
	for _, result := range eval.Results {
		if result.Allows() && result.Role.IsMember(actor) {
			return result.Role
		}
	}

	return nil
}

// AvailablePaths lists the execution paths open to the connected actor, in
// preference order. Role execution is preferred for a non-owner role member
// because it bypasses the signature threshold; relay is always an explicit
// alternative, never a silent substitute.
func (r *Router) AvailablePaths(ctx context.Context, in *Intent, eval *permission.Evaluation) ([]Path, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	state, err := r.reader.SafeState(ctx, in.Safe)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet state: %w", err)
	}

	actor := r.signer.Address()
	role := r.roleFor(in, eval)
	executable := in.thresholdMet() && in.Nonce == state.Nonce
	direct := executable && (actor == in.Proposer || in.signedBy(actor) || state.IsOwner(actor))

	var paths []Path
	if role != nil && !state.IsOwner(actor) {
		paths = append(paths, PathRole)
	}
	if direct {
		paths = append(paths, PathDirect)
	}
	if role != nil && state.IsOwner(actor) {
		paths = append(paths, PathRole)
	}
	if r.relayAvailable(ctx, in, state, actor) {
		paths = append(paths, PathRelay)
	}

	return paths, nil
}

// relayAvailable reports whether the relay path can be offered: a relayer is
// configured, the actor could complete the signature set, and the wallet has
// quota left this hour.
func (r *Router) relayAvailable(ctx context.Context, in *Intent, state chain.SafeState, actor common.Address) bool {
	if r.relayer == nil {
		return false
	}
	if !in.thresholdMet() {
		// Relay needs a fully-signed intent; the only silent completion
		// allowed is the actor's own signature.
		missing := in.Threshold - uint64(len(in.Signatures))
		if missing > 1 || !state.IsOwner(actor) || in.signedBy(actor) {
			return false
		}
	}
	quota, err := r.relayer.RemainingQuota(ctx, r.chain.ID, in.Safe)
	if err != nil {
		r.lggr.Warnw("Relay quota lookup failed", "safe", in.Safe, "error", err)
		return false
	}

	return quota.Remaining > 0
}

// Dispatch drives the intent down the given path. A dispatch that reaches
// the chain, or is accepted by the relay, fixes the intent's chosen path and
// retries after such a failure must reuse it; a dispatch that never got that
// far (path validation failure, wallet rejection before submission, relay
// decline) leaves the other paths open. A second dispatch while one is in
// flight is rejected.
func (r *Router) Dispatch(ctx context.Context, in *Intent, path Path, eval *permission.Evaluation) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.Status.dispatching() {
		return ErrDispatchInProgress
	}
	if in.Status == StatusConfirmed {
		return errors.New("intent already confirmed")
	}
	if in.ChosenPath != PathUnset && path != in.ChosenPath {
		return fmt.Errorf("%w: %s", ErrPathChanged, in.ChosenPath)
	}

	state, err := r.reader.SafeState(ctx, in.Safe)
	if err != nil {
		return fmt.Errorf("failed to read wallet state: %w", err)
	}

	in.ChosenPath = path

	switch path {
	case PathDirect:
		err = r.dispatchDirect(ctx, in, state)
	case PathRole:
		err = r.dispatchRole(ctx, in, eval)
	case PathRelay:
		err = r.dispatchRelay(ctx, in, state)
	default:
		err = fmt.Errorf("%w: %s", ErrPathUnavailable, path)
	}

	// Nothing was submitted on chain and the relay accepted nothing: the
	// intent is not committed to this path, so a declined relay falls back
	// to the other offers.
	if err != nil && in.TxHash == (common.Hash{}) && in.RelayTask == "" {
		in.ChosenPath = PathUnset
	}

	return err
}

// Reconcile resumes an intent parked by an indexing timeout: the execution
// was submitted but not observed within the polling budget, so the intent
// stays dispatching. Reconcile polls the indexer again with the same budget
// and confirms (or fails) the intent once the record appears.
func (r *Router) Reconcile(ctx context.Context, in *Intent) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch {
	case in.Status == StatusDispatchingViaRole && in.TxHash != (common.Hash{}):
		return r.awaitRoleIndexing(ctx, in)
	case in.Status == StatusDispatching && in.RelayTask != "":
		return r.awaitRelayExecution(ctx, in)
	default:
		return fmt.Errorf("nothing to reconcile in state %q", in.Status)
	}
}

func (r *Router) dispatchDirect(ctx context.Context, in *Intent, state chain.SafeState) error {
	if !in.thresholdMet() || in.Nonce != state.Nonce {
		return ErrNotExecutable
	}

	data, err := r.execTransactionData(in)
	if err != nil {
		return err
	}

	in.Status = StatusDispatching

	gas, err := r.estimateGas(ctx, r.signer.Address(), in.Safe, data)
	if err != nil {
		return r.fail(in, fmt.Errorf("%w: %w", ErrExecutionReverted, err))
	}
	tx, err := r.signer.SubmitTransaction(ctx, in.Safe, new(big.Int), data, gas)
	if err != nil {
		return r.fail(in, mapSubmitError(err))
	}
	in.TxHash = tx.Hash()

	if _, err := r.chain.Confirm(tx); err != nil {
		return r.fail(in, fmt.Errorf("%w: %w", ErrExecutionReverted, err))
	}

	in.Status = StatusConfirmed
	in.FailureCause = nil
	r.lggr.Infow("Intent executed directly", "intent", in.ID, "tx", in.TxHash)

	return nil
}

func (r *Router) dispatchRole(ctx context.Context, in *Intent, eval *permission.Evaluation) error {
	role := r.roleFor(in, eval)
	if role == nil {
		return fmt.Errorf("%w: no allowing role for the connected actor", ErrPathUnavailable)
	}

	call, err := r.roleCall(in, role)
	if err != nil {
		return err
	}
	callValue := call.Value
	if callValue == nil {
		callValue = new(big.Int)
	}
	data, err := abis.Roles.Pack("execTransactionWithRole",
		call.Target, callValue, call.Payload, uint8(call.Kind), role.Key, true)
	if err != nil {
		return fmt.Errorf("failed to pack role call: %w", err)
	}

	in.Status = StatusDispatchingViaRole

	gas, err := r.estimateGas(ctx, r.signer.Address(), role.Modifier, data)
	if err != nil {
		return r.fail(in, fmt.Errorf("%w: %w", ErrExecutionReverted, err))
	}
	tx, err := r.signer.SubmitTransaction(ctx, role.Modifier, new(big.Int), data, gas)
	if err != nil {
		return r.fail(in, mapSubmitError(err))
	}
	in.TxHash = tx.Hash()

	if _, err := r.chain.Confirm(tx); err != nil {
		return r.fail(in, fmt.Errorf("%w: %w", ErrExecutionReverted, err))
	}

	return r.awaitRoleIndexing(ctx, in)
}

// roleCall returns the operation the role call wraps: the single operation,
// or the batch routed through the role's own batch-dispatch target.
func (r *Router) roleCall(in *Intent, role *permission.Role) (decode.Operation, error) {
	if !in.batch() {
		return in.Operations[0], nil
	}
	if len(role.BatchTargets) == 0 {
		return decode.Operation{}, fmt.Errorf("%w: role has no batch dispatch target", ErrPathUnavailable)
	}

	payload, err := decode.EncodeBatch(in.Operations)
	if err != nil {
		return decode.Operation{}, fmt.Errorf("failed to encode batch: %w", err)
	}

	return decode.Operation{
		Target:  role.BatchTargets[0],
		Payload: payload,
		Kind:    decode.CallKindDelegateCall,
	}, nil
}

// awaitRoleIndexing polls the indexer until the role execution's internal
// transaction record appears. Role-routed calls are indexed with a delay, so
// absence is expected at first and polled through with backoff; exhausting
// the attempts leaves the intent dispatching, because the on-chain execution
// may well have succeeded.
func (r *Router) awaitRoleIndexing(ctx context.Context, in *Intent) error {
	mtx, err := retry.DoWithData(func() (indexer.ModuleTransaction, error) {
		return r.index.ModuleTransactionByHash(ctx, in.TxHash)
	}, append(r.policy.options(), retry.Context(ctx))...)
	if err != nil {
		if errors.Is(err, indexer.ErrNotIndexed) {
			r.lggr.Infow("Role execution not indexed within the polling budget",
				"intent", in.ID, "tx", in.TxHash)
			return fmt.Errorf("%w: tx %s", ErrIndexingTimeout, in.TxHash)
		}
		return fmt.Errorf("failed to look up role execution: %w", err)
	}

	if !mtx.IsSuccess {
		return r.fail(in, fmt.Errorf("%w: role execution unsuccessful", ErrExecutionReverted))
	}

	in.Status = StatusConfirmed
	in.FailureCause = nil
	r.lggr.Infow("Intent executed via role", "intent", in.ID, "tx", in.TxHash)

	return nil
}

func (r *Router) dispatchRelay(ctx context.Context, in *Intent, state chain.SafeState) error {
	if r.relayer == nil {
		return fmt.Errorf("%w: no relay configured", ErrPathUnavailable)
	}

	// Relaying needs a fully-signed intent. The actor's own missing
	// signature is collected silently; anyone else's is not ours to give.
	if !in.thresholdMet() {
		if err := r.collectOwnSignature(ctx, in, state); err != nil {
			return err
		}
		if !in.thresholdMet() {
			return ErrNotExecutable
		}
	}
	if in.Nonce != state.Nonce {
		return ErrNotExecutable
	}

	data, err := r.execTransactionData(in)
	if err != nil {
		return err
	}
	gas, err := r.estimateGas(ctx, in.Safe, in.Safe, data)
	if err != nil {
		return r.fail(in, fmt.Errorf("%w: %w", ErrExecutionReverted, err))
	}

	in.Status = StatusDispatching

	resp, err := r.relayer.Submit(ctx, relay.Request{
		ChainID:  r.chain.ID,
		Safe:     in.Safe,
		Data:     data,
		GasLimit: gas,
	})
	if err != nil {
		var declined *relay.DeclinedError
		if errors.As(err, &declined) {
			return r.fail(in, fmt.Errorf("%w: %s", ErrRelayDeclined, declined.Reason))
		}
		return r.fail(in, fmt.Errorf("relay submission failed: %w", err))
	}

	in.RelayTask = resp.TaskID
	r.lggr.Infow("Intent handed to relay", "intent", in.ID, "task", resp.TaskID)

	return r.awaitRelayExecution(ctx, in)
}

// collectOwnSignature signs the intent with the connected actor's own key
// when the actor is an owner who has not signed yet.
func (r *Router) collectOwnSignature(ctx context.Context, in *Intent, state chain.SafeState) error {
	actor := r.signer.Address()
	if !state.IsOwner(actor) || in.signedBy(actor) {
		return ErrNotExecutable
	}

	tx, err := r.safeTx(in)
	if err != nil {
		return err
	}
	sig, err := r.signer.SignTypedData(ctx, tx.TypedData(r.chain.ID, in.Safe))
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			return fmt.Errorf("%w: %w", ErrWalletRejected, err)
		}
		return fmt.Errorf("failed to sign: %w", err)
	}
	in.Signatures = append(in.Signatures, wallet.Signature{Signer: actor, Bytes: sig})

	return nil
}

// awaitRelayExecution polls the indexer until the relayed transaction is
// recorded as executed.
func (r *Router) awaitRelayExecution(ctx context.Context, in *Intent) error {
	hash, err := r.Hash(in)
	if err != nil {
		return err
	}

	executed, err := retry.DoWithData(func() (indexer.MultisigTransaction, error) {
		txs, err := r.index.MultisigTransactions(ctx, in.Safe)
		if err != nil {
			return indexer.MultisigTransaction{}, err
		}
		for _, tx := range txs {
			if tx.SafeTxHash == hash && tx.IsExecuted {
				return tx, nil
			}
		}

		return indexer.MultisigTransaction{}, indexer.ErrNotIndexed
	}, append(r.policy.options(), retry.Context(ctx))...)
	if err != nil {
		if errors.Is(err, indexer.ErrNotIndexed) {
			return fmt.Errorf("%w: relay task %s", ErrIndexingTimeout, in.RelayTask)
		}
		return fmt.Errorf("failed to look up relayed execution: %w", err)
	}

	if executed.TxHash != nil {
		in.TxHash = *executed.TxHash
	}
	in.Status = StatusConfirmed
	in.FailureCause = nil
	r.lggr.Infow("Intent executed via relay", "intent", in.ID, "tx", in.TxHash)

	return nil
}

// execTransactionData packs the execTransaction call with the collected
// signatures assembled in owner order.
func (r *Router) execTransactionData(in *Intent) ([]byte, error) {
	tx, err := r.safeTx(in)
	if err != nil {
		return nil, err
	}
	data, err := abis.Safe.Pack("execTransaction",
		tx.To,
		tx.Value,
		tx.Data,
		uint8(tx.Operation),
		tx.SafeTxGas,
		tx.BaseGas,
		tx.GasPrice,
		tx.GasToken,
		tx.RefundRcv,
		wallet.AssembleSignatures(in.Signatures),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execTransaction: %w", err)
	}

	return data, nil
}

// estimateGas estimates the call and pads the result, since signature
// verification cost varies with owner ordering.
func (r *Router) estimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error) {
	gas, err := r.chain.EstimateGas(ctx, from, to, nil, data)
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}

	return gas + gas/5, nil
}

// fail moves the intent to the terminal failed state and records the cause.
func (r *Router) fail(in *Intent, err error) error {
	in.Status = StatusFailed
	in.FailureCause = err
	r.lggr.Errorw("Dispatch failed", "intent", in.ID, "path", in.ChosenPath, "error", err)

	return err
}

// mapSubmitError folds signer submission failures into the dispatch failure
// taxonomy.
func mapSubmitError(err error) error {
	if errors.Is(err, wallet.ErrRejected) {
		return fmt.Errorf("%w: %w", ErrWalletRejected, err)
	}

	return fmt.Errorf("%w: %w", ErrExecutionReverted, err)
}
