package router

import "errors"

// Dispatch failures are distinct because the caller-facing retry affordance
// differs: a rejection can be resubmitted immediately, a revert needs
// explicit re-confirmation, and a relay decline falls back to direct
// execution.
var (
	// ErrWalletRejected: the connected wallet refused to sign or submit.
	ErrWalletRejected = errors.New("wallet rejected the request")
	// ErrExecutionReverted: the submission transaction reverted on chain.
	ErrExecutionReverted = errors.New("execution reverted")
	// ErrRelayDeclined: the relay refused the submission.
	ErrRelayDeclined = errors.New("relay declined the submission")
)

var (
	// ErrIndexingTimeout: bounded polling exhausted before the indexer
	// reported the execution. Informational, not terminal; the on-chain
	// action may still have succeeded, and Reconcile resumes the polling.
	ErrIndexingTimeout = errors.New("timed out waiting for the indexer; execution may still be pending")
	// ErrNotExecutable: the intent has not met the signature threshold and
	// nonce gate (and no role path applies).
	ErrNotExecutable = errors.New("intent is not executable")
	// ErrDispatchInProgress: a dispatch is already in flight for the
	// intent.
	ErrDispatchInProgress = errors.New("dispatch already in progress")
	// ErrPathChanged: a dispatch was attempted on a different path than the
	// one already chosen.
	ErrPathChanged = errors.New("execution path already chosen")
	// ErrPathUnavailable: the requested path is not available to the
	// connected actor.
	ErrPathUnavailable = errors.New("execution path unavailable")
)
