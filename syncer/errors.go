package syncer

import "fmt"

// TransportError wraps any failure to reach or parse a response from the
// chain data source. Retrying is reasonable.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("explorer request failed: %s", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ReconcileError signals that the fetched chain data could not be connected
// to the locally held chain, typically because the two diverged below the
// oldest local checkpoint.
type ReconcileError struct {
	Cause error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("failed to reconcile chains: %s", e.Cause)
}

func (e *ReconcileError) Unwrap() error { return e.Cause }

// ApplyError signals that a reconciled update was rejected by the wallet.
// The wallet state is unchanged.
type ApplyError struct {
	Cause error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to apply update: %s", e.Cause)
}

func (e *ApplyError) Unwrap() error { return e.Cause }

// PersistError signals that an update was applied in memory but could not be
// written to the store. The staged delta is kept and retried on the next
// persist.
type PersistError struct {
	Cause error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist update: %s", e.Cause)
}

func (e *PersistError) Unwrap() error { return e.Cause }
