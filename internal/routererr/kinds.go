package routererr

import "fmt"

// Kind distinguishes the seven error categories the router and plugin
// manager can raise. Callers recover a Kind via errors.As on the
// corresponding typed error below, not by comparing strings.
type Kind string

const (
	KindPluginHook    Kind = "plugin_hook"
	KindPluginInit    Kind = "plugin_init"
	KindDedup         Kind = "dedup"
	KindStore         Kind = "store"
	KindDlq           Kind = "dlq"
	KindCriticalBatch Kind = "critical_batch"
	KindPrecondition  Kind = "precondition"
)

// TypedError wraps an underlying error with the Kind that classifies it.
type TypedError struct {
	Kind Kind
	Err  error
}

func (e *TypedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *TypedError) Unwrap() error {
	return e.Err
}

func newTyped(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &TypedError{Kind: kind, Err: err}
}

// PluginHookError reports a failure of a single OnEvent/OnReplay/OnDLQ
// invocation. The manager captures it per-plugin; it never aborts a
// dispatch round.
func PluginHookError(err error) error { return newTyped(KindPluginHook, err) }

// PluginInitError reports a failure of a plugin's Init hook. Init fails
// the whole Manager.Init call.
func PluginInitError(err error) error { return newTyped(KindPluginInit, err) }

// DedupError reports a failure of the duplicate-check step. The router
// falls back to treating the batch as all-unique rather than propagating
// this as fatal.
func DedupError(err error) error { return newTyped(KindDedup, err) }

// StoreError reports a failure persisting a successfully-dispatched
// event. It is logged, not escalated to CriticalBatchError.
func StoreError(err error) error { return newTyped(KindStore, err) }

// DlqError reports a failure sending a batch of failed events to the
// dead-letter sink.
func DlqError(err error) error { return newTyped(KindDlq, err) }

// CriticalBatchError reports a failure severe enough to abort processing
// of the entire batch (e.g. a malformed batch, or a collaborator that
// cannot be reached at all).
func CriticalBatchError(err error) error { return newTyped(KindCriticalBatch, err) }

// PreconditionError reports a call made before the required setup step
// (e.g. Trigger* before Init, or a duplicate Register).
func PreconditionError(err error) error { return newTyped(KindPrecondition, err) }

// Convenience aliases matching the short names used by internal/plugin.
func Precondition(err error) error { return PreconditionError(err) }
func PluginInit(err error) error   { return PluginInitError(err) }
