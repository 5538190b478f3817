package client

import (
	"context"
	"fmt"
	"time"
)

// Operation is one call against a single client, injected into the
// dispatcher as data. Implementations close over their context and output
// collection; the dispatcher is oblivious to what the operation does.
type Operation func(c Client) Status

// CallableClients partitions the fleet into callable clients and
// not-callable identities, with a coarse health signal: StatusOK when every
// known client is callable, StatusServerError otherwise.
//
// The set is re-derived from the enabled module list, not just the registry
// map, so not-yet-created clients are reported as not ready instead of
// silently omitted.
func (r *Registry) CallableClients(ctx context.Context) (map[int]Client, []int, Status, error) {
	callable, notReady, err := r.callableClients(ctx)
	if err != nil {
		return nil, nil, StatusServerError, err
	}

	status := StatusOK
	if len(notReady) > 0 {
		status = StatusServerError
	}
	return callable, notReady, status, nil
}

func (r *Registry) callableClients(ctx context.Context) (map[int]Client, []int, error) {
	modules, err := r.store.Modules(ctx, false)
	if err != nil {
		return nil, nil, fmt.Errorf("listing modules: %w", err)
	}

	callable := make(map[int]Client)
	var notReady []int

	r.mu.RLock()
	for _, m := range modules {
		for _, instanceID := range m.InstanceIDs {
			clientID := ClientID(m.ID, instanceID)
			c, ok := r.clients[clientID]
			if ok && c.ReadyToUse() && !c.Ignored() {
				callable[clientID] = c
			} else {
				notReady = append(notReady, clientID)
			}
		}
	}
	r.mu.RUnlock()

	return callable, notReady, nil
}

// ForCreatedClients invokes op on every callable client.
//
// Non-callable identities are failed without invocation. An outcome that is
// neither success nor not-implemented is a failure: the client joins the
// failed list and its status becomes the last-seen failure kind. The
// aggregate is StatusOK only when the failed list is empty; callers needing
// per-client detail must inspect that list, not the aggregate.
func (r *Registry) ForCreatedClients(ctx context.Context, op Operation) (Status, []int) {
	return r.forCreatedClients(ctx, "fanout", op)
}

func (r *Registry) forCreatedClients(ctx context.Context, name string, op Operation) (Status, []int) {
	start := time.Now()

	callable, notReady, err := r.callableClients(ctx)
	if err != nil {
		r.log.Error("computing callable clients", "operation", name, "error", err)
		return StatusServerError, nil
	}

	failed := make([]int, 0, len(notReady))
	failed = append(failed, notReady...)
	for _, clientID := range notReady {
		r.diagnoseNotCallable(clientID)
	}

	last := StatusOK
	for clientID, c := range callable {
		if status := op(c); status.IsFailure() {
			last = status
			failed = append(failed, clientID)
		}
	}

	r.recordFanout(name, len(callable)+len(notReady), len(failed), start)
	return last, failed
}

// ForClients invokes op on an explicit client subset. An empty subset
// degrades to ForCreatedClients.
//
// Registered callable clients outside the subset are failed by exclusion
// without invocation, so the caller learns they were not served. Subset
// members that are not callable get the same diagnostic treatment as in the
// full fan-out and are failed without invocation.
func (r *Registry) ForClients(ctx context.Context, clientIDs []int, op Operation) (Status, []int) {
	return r.forClients(ctx, "fanout_subset", clientIDs, op)
}

func (r *Registry) forClients(ctx context.Context, name string, clientIDs []int, op Operation) (Status, []int) {
	if len(clientIDs) == 0 {
		return r.forCreatedClients(ctx, name, op)
	}
	start := time.Now()

	requested := make(map[int]bool, len(clientIDs))
	for _, clientID := range clientIDs {
		requested[clientID] = true
	}

	var failed []int
	targets := make(map[int]Client, len(clientIDs))

	r.mu.RLock()
	for clientID, c := range r.clients {
		if c.ReadyToUse() && !c.Ignored() {
			if requested[clientID] {
				targets[clientID] = c
			} else {
				failed = append(failed, clientID)
			}
		}
	}
	r.mu.RUnlock()

	last := StatusOK
	for _, clientID := range clientIDs {
		c, ok := targets[clientID]
		if !ok {
			r.diagnoseNotCallable(clientID)
			failed = append(failed, clientID)
			continue
		}
		if status := op(c); status.IsFailure() {
			last = status
			failed = append(failed, clientID)
		}
	}

	r.recordFanout(name, len(clientIDs), len(failed), start)
	return last, failed
}

// diagnoseNotCallable logs why a client was skipped. Expected reasons
// (ignored, not ready, not created) log at debug; a client that looks
// callable after all indicates a classification defect and logs loud.
func (r *Registry) diagnoseNotCallable(clientID int) {
	r.mu.RLock()
	c, ok := r.clients[clientID]
	r.mu.RUnlock()

	switch {
	case !ok:
		r.log.Debug("skipping client: not created", "client_id", clientID)
	case c.Ignored():
		r.log.Debug("skipping client: flagged unreachable by backend", "client_id", clientID)
	case !c.ReadyToUse():
		r.log.Debug("skipping client: not ready", "client_id", clientID)
	default:
		r.log.Error("client unexpectedly not callable", "client_id", clientID)
	}
}

func (r *Registry) recordFanout(name string, targeted, failed int, start time.Time) {
	if r.telemetry != nil {
		r.telemetry.RecordFanout(name, targeted, failed, time.Since(start))
	}
}
