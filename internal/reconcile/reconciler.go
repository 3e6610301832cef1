// Package reconcile keeps exactly one digest of ours in a sticky slot.
//
// The reconciler is an explicit state machine:
//
//	Unknown -> ReadOccupant -> VerifyOwnership -> Displace -> Activate -> Done
//	                 |                |                          ^
//	                 +----------------+--------------------------+
//
// Only an unreachable destination during activation (or a cancelled context)
// ends in Failed; every other problem is recorded as a warning and the machine
// still reaches Done.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
)

// State is a step of the reconciliation.
type State int

const (
	StateUnknown State = iota
	StateReadOccupant
	StateVerifyOwnership
	StateDisplace
	StateActivate
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateReadOccupant:
		return "read_occupant"
	case StateVerifyOwnership:
		return "verify_ownership"
	case StateDisplace:
		return "displace"
	case StateActivate:
		return "activate"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request describes the item to activate.
type Request struct {
	Subreddit     string
	NewItemID     string
	Slot          domain.Slot
	SuggestedSort string
}

// Report is the outcome of one reconciliation.
type Report struct {
	State       State
	Trace       []State
	Occupant    *domain.PinnedItem
	Owned       bool
	Displaced   bool
	Pinned      bool
	SortApplied bool
	Warnings    []error
	// Err is set when State is StateFailed.
	Err error
}

// Degraded reports a successful run that needs manual attention.
func (r Report) Degraded() bool {
	return r.State == StateDone && len(r.Warnings) > 0
}

// WarningStrings flattens warnings for logging and storage.
func (r Report) WarningStrings() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// Reconciler drives the state machine against a SlotStore.
type Reconciler struct {
	slots    ports.SlotStore
	identity ports.IdentityProvider
	marker   string
	logger   *slog.Logger
}

// New builds a Reconciler. marker is the phrase that identifies our digests by title.
func New(slots ports.SlotStore, identity ports.IdentityProvider, marker string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{slots: slots, identity: identity, marker: marker, logger: logger}
}

// Reconcile runs the machine until Done or Failed.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) Report {
	var rep Report
	state := StateUnknown
	for state != StateDone && state != StateFailed {
		rep.Trace = append(rep.Trace, state)
		state = r.step(ctx, state, req, &rep)
	}
	rep.Trace = append(rep.Trace, state)
	rep.State = state
	return rep
}

func (r *Reconciler) step(ctx context.Context, state State, req Request, rep *Report) State {
	switch state {
	case StateUnknown:
		if req.NewItemID == "" {
			rep.Err = errors.New("no published item to activate")
			return StateFailed
		}
		if err := ctx.Err(); err != nil {
			rep.Err = err
			return StateFailed
		}
		return StateReadOccupant

	case StateReadOccupant:
		occ, err := r.slots.Occupant(ctx, req.Subreddit, req.Slot)
		if errors.Is(err, ports.ErrSlotEmpty) {
			r.logger.Info("no previous sticky in slot", "slot", req.Slot.String())
			return StateActivate
		}
		if err != nil {
			r.logger.Info("cannot read sticky slot, activating anyway", "slot", req.Slot.String(), "error", err)
			rep.Warnings = append(rep.Warnings, fmt.Errorf("read %s slot: %w", req.Slot, err))
			return StateActivate
		}
		rep.Occupant = &occ
		return StateVerifyOwnership

	case StateVerifyOwnership:
		rep.Owned = r.owns(ctx, *rep.Occupant, rep)
		if !rep.Owned {
			r.logger.Info("slot occupied by a different post, leaving as is",
				"slot", req.Slot.String(), "occupant", rep.Occupant.ID)
			return StateActivate
		}
		return StateDisplace

	case StateDisplace:
		if rep.Occupant.ID == req.NewItemID {
			return StateActivate
		}
		if err := r.slots.Unpin(ctx, rep.Occupant.ID); err != nil {
			r.logger.Warn("failed to unsticky previous highlight; manual cleanup needed",
				"occupant", rep.Occupant.ID, "error", err)
			rep.Warnings = append(rep.Warnings, fmt.Errorf("unpin %s: %w", rep.Occupant.ID, err))
			return StateActivate
		}
		rep.Displaced = true
		r.logger.Info("unstickied previous highlight", "slot", req.Slot.String(), "occupant", rep.Occupant.ID)
		return StateActivate

	case StateActivate:
		if err := r.slots.Pin(ctx, req.NewItemID, req.Slot); err != nil {
			if fatal(err) {
				r.logger.Error("destination unreachable, digest not stickied", "item", req.NewItemID, "error", err)
				rep.Err = fmt.Errorf("pin %s: %w", req.NewItemID, err)
				return StateFailed
			}
			r.logger.Warn("could not sticky digest", "item", req.NewItemID, "error", err)
			rep.Warnings = append(rep.Warnings, fmt.Errorf("pin %s: %w", req.NewItemID, err))
		} else {
			rep.Pinned = true
			r.logger.Info("digest stickied", "item", req.NewItemID, "slot", req.Slot.String())
		}

		if req.SuggestedSort != "" {
			if err := r.slots.SetSuggestedSort(ctx, req.NewItemID, req.SuggestedSort); err != nil {
				r.logger.Warn("could not set suggested sort", "sort", req.SuggestedSort, "error", err)
				rep.Warnings = append(rep.Warnings, fmt.Errorf("suggested sort %s: %w", req.SuggestedSort, err))
			} else {
				rep.SortApplied = true
			}
		}
		return StateDone

	default:
		rep.Err = fmt.Errorf("unexpected state %s", state)
		return StateFailed
	}
}

// owns accepts either our publishing identity or the marker phrase in the title.
// An identity lookup failure still lets the title check recognize our posts.
func (r *Reconciler) owns(ctx context.Context, occ domain.PinnedItem, rep *Report) bool {
	if r.marker != "" && strings.Contains(strings.ToLower(occ.Title), strings.ToLower(r.marker)) {
		return true
	}
	if r.identity == nil || occ.Author == "" {
		return false
	}
	me, err := r.identity.Identity(ctx)
	if err != nil {
		r.logger.Warn("identity lookup failed, ownership decided by title only", "error", err)
		rep.Warnings = append(rep.Warnings, fmt.Errorf("identity: %w", err))
		return false
	}
	return me != "" && strings.EqualFold(me, occ.Author)
}

func fatal(err error) bool {
	return errors.Is(err, ports.ErrDestinationUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
