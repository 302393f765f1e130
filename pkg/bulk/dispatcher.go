// Package bulk coordinates confirmation and submission of an operation against
// a selection of table rows.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const logPrefix = "bulk:dispatcher"

var (
	// ErrNoSelection is returned when an action is chosen with no rows selected.
	ErrNoSelection = errors.New("no rows selected")
	// ErrLinkAction is returned for navigation actions, which are not bulk operations.
	ErrLinkAction = errors.New("link actions cannot be dispatched")
	// ErrNotAwaiting is returned by Confirm when nothing is pending.
	ErrNotAwaiting = errors.New("no action awaiting confirmation")
)

// Row is the original data of one selected table row.
type Row = map[string]any

// CustomFunc runs an action client-side for a single row.
type CustomFunc func(row Row, action Action, extra map[string]any) error

// Action is a bulk operation offered for the selected rows.
type Action struct {
	Label string `json:"label"`
	// URL is the endpoint the submission collaborator posts to.
	URL string `json:"url,omitempty"`
	// Link marks navigation actions; they never appear in the bulk menu.
	Link string `json:"link,omitempty"`
	// Data maps request parameter names to row properties.
	Data       map[string]string `json:"data,omitempty"`
	Fields     []string          `json:"fields,omitempty"`
	NoConfirm  bool              `json:"noConfirm,omitempty"`
	CustomFunc CustomFunc        `json:"-"`
}

// State is the dispatcher state.
type State int

const (
	Idle State = iota
	AwaitingConfirmation
)

func (s State) String() string {
	if s == AwaitingConfirmation {
		return "awaiting-confirmation"
	}
	return "idle"
}

// Pending is the transient {data, action, ready} snapshot held while awaiting confirmation.
type Pending struct {
	ID     string
	Data   []Row
	Action Action
	Ready  bool
}

// Request is handed to the submission collaborator on confirmation.
type Request struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
	// Data maps request parameter names to row properties, as on Action.
	Data   map[string]string `json:"data,omitempty"`
	Rows   []Row             `json:"rows"`
	Fields map[string]any    `json:"fields,omitempty"`
}

// Result is the per-row outcome reported by a submission.
type Result struct {
	Results []RowResult `json:"results"`
}

// RowResult is the outcome for one row.
type RowResult struct {
	Index   int    `json:"index"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// Confirmer opens the confirmation surface for a pending action.
type Confirmer interface {
	Open(p Pending)
}

// Submitter sends a confirmed bulk request.
type Submitter interface {
	Submit(ctx context.Context, req Request) (*Result, error)
}

// DispatchError reports a failed row or a failed submission. Row is -1 for submissions.
type DispatchError struct {
	Action string
	Row    int
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("%s: submission failed: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s: row %d failed: %v", e.Action, e.Row, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Outcome describes what Choose did.
type Outcome struct {
	// Immediate is set when the action ran per row without confirmation.
	Immediate bool
	// Failures holds one DispatchError per failed row of an immediate action.
	Failures []*DispatchError
}

// Dispatcher is the bulk action state machine.
type Dispatcher struct {
	mu        sync.Mutex
	confirmer Confirmer
	submitter Submitter
	state     State
	pending   Pending
}

// NewDispatcher creates a Dispatcher in the Idle state.
func NewDispatcher(confirmer Confirmer, submitter Submitter) *Dispatcher {
	return &Dispatcher{confirmer: confirmer, submitter: submitter}
}

// MenuActions returns the actions offered in the bulk menu: everything but links.
func MenuActions(all []Action) []Action {
	out := make([]Action, 0, len(all))
	for _, a := range all {
		if a.Link == "" {
			out = append(out, a)
		}
	}
	return out
}

// Choose applies action to rows. Actions marked NoConfirm with a CustomFunc run
// immediately once per row and leave the state untouched; every other action
// captures a pending snapshot and opens the confirmation surface.
func (d *Dispatcher) Choose(rows []Row, action Action) (*Outcome, error) {
	if action.Link != "" {
		return nil, ErrLinkAction
	}
	if len(rows) == 0 {
		return nil, ErrNoSelection
	}

	if action.NoConfirm && action.CustomFunc != nil {
		slog.Debug(fmt.Sprintf("%s - running %s on %d rows without confirmation", logPrefix, action.Label, len(rows)))
		out := &Outcome{Immediate: true}
		for i, row := range rows {
			if err := runRow(action, row); err != nil {
				slog.Warn(fmt.Sprintf("%s - %s row %d failed: %v", logPrefix, action.Label, i, err))
				out.Failures = append(out.Failures, &DispatchError{Action: action.Label, Row: i, Err: err})
			}
		}
		return out, nil
	}

	p := Pending{
		ID:     uuid.NewString(),
		Data:   append([]Row(nil), rows...),
		Action: action,
		Ready:  true,
	}
	d.mu.Lock()
	d.pending = p
	d.state = AwaitingConfirmation
	d.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - %s awaiting confirmation id=%s rows=%d", logPrefix, action.Label, p.ID, len(rows)))
	if d.confirmer != nil {
		d.confirmer.Open(p)
	}
	return &Outcome{}, nil
}

func runRow(action Action, row Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action.CustomFunc(row, action, map[string]any{})
}

// Cancel closes the confirmation surface without submitting.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = Pending{}
	d.state = Idle
}

// Confirm submits the pending action with the dialog's field values and returns
// to Idle whatever the outcome. Per-row failures in the result are reported as
// DispatchErrors without failing the call.
func (d *Dispatcher) Confirm(ctx context.Context, fields map[string]any) (*Result, []*DispatchError, error) {
	d.mu.Lock()
	if d.state != AwaitingConfirmation {
		d.mu.Unlock()
		return nil, nil, ErrNotAwaiting
	}
	p := d.pending
	d.pending = Pending{}
	d.state = Idle
	d.mu.Unlock()

	req := Request{
		ID:     p.ID,
		Action: p.Action.Label,
		URL:    p.Action.URL,
		Data:   p.Action.Data,
		Rows:   p.Data,
		Fields: fields,
	}
	if d.submitter == nil {
		return nil, nil, &DispatchError{Action: p.Action.Label, Row: -1, Err: errors.New("no submitter configured")}
	}

	res, err := d.submitter.Submit(ctx, req)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - %s id=%s failed: %v", logPrefix, p.Action.Label, p.ID, err))
		return nil, nil, &DispatchError{Action: p.Action.Label, Row: -1, Err: err}
	}

	var failures []*DispatchError
	if res != nil {
		for _, r := range res.Results {
			if r.Error != "" || r.Err != nil {
				err := r.Err
				if err == nil {
					err = errors.New(r.Error)
				}
				failures = append(failures, &DispatchError{Action: p.Action.Label, Row: r.Index, Err: err})
			}
		}
	}
	slog.Info(fmt.Sprintf("%s - %s id=%s submitted rows=%d failures=%d", logPrefix, p.Action.Label, p.ID, len(p.Data), len(failures)))
	return res, failures, nil
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Pending returns the snapshot awaiting confirmation, if any.
func (d *Dispatcher) Pending() (Pending, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending, d.state == AwaitingConfirmation
}
