package kernel

import (
	"context"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"

	"github.com/evanphx/userprog/log"
	"github.com/evanphx/userprog/pkg/waiter"
)

type ProcessState int

const (
	Running ProcessState = iota + 1
	Exited
	Reaped
)

func (s ProcessState) String() string {
	switch s {
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Reaped:
		return "reaped"
	default:
		return "unknown"
	}
}

const (
	_ waiter.EventType = iota
	ProcessExited
)

// noParent marks the initial process and orphans. Nobody can wait on
// them, so their records go away as soon as they exit.
const noParent = 0

// reapedMemory bounds how many reaped children each parent remembers.
// A child evicted from the set is reported as not a child, which fails
// the wait just the same.
const reapedMemory = 256

type statusRecord struct {
	pid    int
	parent int
	state  ProcessState
	code   int
}

// Registry holds the exit status of every process until its parent has
// collected it or can no longer do so.
//
// A record exists from Register until the child has exited and either the
// parent reaped it or the parent exited. Pids are never reused, so the
// per-parent reaped set can answer "already reaped" without ever
// confusing two processes. That set keeps only the most recent
// reapedMemory children.
type Registry struct {
	mu deadlock.Mutex

	records map[int]*statusRecord
	reaped  map[int]*simplelru.LRU

	events waiter.Waiter
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[int]*statusRecord),
		reaped:  make(map[int]*simplelru.LRU),
	}
}

// Register creates the Running record for pid.
func (r *Registry) Register(pid, parent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[pid]; ok {
		return errors.Errorf("pid %d already registered", pid)
	}

	r.records[pid] = &statusRecord{
		pid:    pid,
		parent: parent,
		state:  Running,
	}

	log.L.Trace("status-register", "pid", pid, "parent", parent)

	return nil
}

// Exit moves pid to Exited and wakes any waiter. It must be called once,
// from the process's own termination path.
func (r *Registry) Exit(pid, code int) error {
	r.mu.Lock()

	rec, ok := r.records[pid]
	if !ok || rec.state != Running {
		r.mu.Unlock()
		return errors.Errorf("pid %d is not running", pid)
	}

	rec.state = Exited
	rec.code = code

	if rec.parent == noParent {
		delete(r.records, pid)
	}

	r.mu.Unlock()

	log.L.Trace("status-exited", "pid", pid, "code", code, "parent", rec.parent)
	r.events.Notify(ProcessExited)

	return nil
}

// ParentExited drops everything parent could still have collected: its
// exited children are reclaimed and its running children are orphaned.
func (r *Registry) ParentExited(parent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid, rec := range r.records {
		if rec.parent != parent {
			continue
		}

		switch rec.state {
		case Running:
			log.L.Trace("status-orphaned", "pid", pid, "parent", parent)
			rec.parent = noParent
		case Exited:
			log.L.Trace("status-discarded", "pid", pid, "parent", parent, "code", rec.code)
			delete(r.records, pid)
		}
	}

	delete(r.reaped, parent)
}

// Wait returns child's exit code once it has exited, blocking until then.
// Only the parent may collect it and only once. ctx is the kernel's
// lifetime; it ends a wait only when the machine goes down.
func (r *Registry) Wait(ctx context.Context, parent, child int) (int, error) {
	c := make(chan struct{}, 1)
	ev := r.events.RegisterChannel(ProcessExited, c)
	defer r.events.Unregister(ev)

	for {
		code, done, err := r.reapOnce(parent, child)
		if err != nil {
			return 0, err
		}

		if done {
			return code, nil
		}

		log.L.Trace("status-waiting", "parent", parent, "child", child)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-c:
			// ok, try again
		}
	}
}

func (r *Registry) reapOnce(parent, child int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.reaped[parent]; ok && set.Contains(child) {
		return 0, false, errors.Wrapf(ErrAlreadyReaped, "pid=%d", child)
	}

	rec, ok := r.records[child]
	if !ok || rec.parent != parent || parent == noParent {
		return 0, false, errors.Wrapf(ErrNotAChild, "pid=%d parent=%d", child, parent)
	}

	if rec.state != Exited {
		return 0, false, nil
	}

	rec.state = Reaped
	delete(r.records, child)

	set, ok := r.reaped[parent]
	if !ok {
		set, _ = simplelru.NewLRU(reapedMemory, nil)
		r.reaped[parent] = set
	}

	set.Add(child, struct{}{})

	log.L.Trace("status-reaped", "parent", parent, "child", child, "code", rec.code)

	return rec.code, true, nil
}

// State reports where pid is in its lifecycle. ok is false once nothing
// about pid is retained.
func (r *Registry) State(pid int) (ProcessState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[pid]; ok {
		return rec.state, true
	}

	for _, set := range r.reaped {
		if set.Contains(pid) {
			return Reaped, true
		}
	}

	return 0, false
}

// Len is the number of live status records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records)
}
