package waiter

import (
	"container/list"
	"sync"

	"github.com/evanphx/userprog/log"
)

type EventType uint64

// Waiter fans an event out to every registered Event whose mask matches.
// The zero value is ready to use.
type Waiter struct {
	mu sync.RWMutex

	count   int
	waiters list.List
}

type Event struct {
	elem *list.Element

	Mask     EventType
	Context  interface{}
	Callback func(e *Event)
}

func (w *Waiter) Register(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++

	e.elem = w.waiters.PushBack(e)
}

func triggerChan(e *Event) {
	c := e.Context.(chan struct{})

	select {
	case c <- struct{}{}:
	default:
	}
}

// RegisterChannel arranges for a non-blocking send on c whenever an event
// in mask fires. c should be buffered so a notification that lands between
// a check and a receive is not lost.
func (w *Waiter) RegisterChannel(mask EventType, c chan struct{}) *Event {
	e := &Event{
		Callback: triggerChan,
		Context:  c,
		Mask:     mask,
	}

	w.Register(e)

	return e
}

func (w *Waiter) Unregister(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e.elem == nil {
		return
	}

	w.count--

	w.waiters.Remove(e.elem)
	e.elem = nil
}

func (w *Waiter) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.count
}

func (w *Waiter) Notify(mask EventType) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	log.L.Trace("waiters-notify", "count", w.count)

	for it := w.waiters.Front(); it != nil; it = it.Next() {
		e := it.Value.(*Event)
		log.L.Trace("waiters-walk", "event-mask", e.Mask, "notify-mask", mask, "match", mask&e.Mask)
		if mask&e.Mask != 0 {
			e.Callback(e)
		}
	}
}
