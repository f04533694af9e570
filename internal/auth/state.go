package auth

import (
	"context"
	"sync"
	"time"
)

// stateHub fans auth-state changes out to the subscribers of one user. Each
// subscriber has a one-slot buffer holding only the newest state, so a slow
// reader never blocks a sign in and never sees stale states queued up.
type stateHub struct {
	mu     sync.Mutex
	users  map[string]*userStates
	nextID int
	now    func() time.Time
}

type userStates struct {
	current State
	subs    map[int]chan State
}

func newStateHub(now func() time.Time) *stateHub {
	return &stateHub{
		users: make(map[string]*userStates),
		now:   now,
	}
}

// entry must be called with h.mu held.
func (h *stateHub) entry(uid string) *userStates {
	u, ok := h.users[uid]
	if !ok {
		u = &userStates{current: State{At: h.now()}, subs: make(map[int]chan State)}
		h.users[uid] = u
	}
	return u
}

func (h *stateHub) subscribe(ctx context.Context, uid string) (<-chan State, func()) {
	h.mu.Lock()
	u := h.entry(uid)
	id := h.nextID
	h.nextID++
	ch := make(chan State, 1)
	ch <- u.current
	u.subs[id] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(u.subs, id)
			close(ch)
			if len(u.subs) == 0 && !u.current.SignedIn() && h.users[uid] == u {
				delete(h.users, uid)
			}
			h.mu.Unlock()
			close(done)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}
	return ch, cancel
}

// publish records the state of uid; a nil user means signed out.
func (h *stateHub) publish(uid string, user *User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishLocked(h.entry(uid), user)
}

func (h *stateHub) publishLocked(u *userStates, user *User) {
	var cp *User
	if user != nil {
		c := *user
		cp = &c
	}
	u.current = State{User: cp, At: h.now()}

	for _, ch := range u.subs {
		select {
		case <-ch:
		default:
		}
		ch <- u.current
	}
}

// observe marks user signed in after a token of theirs verified, unless the
// hub already says so.
func (h *stateHub) observe(user User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := h.entry(user.UID)
	if !u.current.SignedIn() {
		h.publishLocked(u, &user)
	}
}

func (h *stateHub) snapshot(uid string) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u, ok := h.users[uid]; ok {
		return u.current
	}
	return State{At: h.now()}
}
