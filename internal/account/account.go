// Package account aggregates one logged-in patron: the session plus the
// per-session cached collections (messages, bookbag names). Caches are
// filled lazily and invalidated wholesale on logout; nothing here
// survives a logout except the stored credential, which lives in the
// credential store.
package account

import (
	"context"
	"sync"

	"hemlock/internal/auth"
	"hemlock/internal/gateway"
	"hemlock/internal/wire"
)

const actorService = "open-ils.actor"

// Account is the aggregate owning a session and its cached collections.
type Account struct {
	Session *auth.Session
	gw      *gateway.Client

	mu       sync.Mutex
	messages []*wire.Object
	hasMsgs  bool
	bookbags []string
	hasBags  bool
}

func New(gw *gateway.Client, sess *auth.Session) *Account {
	return &Account{Session: sess, gw: gw}
}

// Messages returns the patron's message list, fetched once per session.
func (a *Account) Messages(ctx context.Context) ([]*wire.Object, error) {
	a.mu.Lock()
	if a.hasMsgs {
		msgs := a.messages
		a.mu.Unlock()
		return msgs, nil
	}
	a.mu.Unlock()

	var msgs []*wire.Object
	err := a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.gw.Request(ctx, actorService, "open-ils.actor.message.retrieve",
			token, a.Session.UserID())
		if err != nil {
			return err
		}
		msgs, err = arrayOrEmpty(resp)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.messages = msgs
	a.hasMsgs = true
	a.mu.Unlock()
	return msgs, nil
}

// BookbagNames returns the patron's list names, fetched once per
// session.
func (a *Account) BookbagNames(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	if a.hasBags {
		bags := a.bookbags
		a.mu.Unlock()
		return bags, nil
	}
	a.mu.Unlock()

	var names []string
	err := a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.gw.Request(ctx, actorService, "open-ils.actor.container.retrieve_by_class",
			token, a.Session.UserID(), "biblio", "bookbag")
		if err != nil {
			return err
		}
		objs, err := arrayOrEmpty(resp)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, obj := range objs {
			names = append(names, obj.GetString("name"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.bookbags = names
	a.hasBags = true
	a.mu.Unlock()
	return names, nil
}

// Address returns the patron's mailing address, or nil when none is on
// file (a legitimate nothing, not an error).
func (a *Account) Address(ctx context.Context) (*wire.Object, error) {
	var addr *wire.Object
	err := a.Session.WithRetry(ctx, func(ctx context.Context, token string) error {
		resp, err := a.gw.Request(ctx, actorService, "open-ils.actor.user.address.retrieve",
			token, a.Session.UserID())
		if err != nil {
			return err
		}
		addr, err = resp.OptionalObject()
		return err
	})
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// arrayOrEmpty reads a list payload, tolerating the server's two ways of
// saying "nothing here": an absent payload, or the empty-object wire form
// some list methods emit instead of an empty list.
func arrayOrEmpty(resp *gateway.Response) ([]*wire.Object, error) {
	if resp.Failed() {
		return nil, resp.Err
	}
	switch resp.Type {
	case gateway.PayloadEmpty:
		return nil, nil
	case gateway.PayloadObject:
		if obj, err := resp.Object(); err == nil && obj.Len() == 0 {
			return nil, nil
		}
	}
	return resp.Array()
}

// Invalidate drops every per-session cache.
func (a *Account) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
	a.hasMsgs = false
	a.bookbags = nil
	a.hasBags = false
}

// Logout ends the session and invalidates caches; stored credentials
// are untouched.
func (a *Account) Logout(ctx context.Context) {
	a.Session.Logout(ctx)
	a.Invalidate()
}
