// Package auth holds the identity of the signed-in user. The phone/OTP
// handshake lives outside this module; it reports results through SetIdentity.
package auth

import (
	"sync"
)

// Authenticator exposes the current identity, if any.
type Authenticator interface {
	CurrentIdentity() (string, bool)
}

// Context tracks the signed-in identity and notifies listeners on change.
type Context struct {
	mu        sync.RWMutex
	identity  string
	listeners []func(identity string, signedIn bool)
}

// NewContext creates a signed-out context.
func NewContext() *Context {
	return &Context{}
}

// Static returns a context signed in as identity, or signed out when empty.
func Static(identity string) *Context {
	c := NewContext()
	c.identity = identity
	return c
}

// CurrentIdentity implements Authenticator.
func (c *Context) CurrentIdentity() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.identity != ""
}

// SetIdentity signs in as identity. An empty identity signs out.
func (c *Context) SetIdentity(identity string) {
	c.mu.Lock()
	c.identity = identity
	listeners := append([]func(string, bool){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(identity, identity != "")
	}
}

// SignOut clears the identity.
func (c *Context) SignOut() {
	c.SetIdentity("")
}

// OnChange registers a listener for sign-in state changes.
func (c *Context) OnChange(fn func(identity string, signedIn bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
