// Package typing issues typing start/stop signals for one input, with a
// stop sent automatically after a period of inactivity.
package typing

import (
	"sync"
	"time"

	"github.com/matheus3301/teamchat/internal/models"
)

// DefaultStopAfter is the inactivity window before typing{false} is sent.
const DefaultStopAfter = 3 * time.Second

// Sender delivers typing frames; realtime.Manager satisfies it.
type Sender interface {
	SendTyping(channel models.ChannelID, typing bool) bool
}

// Notifier tracks whether a start was issued and owns the inactivity timer.
// Every path that ends typing stops the timer first, and a timer that fires
// after being superseded does nothing.
type Notifier struct {
	sender    Sender
	stopAfter time.Duration

	mu      sync.Mutex
	channel models.ChannelID
	active  bool
	timer   *time.Timer
	gen     uint64
	closed  bool
}

// New returns a Notifier. stopAfter <= 0 selects DefaultStopAfter.
func New(sender Sender, stopAfter time.Duration) *Notifier {
	if stopAfter <= 0 {
		stopAfter = DefaultStopAfter
	}
	return &Notifier{sender: sender, stopAfter: stopAfter}
}

// Input records a keystroke in channel. The first keystroke sends
// typing{true}; each keystroke re-arms the inactivity timer. Typing in a
// different channel ends typing in the previous one first.
func (n *Notifier) Input(channel models.ChannelID) {
	if channel == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if n.active && n.channel != channel {
		n.stopLocked()
	}
	if !n.active {
		n.sender.SendTyping(channel, true)
		n.active = true
		n.channel = channel
	}

	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.stopAfter, func() { n.expire(gen) })
}

// Sent ends typing because the message was submitted.
func (n *Notifier) Sent() { n.stop() }

// Blur ends typing because the input lost focus.
func (n *Notifier) Blur() { n.stop() }

// Close ends typing and ignores further input.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.closed = true
}

// Active returns the channel a start was issued for.
func (n *Notifier) Active() (models.ChannelID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channel, n.active
}

func (n *Notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *Notifier) stopLocked() {
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if n.active {
		n.sender.SendTyping(n.channel, false)
		n.active = false
	}
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen || !n.active {
		return
	}
	n.timer = nil
	n.sender.SendTyping(n.channel, false)
	n.active = false
}
