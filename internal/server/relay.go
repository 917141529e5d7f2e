package server

import (
	"context"
	"errors"
	"log"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const errSendFailed = "Failed to send message"

// Relay owns the contract with the message store: a message is republished to
// its room only after the store has accepted it, exactly once, and a failure
// is reported to the sender alone.
type Relay struct {
	store   chat.MessageStore
	publish func(msg chat.Message)
	reject  func(c *Client, reason string)
}

// NewRelay creates a Relay persisting to store.
func NewRelay(store chat.MessageStore, publish func(chat.Message), reject func(*Client, string)) *Relay {
	return &Relay{store: store, publish: publish, reject: reject}
}

// persist hands msg to the store. It runs off the hub goroutine.
func (r *Relay) persist(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if r.store == nil {
		return chat.Message{}, errors.New("message store unavailable")
	}
	return r.store.Save(ctx, msg)
}

// complete finishes a send on the hub goroutine.
func (r *Relay) complete(sender *Client, saved chat.Message, err error) {
	if err != nil {
		log.Printf("Error persisting message from %s: %v", sender.addr, err)
		r.reject(sender, errSendFailed)
		return
	}
	r.publish(saved)
}
