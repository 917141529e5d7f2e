// Package server implements the real-time room chat service: the WebSocket
// transport, the hub that owns connection identities and room membership, the
// presence broadcaster, the message relay and the HTTP surface around them.
//
// Shared state lives on the hub goroutine only. Every connect, inbound event
// and disconnect runs there to completion; message store calls are the only
// work that leaves it, and they rejoin as queued tasks.
package server
