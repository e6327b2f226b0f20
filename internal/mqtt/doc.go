// Package mqtt bridges an MQTT broker into Wren's agent-message
// channel. Messages arriving on the configured topic filters become
// agent-initiated messages on the event bus, so any connected chat
// client sees them as notifications.
//
// The bridge uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection, and re-subscribes on every
// (re-)connect. An inbound rate limit protects clients from a chatty
// topic.
package mqtt
