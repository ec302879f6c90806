// Package bridge connects a KNX tunneling client to an MQTT broker.
//
// # Message flow
//
// Bus to broker: every observed group write or response is published as
// a retained JSON state message on pknx/state/{ga}, where the group
// address is URL-encoded ("1/2/3" becomes "1%2F2%2F3"). Addresses with
// a configured datapoint type additionally carry the decoded value.
//
// Broker to bus: command messages on pknx/command/{ga} trigger group
// writes, reads, or toggles. Every command is answered with an ack on
// pknx/ack/{ga}, carrying the read result or an error code.
//
// Health: status is published to pknx/health every interval, retained,
// with an "offline" Last Will registered at the broker.
//
// The bridge depends only on interfaces: Publisher for MQTT and
// GroupClient for the bus, which *tunnel.Tunnel satisfies directly.
package bridge
