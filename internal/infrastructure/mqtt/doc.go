// Package mqtt wraps the paho MQTT client with connection management,
// automatic re-subscription on reconnect, and Last Will support for
// the bridge's offline detection.
package mqtt
