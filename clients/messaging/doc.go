// Package messaging provides utilities for sending and receiving messages.
//
// The only provider in this package is LocalProvider, which serves the "chan"
// scheme: it delivers messages between goroutines of one process over
// unbuffered channels keyed by destination URL. Call Setup before use.
// No network protocol (such as AMQP or MQTT) is implemented here.
package messaging
