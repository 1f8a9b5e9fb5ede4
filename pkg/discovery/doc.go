// Package discovery announces and finds the message broker on the local
// network using mDNS/DNS-SD.
//
// The controller host advertises one _rsaudio._tcp service whose TXT record
// names the broker and topic prefix:
//
//	broker=tcp://10.0.0.5:1883
//	base=rslogger/audio
//	v=1.0
//
// A module started without a broker URL browses for the service and connects
// to the first compatible announcement. When the broker key is absent the
// service's own address and port are used.
package discovery
