package discovery

import (
	"errors"
	"time"
)

// Service parameters.
const (
	ServiceType = "_rsaudio._tcp"
	Domain      = "local."

	// DefaultPort is the MQTT port announced when none is given.
	DefaultPort = 1883

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	DefaultBrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyBroker  = "broker"
	TXTKeyBase    = "base"
	TXTKeyVersion = "v"
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrNotFound            = errors.New("no broker found")
	ErrIncompatible        = errors.New("incompatible protocol version")
)

// BrokerInfo is what an announcement carries.
type BrokerInfo struct {
	// InstanceName is the DNS-SD instance, e.g. "studio-controller".
	InstanceName string

	// BrokerURL is the MQTT broker address. Optional.
	BrokerURL string

	// BaseTopic is the topic prefix. Required.
	BaseTopic string

	// Version is the protocol version. Required.
	Version string

	// Port is the advertised port; DefaultPort when zero.
	Port int
}

// Service is a resolved announcement.
type Service struct {
	InstanceName string
	Host         string
	Port         int
	Addresses    []string

	BrokerURL string
	BaseTopic string
	Version   string
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	Interface string

	// TTL overrides the record TTL.
	TTL time.Duration
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string
}
