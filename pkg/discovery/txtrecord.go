package discovery

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/rslogger/rsaudio/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeBrokerTXT creates the TXT records for an announcement.
func EncodeBrokerTXT(info *BrokerInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyBase:    info.BaseTopic,
		TXTKeyVersion: info.Version,
	}
	if info.BrokerURL != "" {
		txt[TXTKeyBroker] = info.BrokerURL
	}
	return txt
}

// DecodeBrokerTXT parses announcement TXT records.
func DecodeBrokerTXT(txt TXTRecordMap) (*BrokerInfo, error) {
	info := &BrokerInfo{BrokerURL: txt[TXTKeyBroker]}

	var ok bool
	if info.BaseTopic, ok = txt[TXTKeyBase]; !ok || info.BaseTopic == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBase)
	}
	if info.Version, ok = txt[TXTKeyVersion]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if !version.Accepts(info.Version) {
		return nil, fmt.Errorf("%w: %s", ErrIncompatible, info.Version)
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// ResolveBrokerURL returns the announced broker, or one built from the
// service's first address and port.
func (s *Service) ResolveBrokerURL() (string, error) {
	if s.BrokerURL != "" {
		return s.BrokerURL, nil
	}
	if len(s.Addresses) == 0 {
		return "", fmt.Errorf("%w: %s has no address", ErrNotFound, s.InstanceName)
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return "tcp://" + net.JoinHostPort(s.Addresses[0], strconv.Itoa(port)), nil
}

func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}
