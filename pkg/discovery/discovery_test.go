package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerTXT_RoundTrip(t *testing.T) {
	info := &BrokerInfo{BrokerURL: "tcp://10.0.0.5:1883", BaseTopic: "studio/audio", Version: "1.0"}

	strs := TXTRecordsToStrings(EncodeBrokerTXT(info))
	assert.Equal(t, []string{"base=studio/audio", "broker=tcp://10.0.0.5:1883", "v=1.0"}, strs)

	got, err := DecodeBrokerTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, info.BrokerURL, got.BrokerURL)
	assert.Equal(t, info.BaseTopic, got.BaseTopic)
	assert.Equal(t, info.Version, got.Version)
}

func TestDecodeBrokerTXT_Errors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		err  error
	}{
		{"missing base", TXTRecordMap{"v": "1.0"}, ErrMissingRequired},
		{"empty base", TXTRecordMap{"base": "", "v": "1.0"}, ErrMissingRequired},
		{"missing version", TXTRecordMap{"base": "b"}, ErrMissingRequired},
		{"newer major", TXTRecordMap{"base": "b", "v": "2.0"}, ErrIncompatible},
		{"garbage version", TXTRecordMap{"base": "b", "v": "x"}, ErrIncompatible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBrokerTXT(tt.txt)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "url=tcp://h:1=2", ""})
	assert.Equal(t, TXTRecordMap{"a": "1", "flag": "", "url": "tcp://h:1=2"}, txt)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("studio"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInstanceNameTooLong)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", 64)), ErrInstanceNameTooLong)
}

func TestService_ResolveBrokerURL(t *testing.T) {
	s := &Service{BrokerURL: "ssl://broker:8883"}
	url, err := s.ResolveBrokerURL()
	require.NoError(t, err)
	assert.Equal(t, "ssl://broker:8883", url)

	s = &Service{Addresses: []string{"10.0.0.5"}, Port: 1884}
	url, err = s.ResolveBrokerURL()
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.5:1884", url)

	s = &Service{Addresses: []string{"fe80::1"}}
	url, err = s.ResolveBrokerURL()
	require.NoError(t, err)
	assert.Equal(t, "tcp://[fe80::1]:1883", url)

	_, err = (&Service{InstanceName: "x"}).ResolveBrokerURL()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
