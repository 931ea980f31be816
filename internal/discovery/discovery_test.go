package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
)

func TestAnnouncement_TXT(t *testing.T) {
	a := Announcement{Instance: "gophtex", Version: "1.2.0", NodeID: "node-a", Port: 8080}
	assert.Equal(t, []string{"version=1.2.0", "node=node-a", "scheme=http"}, a.txt())

	a.Scheme = "https"
	assert.Contains(t, a.txt(), "scheme=https")
}

func TestEndpointFromEntry(t *testing.T) {
	tests := []struct {
		entry *zeroconf.ServiceEntry
		want  Endpoint
		name  string
		ok    bool
	}{
		{
			name: "ipv4 with txt",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "gophtex"},
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.10")},
				Port:          8080,
				Text:          []string{"version=dev", "node=n1", "scheme=https"},
			},
			want: Endpoint{Instance: "gophtex", NodeID: "n1", Version: "dev", URL: "https://192.168.1.10:8080"},
			ok:   true,
		},
		{
			name: "ipv6 without txt",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "office"},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
				Port:          9000,
			},
			want: Endpoint{Instance: "office", URL: "http://[fe80::1]:9000"},
			ok:   true,
		},
		{
			name:  "no address",
			entry: &zeroconf.ServiceEntry{Port: 8080},
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := endpointFromEntry(tt.entry)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
