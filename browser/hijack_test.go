package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
)

func TestIsTrackerHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"stats.g.doubleclick.net", true},
		{"WWW.Google-Analytics.com", true},
		{"example.com", false},
		{"notdoubleclick.net", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, isTrackerHost(tt.host))
		})
	}
}

func TestResolveBlocked(t *testing.T) {
	blocked := resolveBlocked([]string{"Image", "Font", "Script", "Bogus"})

	assert.Len(t, blocked, 2)
	assert.Contains(t, blocked, proto.NetworkResourceTypeImage)
	assert.Contains(t, blocked, proto.NetworkResourceTypeFont)
	assert.NotContains(t, blocked, proto.NetworkResourceTypeScript)
}
