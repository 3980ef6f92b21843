package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://example.com/notify", "http://example.com/notify"},
		{"HTTP://Example.COM/notify", "http://example.com/notify"},
		{"http://example.com/notify/", "http://example.com/notify"},
		{"http://example.com/", "http://example.com"},
		{"http://example.com", "http://example.com"},
		{"http://example.com/Notify", "http://example.com/Notify"},
		{"http://example.com:80/x", "http://example.com/x"},
		{"https://example.com:443/x", "https://example.com/x"},
		{"http://example.com:8080/x", "http://example.com:8080/x"},
		{"http://example.com/x?b=2&a=1", "http://example.com/x?b=2&a=1"},
		{"http://example.com/x#frag", "http://example.com/x"},
		{"  http://example.com/x  ", "http://example.com/x"},
		{"http://[::1]:9000/x", "http://[::1]:9000/x"},
		{"http://[::1]/x", "http://[::1]/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSinkKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://a/notify?x=1", "http://a/notify"},
		{"http://a/notify?x=2", "http://a/notify"},
		{"HTTP://A:80/notify/?x=1#f", "http://a/notify"},
		{"https://a:8443/Notify", "https://a:8443/Notify"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SinkKey(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SinkKey("ftp://a/x")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestNormalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "example.com/x", "ftp://example.com/x", "http://", "http://:80/x", "://bad"} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizeURL(in)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestNormalizeURL_PathCaseSensitive(t *testing.T) {
	a, err := NormalizeURL("http://h/Path")
	require.NoError(t, err)
	b, err := NormalizeURL("http://h/path")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEntityMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		id      string
		want    bool
	}{
		{"Room1", "Room1", true},
		{"Room1", "Room10", false},
		{"Room1", "room1", false},
		{"Room.*", "Room1", true},
		{"Room.*", "Room", true},
		{"Room.*", "MyRoom1", false},
		{"Room[0-9]", "Room7", true},
		{"Room[0-9]", "Room77", false},
		{"a|b", "a", true},
		{"a|b", "ab", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.id, func(t *testing.T) {
			m, err := compileEntityPattern(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.match(tt.id))
		})
	}
}

func TestEntityMatcher_InvalidPattern(t *testing.T) {
	_, err := compileEntityPattern("Room[")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}
