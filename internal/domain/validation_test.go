package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParents = []string{"is-a-furry.dev", "furries.club"}

func TestEmailValidator_ValidateEmail(t *testing.T) {
	v := NewEmailValidator()
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"普通地址", "test@example.com", nil},
		{"子域名", "user@mail.example.com", nil},
		{"带点", "user.name@example.com", nil},
		{"大写转小写", "Alice@Example.COM", nil},
		{"缺少@", "testexample.com", ErrInvalidEmail},
		{"缺少域名", "test@", ErrInvalidEmail},
		{"连续点", "a..b@example.com", ErrInvalidEmail},
		{"单标签域名", "test@localhost", ErrInvalidDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateEmail(tt.email)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEmailValidator_ValidateLocalPart(t *testing.T) {
	v := NewEmailValidator()
	assert.NoError(t, v.ValidateLocalPart("fox"))
	assert.NoError(t, v.ValidateLocalPart("red.fox-42"))
	assert.ErrorIs(t, v.ValidateLocalPart(""), ErrInvalidLocalPart)
	assert.ErrorIs(t, v.ValidateLocalPart(".fox"), ErrInvalidLocalPart)
	assert.ErrorIs(t, v.ValidateLocalPart("fox--tail"), ErrInvalidLocalPart)
	assert.ErrorIs(t, v.ValidateLocalPart("Fox"), ErrInvalidLocalPart)
	long := make([]byte, MaxLocalPartLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, v.ValidateLocalPart(string(long)), ErrLocalPartTooLong)
}

func TestNormalizeSubdomain(t *testing.T) {
	t.Run("转换为小写并返回父域名", func(t *testing.T) {
		name, parent, err := NormalizeSubdomain(" Foo.Is-A-Furry.dev. ", testParents)
		require.NoError(t, err)
		assert.Equal(t, "foo.is-a-furry.dev", name)
		assert.Equal(t, "is-a-furry.dev", parent)
	})

	t.Run("允许下划线标签", func(t *testing.T) {
		name, parent, err := NormalizeSubdomain("_dmarc.foo.furries.club", testParents)
		require.NoError(t, err)
		assert.Equal(t, "_dmarc.foo.furries.club", name)
		assert.Equal(t, "furries.club", parent)
	})

	invalid := []string{
		"",
		"is-a-furry.dev",
		"foo.example.com",
		"foo!.is-a-furry.dev",
		"-foo.is-a-furry.dev",
		"a..is-a-furry.dev",
		"foois-a-furry.dev",
	}
	for _, name := range invalid {
		t.Run("拒绝 "+name, func(t *testing.T) {
			_, _, err := NormalizeSubdomain(name, testParents)
			assert.ErrorIs(t, err, ErrInvalidDomain)
		})
	}
}

func TestIsHostname(t *testing.T) {
	assert.True(t, IsHostname("example.com"))
	assert.True(t, IsHostname("aspmx.l.google.com."))
	assert.False(t, IsHostname("localhost"))
	assert.False(t, IsHostname("_srv.example.com"))
	assert.False(t, IsHostname("bad-.example.com"))
}

func TestValidateDestinationURL(t *testing.T) {
	u, err := ValidateDestinationURL("https://example.com/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Host)

	for _, raw := range []string{"", "example.com", "ftp://example.com", "javascript:alert(1)", "https://"} {
		_, err := ValidateDestinationURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "fox@example.com", ExtractAddress("Red Fox <fox@example.com>"))
	assert.Equal(t, "fox@example.com", ExtractAddress("fox@example.com"))
}
