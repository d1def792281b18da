package infrastructure

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAESCipher_RoundTrip(t *testing.T) {
	c, err := NewAESCipher(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	plaintext := []byte("# Netscape HTTP Cookie File\n")
	sealed, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(sealed, []byte("axc1")))
	assert.NotContains(t, string(sealed), "Netscape")

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAESCipher_RejectsTampering(t *testing.T) {
	c, err := NewAESCipher(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	sealed, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = c.Decrypt(sealed)
	assert.Error(t, err)

	_, err = c.Decrypt([]byte("plain text"))
	assert.Error(t, err)

	other, err := NewAESCipher(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)
	sealed, err = c.Encrypt([]byte("secret"))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)
}

func TestNewAESCipher_InvalidKey(t *testing.T) {
	_, err := NewAESCipher([]byte("short"))
	assert.Error(t, err)
}

func TestLoadCipher_Keyring(t *testing.T) {
	keyring.MockInit()
	cfg := &domain.CookiesConfig{KeyringService: "axolutly-test", KeyFile: "/keys/salt"}
	fs := afero.NewMemMapFs()

	first := LoadCipher(cfg, fs, zap.NewNop())
	require.IsType(t, &AESCipher{}, first)
	sealed, err := first.Encrypt([]byte("jar"))
	require.NoError(t, err)

	// The key created on first use is found again
	second := LoadCipher(cfg, fs, zap.NewNop())
	opened, err := second.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("jar"), opened)

	exists, _ := afero.Exists(fs, "/keys/salt")
	assert.False(t, exists)
}

func TestLoadCipher_RejectedKeyringKey(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("axolutly-short", keyringUser, "abcd"))

	core, logs := observer.New(zapcore.WarnLevel)
	cfg := &domain.CookiesConfig{KeyringService: "axolutly-short", KeyFile: "/keys/salt"}
	c := LoadCipher(cfg, afero.NewMemMapFs(), zap.New(core))

	require.IsType(t, &AESCipher{}, c)
	warnings := logs.FilterMessage("Keyring unavailable, deriving cookie key from salt file").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	require.Contains(t, fields, "error")
	assert.Contains(t, fields["error"], "keyring key rejected")
}

func TestLoadCipher_SaltFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	defer keyring.MockInit()

	cfg := &domain.CookiesConfig{KeyringService: "axolutly-test", KeyFile: "/keys/salt"}
	fs := afero.NewMemMapFs()

	first := LoadCipher(cfg, fs, zap.NewNop())
	require.IsType(t, &AESCipher{}, first)
	salt, err := afero.ReadFile(fs, "/keys/salt")
	require.NoError(t, err)
	assert.Len(t, salt, 16)

	sealed, err := first.Encrypt([]byte("jar"))
	require.NoError(t, err)
	opened, err := LoadCipher(cfg, fs, zap.NewNop()).Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("jar"), opened)
}

func TestLoadCipher_Unavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	defer keyring.MockInit()

	cfg := &domain.CookiesConfig{KeyringService: "axolutly-test", KeyFile: "/keys/salt"}
	c := LoadCipher(cfg, afero.NewReadOnlyFs(afero.NewMemMapFs()), zap.NewNop())

	require.IsType(t, UnavailableCipher{}, c)
	_, err := c.Encrypt([]byte("jar"))
	assert.Error(t, err)
	_, err = c.Decrypt([]byte("axc1..."))
	assert.Error(t, err)
}
