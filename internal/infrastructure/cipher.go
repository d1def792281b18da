package infrastructure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	sealPrefix = "axc1"
	keySize    = 32
	saltSize   = 16

	keyringUser      = "cookie-key"
	pbkdf2Iterations = 100000
)

var (
	keyringGet = keyring.Get
	keyringSet = keyring.Set
	randRead   = rand.Read
)

// AESCipher seals cookie jars with AES-256-GCM. Output is the prefix, the
// nonce and the ciphertext.
type AESCipher struct {
	aead cipher.AEAD
}

// NewAESCipher creates a cipher from a 32 byte key
func NewAESCipher(key []byte) (*AESCipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESCipher{aead: aead}, nil
}

func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sealPrefix)+len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, sealPrefix...)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

func (c *AESCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < len(sealPrefix) || string(ciphertext[:len(sealPrefix)]) != sealPrefix {
		return nil, errors.New("unrecognized cookie blob format")
	}
	data := ciphertext[len(sealPrefix):]
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}

// UnavailableCipher refuses every operation. It is used when no key could be
// obtained, so cookies are never written in the clear.
type UnavailableCipher struct {
	Reason error
}

func (c UnavailableCipher) Encrypt([]byte) ([]byte, error) {
	return nil, fmt.Errorf("cookie encryption unavailable: %w", c.Reason)
}

func (c UnavailableCipher) Decrypt([]byte) ([]byte, error) {
	return nil, fmt.Errorf("cookie encryption unavailable: %w", c.Reason)
}

// LoadCipher builds the cookie cipher. The key comes from the OS keyring,
// created on first use. Without a keyring it is derived with PBKDF2 from the
// local user identity and a salt kept in cfg.KeyFile.
func LoadCipher(cfg *domain.CookiesConfig, fs afero.Fs, logger *zap.Logger) domain.Cipher {
	key, err := keyringKey(cfg.KeyringService)
	if err == nil {
		var c *AESCipher
		if c, err = NewAESCipher(key); err == nil {
			logger.Debug("Cookie key loaded from keyring", zap.String("service", cfg.KeyringService))
			return c
		}
		err = fmt.Errorf("keyring key rejected: %w", err)
	}
	logger.Warn("Keyring unavailable, deriving cookie key from salt file",
		zap.String("key_file", cfg.KeyFile),
		zap.Error(err))

	key, err = derivedKey(fs, cfg.KeyFile)
	if err != nil {
		logger.Error("No cookie key available, stored cookies are disabled", zap.Error(err))
		return UnavailableCipher{Reason: err}
	}
	c, err := NewAESCipher(key)
	if err != nil {
		return UnavailableCipher{Reason: err}
	}
	return c
}

func keyringKey(service string) ([]byte, error) {
	encoded, err := keyringGet(service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		key := make([]byte, keySize)
		if _, err := randRead(key); err != nil {
			return nil, err
		}
		if err := keyringSet(service, keyringUser, hex.EncodeToString(key)); err != nil {
			return nil, fmt.Errorf("failed to store key in keyring: %w", err)
		}
		return key, nil
	}
	if err != nil {
		return nil, err
	}

	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid key in keyring: %w", err)
	}
	return key, nil
}

func derivedKey(fs afero.Fs, saltPath string) ([]byte, error) {
	if saltPath == "" {
		return nil, errors.New("no key file configured")
	}

	salt, err := afero.ReadFile(fs, saltPath)
	if errors.Is(err, os.ErrNotExist) {
		salt = make([]byte, saltSize)
		if _, err := randRead(salt); err != nil {
			return nil, err
		}
		if err := fs.MkdirAll(filepath.Dir(saltPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
		if err := afero.WriteFile(fs, saltPath, salt, 0600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("key file %s is truncated", saltPath)
	}

	return pbkdf2.Key([]byte(machineSecret()), salt, pbkdf2Iterations, keySize, sha256.New), nil
}

func machineSecret() string {
	host, _ := os.Hostname()
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Uid + ":" + u.Username
	}
	return "axolutly|" + host + "|" + name
}
