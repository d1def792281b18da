package domain

import "context"

// BrowserIdentity names an installed browser
type BrowserIdentity struct {
	Name   string `json:"name"`
	Binary string `json:"binary,omitempty"`
}

func (b BrowserIdentity) String() string {
	return b.Name
}

// BrowserProvider opens a browser for interactive sign-in
type BrowserProvider interface {
	// Supports checks if the provider can drive the browser
	Supports(id BrowserIdentity) bool

	// Launch opens the browser at signInURL
	Launch(ctx context.Context, id BrowserIdentity, signInURL string) (BrowserSession, error)
}

// BrowserSession is a browser opened for sign-in
type BrowserSession interface {
	// Cookies harvests the cookies of the session. Called after the user
	// reported completion.
	Cookies(ctx context.Context) ([]Cookie, error)

	Close() error
}

// BrowserDetector finds the browsers installed on this machine
type BrowserDetector interface {
	// DefaultBrowser returns the OS default browser, if it can be determined
	DefaultBrowser() (BrowserIdentity, bool)

	// Installed returns the browsers found on this machine
	Installed() []BrowserIdentity
}

// Cipher encrypts cookie jars at rest
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}
