package domain

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	cookieJarHeader = "# Netscape HTTP Cookie File"
	httpOnlyPrefix  = "#HttpOnly_"
)

// Cookie is one browser session cookie
type Cookie struct {
	Domain   string
	Path     string
	Name     string
	Value    string
	Secure   bool
	HTTPOnly bool
	// Expires is zero for session cookies
	Expires time.Time
}

// IncludeSubdomains follows the Netscape convention of a leading dot
func (c Cookie) IncludeSubdomains() bool {
	return strings.HasPrefix(c.Domain, ".")
}

// MatchesDomain checks if the cookie belongs to domain or one of its subdomains
func (c Cookie) MatchesDomain(domain string) bool {
	host := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// FilterCookies keeps the cookies of the given domains
func FilterCookies(cookies []Cookie, domains []string) []Cookie {
	var kept []Cookie
	for _, c := range cookies {
		for _, d := range domains {
			if c.MatchesDomain(d) {
				kept = append(kept, c)
				break
			}
		}
	}
	return kept
}

// MarshalCookieJar serializes cookies in the Netscape cookie file format
func MarshalCookieJar(cookies []Cookie) []byte {
	var buf bytes.Buffer
	buf.WriteString(cookieJarHeader + "\n")
	for _, c := range cookies {
		domain := c.Domain
		if c.HTTPOnly {
			domain = httpOnlyPrefix + domain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		var expires int64
		if !c.Expires.IsZero() {
			expires = c.Expires.Unix()
		}
		fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, netscapeBool(c.IncludeSubdomains()), path, netscapeBool(c.Secure), expires, c.Name, c.Value)
	}
	return buf.Bytes()
}

// ParseCookieJar parses a Netscape cookie file
func ParseCookieJar(data []byte) ([]Cookie, error) {
	var cookies []Cookie
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("cookie jar line %d: expected 7 fields, got %d", lineNo, len(fields))
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cookie jar line %d: invalid expiry %q", lineNo, fields[4])
		}
		c := Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HTTPOnly: httpOnly,
		}
		if expires > 0 {
			c.Expires = time.Unix(expires, 0)
		}
		cookies = append(cookies, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}

func netscapeBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// CookieRecord is an encrypted cookie jar persisted for one service domain
type CookieRecord struct {
	Domain      string    `json:"domain" gorm:"primaryKey"`
	Blob        []byte    `json:"-" gorm:"not null"`
	CookieCount int       `json:"cookie_count"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (CookieRecord) TableName() string {
	return "cookie_records"
}

// Expired checks if the record is older than the retention window
func (r *CookieRecord) Expired(now time.Time, retention time.Duration) bool {
	return now.Sub(r.CreatedAt) >= retention
}

// Credentials is a handle to a stored, still encrypted cookie set. The
// plaintext is only produced on demand by the store that issued it.
type Credentials struct {
	Domain      string
	CookieCount int
	CreatedAt   time.Time
	blob        []byte
}

// NewCredentials wraps an encrypted record
func NewCredentials(rec *CookieRecord) *Credentials {
	return &Credentials{
		Domain:      rec.Domain,
		CookieCount: rec.CookieCount,
		CreatedAt:   rec.CreatedAt,
		blob:        rec.Blob,
	}
}

// Sealed returns the encrypted jar
func (c *Credentials) Sealed() []byte {
	return c.blob
}
