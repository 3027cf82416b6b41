package ws

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Credentials are a username and password bound to a host scope.
// An empty Host matches any host; an empty Port matches any port.
type Credentials struct {
	Username string
	Password string
	Host     string
	Port     string
}

// NewCredentials scopes username and password to the host (and port, if
// given) of scopeURL. An empty scopeURL matches every host.
func NewCredentials(username, password, scopeURL string) (Credentials, error) {
	creds := Credentials{Username: username, Password: password}
	if scopeURL == "" {
		return creds, nil
	}

	u, err := url.Parse(scopeURL)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %q: %v", ErrInvalidScope, scopeURL, err)
	}
	if u.Host == "" {
		return Credentials{}, fmt.Errorf("%w: %q has no host", ErrInvalidScope, scopeURL)
	}

	creds.Host = u.Hostname()
	creds.Port = u.Port()
	return creds, nil
}

// Matches reports whether the credentials apply to u.
func (c Credentials) Matches(u *url.URL) bool {
	if c.Host == "" {
		return true
	}
	if !strings.EqualFold(c.Host, u.Hostname()) {
		return false
	}
	if c.Port == "" {
		return true
	}
	return c.Port == portOf(u)
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch u.Scheme {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// Authorization answers the strongest challenge it understands among the
// WWW-Authenticate values. Digest is preferred over Basic. It returns an
// empty string when no challenge is supported.
func Authorization(creds Credentials, challenges []string, method string, u *url.URL) (string, error) {
	var basic bool
	for _, challenge := range challenges {
		scheme, params := ParseChallenge(challenge)
		switch scheme {
		case "digest":
			auth := &DigestAuth{
				Username: creds.Username,
				Password: creds.Password,
				Realm:    params["realm"],
				Nonce:    params["nonce"],
				URI:      u.RequestURI(),
				Qop:      params["qop"],
				Opaque:   params["opaque"],
				Method:   method,
			}
			if auth.Qop != "" {
				// prefer "auth" qop
				if !strings.Contains(auth.Qop, "auth") {
					return "", fmt.Errorf("unsupported digest qop %q", auth.Qop)
				}
				auth.Qop = "auth"
				auth.Nc = "00000001"
				cnonce, err := GenerateCnonce()
				if err != nil {
					return "", err
				}
				auth.Cnonce = cnonce
			}
			return auth.BuildAuthorizationHeader(), nil
		case "basic":
			basic = true
		}
	}

	if basic {
		return BasicAuthorization(creds.Username, creds.Password), nil
	}
	return "", nil
}

// BasicAuthorization builds a Basic Authorization header value.
func BasicAuthorization(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// ParseChallenge splits a WWW-Authenticate value into its lower-cased
// scheme and its key="value" parameters.
func ParseChallenge(header string) (string, map[string]string) {
	header = strings.TrimSpace(header)
	scheme, rest, _ := strings.Cut(header, " ")
	params := make(map[string]string)

	for _, part := range splitParams(rest) {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "="); idx != -1 {
			key := strings.ToLower(strings.TrimSpace(part[:idx]))
			value := strings.TrimSpace(part[idx+1:])
			params[key] = strings.Trim(value, `"`)
		}
	}

	return strings.ToLower(scheme), params
}

// splitParams splits on commas that are not inside quotes.
func splitParams(s string) []string {
	var (
		parts  []string
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// DigestAuth contains the parameters needed for digest authentication
type DigestAuth struct {
	Username string
	Password string
	Realm    string
	Nonce    string
	URI      string
	Qop      string
	Nc       string
	Cnonce   string
	Opaque   string
	Method   string
}

// ComputeDigestResponse calculates the digest response hash
func (d *DigestAuth) ComputeDigestResponse() string {
	ha1 := md5Hash(fmt.Sprintf("%s:%s:%s", d.Username, d.Realm, d.Password))
	ha2 := md5Hash(fmt.Sprintf("%s:%s", d.Method, d.URI))

	if d.Qop == "auth" {
		return md5Hash(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, d.Nonce, d.Nc, d.Cnonce, d.Qop, ha2))
	}
	return md5Hash(fmt.Sprintf("%s:%s:%s", ha1, d.Nonce, ha2))
}

// BuildAuthorizationHeader creates the Authorization header value
func (d *DigestAuth) BuildAuthorizationHeader() string {
	parts := []string{
		fmt.Sprintf(`username="%s"`, d.Username),
		fmt.Sprintf(`realm="%s"`, d.Realm),
		fmt.Sprintf(`nonce="%s"`, d.Nonce),
		fmt.Sprintf(`uri="%s"`, d.URI),
		fmt.Sprintf(`response="%s"`, d.ComputeDigestResponse()),
	}

	if d.Qop != "" {
		parts = append(parts,
			fmt.Sprintf(`qop=%s`, d.Qop),
			fmt.Sprintf(`nc=%s`, d.Nc),
			fmt.Sprintf(`cnonce="%s"`, d.Cnonce),
		)
	}

	if d.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, d.Opaque))
	}

	return "Digest " + strings.Join(parts, ", ")
}

// GenerateCnonce generates a random client nonce
func GenerateCnonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func md5Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
