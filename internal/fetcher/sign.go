package fetcher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"
)

// Credentials authenticate requests against KuCoin's v2 key scheme.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
	KeyVersion string
}

// Empty reports whether no credentials were supplied.
func (c Credentials) Empty() bool {
	return c.Key == "" && c.Secret == "" && c.Passphrase == ""
}

// Signer adds KC-API-* headers to outgoing requests.
type Signer struct {
	creds Credentials
	now   func() time.Time
}

// NewSigner returns a signer bound to creds.
func NewSigner(creds Credentials) *Signer {
	if creds.KeyVersion == "" {
		creds.KeyVersion = "2"
	}
	return &Signer{creds: creds, now: time.Now}
}

// Sign stamps req with a fresh timestamp and signature over timestamp+method+requestURI.
func (s *Signer) Sign(req *http.Request) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	payload := ts + req.Method + req.URL.RequestURI()

	req.Header.Set("KC-API-SIGN", s.mac(payload))
	req.Header.Set("KC-API-TIMESTAMP", ts)
	req.Header.Set("KC-API-KEY", s.creds.Key)
	req.Header.Set("KC-API-PASSPHRASE", s.mac(s.creds.Passphrase))
	req.Header.Set("KC-API-KEY-VERSION", s.creds.KeyVersion)
}

func (s *Signer) mac(message string) string {
	h := hmac.New(sha256.New, []byte(s.creds.Secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
