package platform

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// signedHeaders are covered by every request signature, in this order.
var signedHeaders = []string{"(request-target)", "date", "host", "digest"}

// Signer authenticates requests with an Intersight API key using HTTP
// Signatures (hs2019). v3 keys are ECDSA P-256, v2 keys are RSA.
type Signer struct {
	keyID string
	key   crypto.Signer
	now   func() time.Time
}

// LoadSigner reads a PEM private key from path.
func LoadSigner(keyID, path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return NewSigner(keyID, data)
}

// NewSigner parses an EC, RSA (PKCS#1) or PKCS#8 PEM private key.
func NewSigner(keyID string, pemData []byte) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("API key ID is empty")
	}
	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, err
	}
	return &Signer{keyID: keyID, key: key, now: time.Now}, nil
}

// Public returns the public half of the key.
func (s *Signer) Public() crypto.PublicKey { return s.key.Public() }

func parsePrivateKey(data []byte) (crypto.Signer, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("no private key found in PEM data")
		}
		switch block.Type {
		case "EC PARAMETERS":
			continue
		case "EC PRIVATE KEY":
			k, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing EC key: %w", err)
			}
			return k, nil
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing RSA key: %w", err)
			}
			return k, nil
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing PKCS#8 key: %w", err)
			}
			switch k := k.(type) {
			case *ecdsa.PrivateKey:
				return k, nil
			case *rsa.PrivateKey:
				return k, nil
			}
			return nil, fmt.Errorf("unsupported key type %T", k)
		default:
			return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
		}
	}
}

// Sign sets the Date, Host, Digest and Authorization headers on req. body
// must be the exact request body (nil for none).
func (s *Signer) Sign(req *http.Request, body []byte) error {
	sum := sha256.Sum256(body)
	req.Header.Set("Date", s.now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", "SHA-256="+base64.StdEncoding.EncodeToString(sum[:]))

	digest := sha256.Sum256([]byte(signingString(req)))
	sig, err := s.key.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf(
		`Signature keyId="%s",algorithm="hs2019",headers="%s",signature="%s"`,
		s.keyID, strings.Join(signedHeaders, " "), base64.StdEncoding.EncodeToString(sig)))
	return nil
}

func signingString(req *http.Request) string {
	lines := make([]string, 0, len(signedHeaders))
	for _, h := range signedHeaders {
		var v string
		switch h {
		case "(request-target)":
			v = strings.ToLower(req.Method) + " " + req.URL.RequestURI()
		case "host":
			v = req.URL.Host
		default:
			v = req.Header.Get(h)
		}
		lines = append(lines, h+": "+v)
	}
	return strings.Join(lines, "\n")
}
