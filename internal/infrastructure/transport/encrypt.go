package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidEnvelope   = errors.New("invalid encrypted envelope")
)

const (
	keySize   = 32 // 256-bit symmetric key
	nonceSize = 12 // 96-bit nonce
	tagSize   = 16
)

// Cipher names the authenticated symmetric cipher used for payloads.
type Cipher string

const (
	CipherAES256GCM        Cipher = "aes-256-gcm"
	CipherChaCha20Poly1305 Cipher = "chacha20-poly1305"
)

// Envelope is the wire form of an encrypted batch. All fields are base64.
// Alg is omitted for the default AES-256-GCM cipher.
type Envelope struct {
	EncryptedKey string `json:"encryptedKey"`
	IV           string `json:"iv"`
	AuthTag      string `json:"authTag"`
	Data         string `json:"data"`
	Alg          Cipher `json:"alg,omitempty"`
}

// Encryptor hybrid-encrypts payloads: a fresh symmetric key and nonce per
// call, the key itself wrapped with RSA-OAEP-SHA256.
type Encryptor struct {
	pub    *rsa.PublicKey
	cipher Cipher
	rand   io.Reader
}

// NewEncryptor creates an encryptor for the given public key.
// An empty cipher selects AES-256-GCM.
func NewEncryptor(pub *rsa.PublicKey, c Cipher) (*Encryptor, error) {
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	if c == "" {
		c = CipherAES256GCM
	}
	if c != CipherAES256GCM && c != CipherChaCha20Poly1305 {
		return nil, fmt.Errorf("unsupported cipher %q", c)
	}
	return &Encryptor{pub: pub, cipher: c, rand: rand.Reader}, nil
}

// NewEncryptorFromPEM parses a PEM public key and creates an encryptor.
func NewEncryptorFromPEM(pemData []byte, c Cipher) (*Encryptor, error) {
	pub, err := ParsePublicKey(pemData)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(pub, c)
}

// Encrypt seals plaintext into an Envelope.
func (e *Encryptor) Encrypt(plaintext []byte) (*Envelope, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(e.rand, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := newAEAD(e.cipher, key)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	wrapped, err := rsa.EncryptOAEP(sha256.New(), e.rand, e.pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}

	env := &Envelope{
		EncryptedKey: base64.StdEncoding.EncodeToString(wrapped),
		IV:           base64.StdEncoding.EncodeToString(nonce),
		AuthTag:      base64.StdEncoding.EncodeToString(tag),
		Data:         base64.StdEncoding.EncodeToString(ciphertext),
	}
	if e.cipher != CipherAES256GCM {
		env.Alg = e.cipher
	}
	return env, nil
}

// Decrypt opens an Envelope with the matching private key.
func Decrypt(env *Envelope, priv *rsa.PrivateKey) ([]byte, error) {
	if env == nil || priv == nil {
		return nil, ErrInvalidEnvelope
	}

	wrapped, err := base64.StdEncoding.DecodeString(env.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encryptedKey: %v", ErrInvalidEnvelope, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: iv", ErrInvalidEnvelope)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: authTag", ErrInvalidEnvelope)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrInvalidEnvelope, err)
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", err)
	}

	alg := env.Alg
	if alg == "" {
		alg = CipherAES256GCM
	}
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return plaintext, nil
}

func newAEAD(c Cipher, key []byte) (cipher.AEAD, error) {
	switch c {
	case CipherChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case CipherAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("unsupported cipher %q", c)
	}
}

// ParsePublicKey parses a PEM encoded RSA public key (PKIX or PKCS#1).
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPublicKey)
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
		}
		return pub, nil
	}

	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// ParsePrivateKey parses a PEM encoded RSA private key (PKCS#8 or PKCS#1).
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPrivateKey)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPrivateKey)
		}
		return priv, nil
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return priv, nil
}

// GenerateKeyPair creates an RSA key pair and returns PEM encoded
// private (PKCS#8) and public (PKIX) keys.
func GenerateKeyPair(bits int) (privPEM, pubPEM []byte, err error) {
	if bits < 2048 {
		return nil, nil, fmt.Errorf("key size %d too small, need at least 2048", bits)
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}
