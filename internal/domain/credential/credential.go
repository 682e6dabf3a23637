package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// AuthKind tags the shape of a connector credential
type AuthKind string

const (
	AuthHeaderKey       AuthKind = "header_key"
	AuthBodyKey         AuthKind = "body_key"
	AuthSignatureKey    AuthKind = "signature_key"
	AuthMultiAuthKey    AuthKind = "multi_auth_key"
	AuthCurrencyAuthKey AuthKind = "currency_auth_key"
	AuthTemporary       AuthKind = "temporary_auth"
	AuthNoKey           AuthKind = "no_key"
)

// ConnectorAuthType is a tagged union of credential shapes. Only the fields
// belonging to Kind are meaningful.
type ConnectorAuthType struct {
	Kind      AuthKind          `json:"auth_type"`
	APIKey    string            `json:"api_key,omitempty"`
	Key1      string            `json:"key1,omitempty"`
	Key2      string            `json:"key2,omitempty"`
	APISecret string            `json:"api_secret,omitempty"`
	KeyMap    map[string]string `json:"auth_key_map,omitempty"`
}

func HeaderKey(apiKey string) ConnectorAuthType {
	return ConnectorAuthType{Kind: AuthHeaderKey, APIKey: apiKey}
}

func BodyKey(apiKey, key1 string) ConnectorAuthType {
	return ConnectorAuthType{Kind: AuthBodyKey, APIKey: apiKey, Key1: key1}
}

func SignatureKey(apiKey, key1, apiSecret string) ConnectorAuthType {
	return ConnectorAuthType{Kind: AuthSignatureKey, APIKey: apiKey, Key1: key1, APISecret: apiSecret}
}

// CurrencyAuthKey holds one serialized credential per currency.
func CurrencyAuthKey(keys map[string]string) ConnectorAuthType {
	return ConnectorAuthType{Kind: AuthCurrencyAuthKey, KeyMap: keys}
}

// Validate checks that the fields required by Kind are present
func (a ConnectorAuthType) Validate() error {
	switch a.Kind {
	case AuthHeaderKey:
		return requireFields(map[string]string{"api_key": a.APIKey})
	case AuthBodyKey:
		return requireFields(map[string]string{"api_key": a.APIKey, "key1": a.Key1})
	case AuthSignatureKey:
		return requireFields(map[string]string{"api_key": a.APIKey, "key1": a.Key1, "api_secret": a.APISecret})
	case AuthMultiAuthKey:
		return requireFields(map[string]string{"api_key": a.APIKey, "key1": a.Key1, "key2": a.Key2, "api_secret": a.APISecret})
	case AuthCurrencyAuthKey:
		if len(a.KeyMap) == 0 {
			return fmt.Errorf("auth_key_map is required")
		}
		return nil
	case AuthTemporary, AuthNoKey:
		return nil
	}
	return fmt.Errorf("unknown auth type %q", a.Kind)
}

// ForCurrency resolves a currency keyed credential into its inner shape.
func (a ConnectorAuthType) ForCurrency(currency string) (ConnectorAuthType, error) {
	if a.Kind != AuthCurrencyAuthKey {
		return a, nil
	}
	raw, ok := a.KeyMap[strings.ToUpper(currency)]
	if !ok {
		return ConnectorAuthType{}, fmt.Errorf("no credential configured for currency %s", currency)
	}
	var inner ConnectorAuthType
	if err := json.Unmarshal([]byte(raw), &inner); err != nil {
		return ConnectorAuthType{}, fmt.Errorf("decode credential for currency %s: %w", currency, err)
	}
	return inner, inner.Validate()
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credential fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MerchantConnectorAccount binds a merchant to one configured connector
type MerchantConnectorAccount struct {
	ID            string
	MerchantID    string
	ConnectorName string
	Label         string
	TestMode      bool
	Disabled      bool
	SealedAuth    string // AES-GCM sealed JSON of ConnectorAuthType
}

// SealAuth encrypts auth and stores it on the account
func (m *MerchantConnectorAccount) SealAuth(auth ConnectorAuthType, key []byte) error {
	if err := auth.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("encode auth: %w", err)
	}
	sealed, err := Encrypt(string(raw), key)
	if err != nil {
		return fmt.Errorf("failed to seal auth for %s: %w", m.ID, err)
	}
	m.SealedAuth = sealed
	return nil
}

// OpenAuth decrypts the stored credential
func (m *MerchantConnectorAccount) OpenAuth(key []byte) (ConnectorAuthType, error) {
	if m.SealedAuth == "" {
		return ConnectorAuthType{}, fmt.Errorf("account %s has no credentials", m.ID)
	}
	plain, err := Decrypt(m.SealedAuth, key)
	if err != nil {
		return ConnectorAuthType{}, fmt.Errorf("failed to open auth for %s: %w", m.ID, err)
	}
	var auth ConnectorAuthType
	if err := json.Unmarshal([]byte(plain), &auth); err != nil {
		return ConnectorAuthType{}, fmt.Errorf("decode auth for %s: %w", m.ID, err)
	}
	return auth, auth.Validate()
}

// Encrypt encrypts a plaintext string using AES-GCM
func Encrypt(plaintext string, key []byte) (string, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a base64 encoded ciphertext using AES-GCM
func Decrypt(ciphertext string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
