package credential

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

// ErrEmptyAppKey 未配置应用密钥
var ErrEmptyAppKey = errors.New("credential: application key is empty")

// PasswordGenerator produces the database password of a tenant in schema mode.
type PasswordGenerator interface {
	Generate(t *tenant.Tenant) (string, error)
}

type GeneratorFunc func(t *tenant.Tenant) (string, error)

func (f GeneratorFunc) Generate(t *tenant.Tenant) (string, error) {
	return f(t)
}

// KeyedGenerator 用应用密钥对租户 uuid 做 BLAKE2b-256 keyed hash，结果稳定可重复
type KeyedGenerator struct {
	key []byte
}

// NewKeyedGenerator rejects empty keys; blake2b accepts keys up to 64 bytes.
func NewKeyedGenerator(appKey string) (*KeyedGenerator, error) {
	if appKey == "" {
		return nil, ErrEmptyAppKey
	}
	if len(appKey) > blake2b.Size {
		return nil, fmt.Errorf("credential: application key longer than %d bytes", blake2b.Size)
	}
	return &KeyedGenerator{key: []byte(appKey)}, nil
}

func (g *KeyedGenerator) Generate(t *tenant.Tenant) (string, error) {
	h, err := blake2b.New256(g.key)
	if err != nil {
		return "", fmt.Errorf("credential: init blake2b: %w", err)
	}
	h.Write([]byte(t.UUID))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (g *KeyedGenerator) String() string {
	return "KeyedGenerator{key: [REDACTED]}"
}
