// Package crypto 加解密配置文件中的数据库密码（AES-256-GCM）
package crypto

import "errors"

var (
	// ErrInvalidKeyLength 密钥解码后必须是 32 字节
	ErrInvalidKeyLength = errors.New("crypto: encryption key must be 32 bytes")

	// ErrInvalidCiphertext 不是合法的 base64 或长度不足
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")

	// ErrDecryptionFailed 认证失败：密钥不对或密文被篡改
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)
