// Package secretbox cifra secretos de configuración (el client secret del
// management API) con NaCl secretbox y una clave maestra de entorno.
// Los valores cifrados llevan el prefijo "ENC:" y pueden pegarse directo
// en el YAML de config; se descifran al cargar.
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// EnvMasterKey es la variable de entorno con la clave maestra (base64, 32 bytes).
	EnvMasterKey = "SECRETBOX_MASTER_KEY"

	// Prefix marca un valor cifrado dentro de la config.
	Prefix = "ENC:"

	keyLen   = 32
	nonceLen = 24
)

var (
	mu        sync.RWMutex
	masterKey *[keyLen]byte
	loadOnce  sync.Once
	loadErr   error
)

func ensureLoaded() error {
	if Ready() {
		return nil
	}
	loadOnce.Do(func() {
		b64 := strings.TrimSpace(os.Getenv(EnvMasterKey))
		if b64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una con: openssl rand -base64 32", EnvMasterKey)
			return
		}
		k, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", EnvMasterKey, err)
			return
		}
		if len(k) != keyLen {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", EnvMasterKey, keyLen, len(k))
			return
		}
		setKey(k)
	})
	return loadErr
}

func setKey(k []byte) {
	var key [keyLen]byte
	copy(key[:], k)
	mu.Lock()
	masterKey = &key
	mu.Unlock()
}

// Ready informa si la clave maestra está cargada (para healthchecks).
func Ready() bool {
	mu.RLock()
	defer mu.RUnlock()
	return masterKey != nil
}

// IsEncrypted informa si el valor lleva el prefijo ENC:.
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// Encrypt cifra plain y devuelve "ENC:" + base64(nonce||sealed).
func Encrypt(plain string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	mu.RLock()
	key := masterKey
	mu.RUnlock()

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt recibe un valor "ENC:..." y devuelve el texto plano.
func Decrypt(enc string) (string, error) {
	if !IsEncrypted(enc) {
		return "", errors.New("secretbox: valor sin prefijo ENC:")
	}
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	mu.RLock()
	key := masterKey
	mu.RUnlock()

	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(enc, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(blob) <= nonceLen {
		return "", errors.New("secretbox: ciphertext truncado")
	}

	var nonce [nonceLen]byte
	copy(nonce[:], blob[:nonceLen])
	plain, ok := secretbox.Open(nil, blob[nonceLen:], &nonce, key)
	if !ok {
		return "", errors.New("secretbox: autenticación fallida (clave incorrecta o valor corrupto)")
	}
	return string(plain), nil
}

// DecryptIfNeeded descifra valores ENC: y deja pasar el resto tal cual.
// Es lo que usa la capa de config para soportar secretos planos en dev.
func DecryptIfNeeded(v string) (string, error) {
	if !IsEncrypted(v) {
		return v, nil
	}
	return Decrypt(v)
}

// --- Helpers para tests ---

// UnsafeSetMasterKeyForTests setea una clave cruda de 32 bytes. Sólo tests.
func UnsafeSetMasterKeyForTests(k []byte) error {
	if len(k) != keyLen {
		return fmt.Errorf("clave inválida para test: se requieren %d bytes", keyLen)
	}
	UnsafeResetForTests()
	setKey(k)
	return nil
}

// UnsafeResetForTests borra el estado interno. Sólo tests.
func UnsafeResetForTests() {
	mu.Lock()
	masterKey = nil
	mu.Unlock()
	loadOnce = sync.Once{}
	loadErr = nil
}
