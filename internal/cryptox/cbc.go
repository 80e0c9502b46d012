// Package cryptox is the cipher service for stored files: AES-256 in CBC mode
// with PKCS#7 padding, applied as a stream so neither side ever holds a whole
// file in memory.
//
// CBC chains every block to the previous ciphertext block, so plaintext at an
// arbitrary offset cannot be recovered without decrypting everything before
// it. Byte-range requests are therefore not served on encrypted content; a
// seekable design would need a counter-based, per-chunk authenticated format.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/vaultbox/internal/common"
)

// chunkSize is how much plaintext/ciphertext is processed per refill. It must
// be a multiple of aes.BlockSize.
const chunkSize = 64 * 1024

// Cipher encrypts and decrypts file streams with keys from a Keyring.
type Cipher struct {
	keys *Keyring
}

func NewCipher(keys *Keyring) *Cipher {
	return &Cipher{keys: keys}
}

// ActiveKeyID is the key id new uploads are encrypted under.
func (c *Cipher) ActiveKeyID() string {
	return c.keys.ActiveKeyID()
}

// NewIV draws a fresh 16-byte IV from crypto/rand.
func NewIV() ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

// EncryptStream wraps plaintext in an encrypting reader under the active key
// and a fresh IV. The caller must persist both the IV and the key id.
func (c *Cipher) EncryptStream(plaintext io.Reader) (ciphertext io.Reader, iv []byte, keyID string, err error) {
	iv, err = NewIV()
	if err != nil {
		return nil, nil, "", err
	}
	keyID = c.keys.ActiveKeyID()
	ciphertext, err = c.EncryptReader(plaintext, keyID, iv)
	if err != nil {
		return nil, nil, "", err
	}
	return ciphertext, iv, keyID, nil
}

// EncryptReader returns a reader yielding the CBC ciphertext of src under the
// given key id and IV.
func (c *Cipher) EncryptReader(src io.Reader, keyID string, iv []byte) (io.Reader, error) {
	block, err := c.block(keyID, iv)
	if err != nil {
		return nil, err
	}
	return &encryptReader{
		src:   src,
		mode:  cipher.NewCBCEncrypter(block, iv),
		chunk: make([]byte, chunkSize),
	}, nil
}

// DecryptReader returns a reader yielding the plaintext of src. Corrupt
// input (bad length or padding) surfaces as common.ErrDecrypt from Read,
// never as silently truncated output.
func (c *Cipher) DecryptReader(src io.Reader, keyID string, iv []byte) (io.Reader, error) {
	block, err := c.block(keyID, iv)
	if err != nil {
		return nil, err
	}
	return &decryptReader{
		src:   src,
		mode:  cipher.NewCBCDecrypter(block, iv),
		chunk: make([]byte, chunkSize),
	}, nil
}

func (c *Cipher) block(keyID string, iv []byte) (cipher.Block, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrDecrypt, aes.BlockSize, len(iv))
	}
	key, err := c.keys.Key(keyID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return block, nil
}

// CiphertextSize returns the on-disk size of a plaintext of n bytes.
func CiphertextSize(n int64) int64 {
	return (n/aes.BlockSize + 1) * aes.BlockSize
}

type encryptReader struct {
	src   io.Reader
	mode  cipher.BlockMode
	chunk []byte
	out   []byte
	done  bool
}

func (r *encryptReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.done {
			return 0, io.EOF
		}

		n, err := io.ReadFull(r.src, r.chunk)
		switch {
		case err == nil:
			r.mode.CryptBlocks(r.chunk[:n], r.chunk[:n])
			r.out = r.chunk[:n]
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			// A block-aligned tail still gets a full padding block.
			padded := pkcs7Pad(r.chunk[:n], aes.BlockSize)
			r.mode.CryptBlocks(padded, padded)
			r.out = padded
			r.done = true
		default:
			return 0, err
		}
	}

	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

type decryptReader struct {
	src   io.Reader
	mode  cipher.BlockMode
	chunk []byte
	buf   []byte
	held  []byte // last plaintext block, kept back until we know whether it carries the padding
	out   []byte
	done  bool
}

func (r *decryptReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.done {
			return 0, io.EOF
		}

		n, err := io.ReadFull(r.src, r.chunk)
		switch {
		case err == nil, errors.Is(err, io.ErrUnexpectedEOF):
			if n%aes.BlockSize != 0 {
				return 0, fmt.Errorf("%w: ciphertext is not a multiple of the block size", common.ErrDecrypt)
			}
			r.mode.CryptBlocks(r.chunk[:n], r.chunk[:n])

			r.buf = append(r.buf[:0], r.held...)
			r.buf = append(r.buf, r.chunk[:n]...)
			tail := len(r.buf) - aes.BlockSize
			r.held = append(r.held[:0], r.buf[tail:]...)
			r.out = r.buf[:tail]

			if err != nil {
				if err := r.finish(); err != nil {
					return 0, err
				}
			}
		case errors.Is(err, io.EOF):
			if r.held == nil {
				return 0, fmt.Errorf("%w: empty ciphertext", common.ErrDecrypt)
			}
			r.out = r.buf[:0]
			if err := r.finish(); err != nil {
				return 0, err
			}
		default:
			return 0, err
		}
	}

	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

func (r *decryptReader) finish() error {
	tail, err := pkcs7Unpad(r.held, aes.BlockSize)
	if err != nil {
		return err
	}
	r.out = append(r.out, tail...)
	r.done = true
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+padding)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(block []byte, blockSize int) ([]byte, error) {
	if len(block) != blockSize {
		return nil, fmt.Errorf("%w: bad final block", common.ErrDecrypt)
	}
	padding := int(block[len(block)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("%w: invalid padding", common.ErrDecrypt)
	}
	for _, b := range block[len(block)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("%w: invalid padding", common.ErrDecrypt)
		}
	}
	return block[:len(block)-padding], nil
}
