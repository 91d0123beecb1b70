package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"fmt"
)

// aesWindow runs AES-CBC over the largest multiple of the block size that fits
// in window. Later devices only cipher full blocks, so the tail is left as is
// and the buffer never grows.
func aesWindow(window, key, iv []byte, dir Direction) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	if len(iv) != aes.BlockSize {
		return fmt.Errorf("aes iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	size := len(window) - len(window)%aes.BlockSize
	if size == 0 {
		return nil
	}
	span := window[:size]
	if dir == Encipher {
		gocipher.NewCBCEncrypter(block, iv).CryptBlocks(span, span)
	} else {
		gocipher.NewCBCDecrypter(block, iv).CryptBlocks(span, span)
	}
	return nil
}
