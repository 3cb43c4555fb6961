package crypto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EncryptedFileName returns the temp artifact name for a source file,
// "~<name><ext>.tmp".
func EncryptedFileName(sourcePath string) string {
	return "~" + filepath.Base(sourcePath) + ".tmp"
}

// EncryptFile encrypts the file at path with AES-256-GCM under SHA-256(key)
// and the given nonce. The result, nonce || ciphertext || tag, is written to
// tmpDir/~<name><ext>.tmp through a scratch file and an atomic rename. The
// file is streamed in FileChunkSize pieces and the output is identical to a
// one-shot GCM seal of the whole file.
func EncryptFile(key, nonce []byte, path, tmpDir string) (string, error) {
	if len(nonce) != AESNonceSize {
		return "", fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", err
	}
	if err := checkMessageSize(info.Size()); err != nil {
		return "", err
	}

	aesKey := DeriveAESKey(key)
	defer Wipe(aesKey)

	stream, err := newGCMStream(aesKey, nonce)
	if err != nil {
		return "", err
	}
	defer stream.wipe()

	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	dest := filepath.Join(tmpDir, EncryptedFileName(path))

	err = writeAtomically(dest, func(w io.Writer) error {
		if _, err := w.Write(nonce); err != nil {
			return err
		}
		buf := make([]byte, FileChunkSize)
		defer Wipe(buf)
		var total int64
		for {
			n, rerr := src.Read(buf)
			if n > 0 {
				// The file may grow after the Stat above.
				total += int64(n)
				if err := checkMessageSize(total); err != nil {
					return err
				}
				stream.seal(buf[:n], buf[:n])
				if _, err := w.Write(buf[:n]); err != nil {
					return err
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
		}
		tag := stream.sum()
		defer Wipe(tag)
		_, err := w.Write(tag)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("encrypt file: %w", err)
	}
	return dest, nil
}

// DecryptFile decrypts an EncryptFile artifact into outPath. The first pass
// authenticates the whole ciphertext and writes nothing. The second pass
// decrypts into a scratch file beside outPath while authenticating again,
// and the scratch file is renamed into place only when that tag matches too.
// On any tag mismatch ErrDecryptionFailed is returned and outPath is not created.
func DecryptFile(key []byte, encPath, outPath string) error {
	f, err := os.Open(encPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	ctLen := info.Size() - AESNonceSize - AESTagSize
	if ctLen < 0 {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, ErrCiphertextTooShort)
	}
	if err := checkMessageSize(ctLen); err != nil {
		return err
	}

	nonce := make([]byte, AESNonceSize)
	defer Wipe(nonce)
	if _, err := io.ReadFull(f, nonce); err != nil {
		return fmt.Errorf("read nonce: %w", err)
	}
	tag := make([]byte, AESTagSize)
	if _, err := f.ReadAt(tag, AESNonceSize+ctLen); err != nil {
		return fmt.Errorf("read tag: %w", err)
	}

	aesKey := DeriveAESKey(key)
	defer Wipe(aesKey)

	// Pass 1: authenticate only.
	verifier, err := newGCMStream(aesKey, nonce)
	if err != nil {
		return err
	}
	defer verifier.wipe()

	buf := make([]byte, FileChunkSize)
	defer Wipe(buf)
	if err := streamChunks(io.NewSectionReader(f, AESNonceSize, ctLen), buf, func(chunk []byte) error {
		verifier.authenticate(chunk)
		return nil
	}); err != nil {
		return fmt.Errorf("read ciphertext: %w", err)
	}
	if !verifier.verify(tag) {
		return ErrDecryptionFailed
	}

	// Pass 2: decrypt into a scratch file, re-verifying before the rename.
	decrypter, err := newGCMStream(aesKey, nonce)
	if err != nil {
		return err
	}
	defer decrypter.wipe()

	err = writeAtomically(outPath, func(w io.Writer) error {
		if err := streamChunks(io.NewSectionReader(f, AESNonceSize, ctLen), buf, func(chunk []byte) error {
			decrypter.open(chunk, chunk)
			_, err := w.Write(chunk)
			return err
		}); err != nil {
			return err
		}
		if !decrypter.verify(tag) {
			return ErrDecryptionFailed
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDecryptionFailed) {
			return ErrDecryptionFailed
		}
		return fmt.Errorf("decrypt file: %w", err)
	}
	return nil
}

func checkMessageSize(n int64) error {
	if n > MaxGCMMessageSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, n, int64(MaxGCMMessageSize))
	}
	return nil
}

func streamChunks(r io.Reader, buf []byte, fn func([]byte) error) error {
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// writeAtomically runs fill against a scratch file in dest's directory and
// renames it over dest only if fill and the flush succeed. The scratch file
// is removed on every failure path.
func writeAtomically(dest string, fill func(io.Writer) error) (err error) {
	dir := filepath.Dir(dest)
	scratch, err := os.CreateTemp(dir, "~"+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	scratchName := scratch.Name()
	defer func() {
		if err != nil {
			scratch.Close()
			os.Remove(scratchName)
		}
	}()

	bw := bufio.NewWriterSize(scratch, FileChunkSize)
	if err = fill(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = scratch.Sync(); err != nil {
		return err
	}
	if err = scratch.Close(); err != nil {
		return err
	}
	return os.Rename(scratchName, dest)
}
