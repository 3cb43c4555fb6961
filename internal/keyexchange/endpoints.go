package keyexchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redaqt/pdo-go/internal/apierrors"
	"github.com/redaqt/pdo-go/internal/crypto"
)

// RequestEncryptKey asks for a new crypto key. certificate requests a
// certificate alongside the key. The returned key is never empty.
func (c *Client) RequestEncryptKey(ctx context.Context, creds Credentials, certificate bool) (*IncomingEncrypt, error) {
	var out *IncomingEncrypt
	err := c.track(ctx, MessageRequestEncrypt, func(ctx context.Context) error {
		data := RequestData{Certificate: CertificateRequest{Request: certificate}}
		kp, err := c.prepareSealing(&data)
		if err != nil {
			return err
		}
		defer kp.Wipe()

		body, requestID, err := c.exchange(ctx, c.encryptURL, MessageRequestEncrypt, creds, data)
		if err != nil {
			return err
		}

		var resp IncomingEncrypt
		if err := json.Unmarshal(body, &resp); err != nil {
			return &apierrors.ResponseError{Reason: "decode encrypt response", Err: err}
		}

		key, err := c.resolveKey(kp, requestID, resp.Data.CryptoKey, resp.Data.SealedKey)
		if err != nil {
			resp.Data.CryptoKey.Wipe()
			return err
		}
		resp.Data.CryptoKey = key
		resp.Data.SealedKey = nil
		out = &resp
		return nil
	})
	return out, err
}

// RequestDecryptKey asks for the key of an existing carrier. data is usually
// built with BuildDecryptData. The returned key is never empty.
func (c *Client) RequestDecryptKey(ctx context.Context, creds Credentials, data RequestData) (*IncomingDecrypt, error) {
	var out *IncomingDecrypt
	err := c.track(ctx, MessageRequestDecrypt, func(ctx context.Context) error {
		kp, err := c.prepareSealing(&data)
		if err != nil {
			return err
		}
		defer kp.Wipe()

		body, requestID, err := c.exchange(ctx, c.decryptURL, MessageRequestDecrypt, creds, data)
		if err != nil {
			return err
		}

		var resp IncomingDecrypt
		if err := json.Unmarshal(body, &resp); err != nil {
			return &apierrors.ResponseError{Reason: "decode decrypt response", Err: err}
		}

		key, err := c.resolveKey(kp, requestID, resp.Data.CryptoKey, resp.Data.SealedKey)
		if err != nil {
			resp.Data.CryptoKey.Wipe()
			return err
		}
		resp.Data.CryptoKey = key
		resp.Data.SealedKey = nil
		out = &resp
		return nil
	})
	return out, err
}

// prepareSealing attaches a fresh ML-KEM-768 public key to data when sealed
// keys are enabled. The returned keypair may be nil.
func (c *Client) prepareSealing(data *RequestData) (*crypto.Keypair, error) {
	if !c.sealed {
		data.KeyEncapsulation = nil
		return nil, nil
	}
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate request keypair: %w", err)
	}
	data.KeyEncapsulation = &KeyEncapsulation{
		KEM:       crypto.DefaultAlgorithms.KEM,
		PublicKey: kp.PublicKeyB64,
	}
	return kp, nil
}

// resolveKey returns the crypto key from a response. A sealed key is
// verified (against the pinned key, if any), bound to the request id through
// its AAD, and opened. With a pinned key a plain key is refused.
func (c *Client) resolveKey(kp *crypto.Keypair, requestID string, plain KeyMaterial, sealed *crypto.SealedKey) (KeyMaterial, error) {
	if sealed != nil {
		if kp == nil {
			return nil, &apierrors.ResponseError{Reason: "unsolicited sealed key"}
		}
		if err := crypto.VerifySealedKey(sealed, c.pinnedKey); err != nil {
			return nil, &apierrors.ResponseError{Reason: "sealed key", Err: err}
		}
		aad, err := crypto.FromBase64URL(sealed.AAD)
		if err != nil || string(aad) != requestID {
			return nil, &apierrors.ResponseError{Reason: "sealed key is bound to another request"}
		}
		key, err := crypto.OpenSealedKey(sealed, kp)
		if err != nil {
			return nil, &apierrors.ResponseError{Reason: "open sealed key", Err: err}
		}
		plain.Wipe()
		if len(key) == 0 {
			return nil, apierrors.ErrKeyMissing
		}
		return KeyMaterial(key), nil
	}

	if len(c.pinnedKey) > 0 && len(plain) > 0 {
		plain.Wipe()
		return nil, &apierrors.ResponseError{Reason: "sealed key required by pinned server key"}
	}
	if len(plain) == 0 {
		return nil, apierrors.ErrKeyMissing
	}
	return plain, nil
}
