package wbi

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyLength is the length of each rotating key and of the derived mixin key.
const KeyLength = 32

// SignatureParam is the query parameter carrying the request signature.
const SignatureParam = "w_rid"

// mixinKeyEncTab is the platform's permutation table. Only the first
// KeyLength entries are used when deriving the mixin key.
var mixinKeyEncTab = [2 * KeyLength]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// ErrSigning is returned when a request cannot be signed, typically because
// the rotating keys are malformed. It is not retryable: malformed keys mean
// the nav endpoint changed shape.
var ErrSigning = errors.New("wbi: signing failed")

// Keys holds the two rotating keys published by the nav endpoint.
type Keys struct {
	ImgKey string
	SubKey string
}

// Validate reports whether both keys are KeyLength hexadecimal characters.
// Either letter case is accepted.
func (k Keys) Validate() error {
	if err := validateKey("img_key", k.ImgKey); err != nil {
		return err
	}
	return validateKey("sub_key", k.SubKey)
}

func validateKey(name, key string) error {
	if key == "" {
		return fmt.Errorf("%w: %s is empty", ErrSigning, name)
	}
	if len(key) != KeyLength {
		return fmt.Errorf("%w: %s has length %d, want %d", ErrSigning, name, len(key), KeyLength)
	}
	for i := 0; i < len(key); i++ {
		if !isHex(key[i]) {
			return fmt.Errorf("%w: %s has non-hex character %q at %d", ErrSigning, name, key[i], i)
		}
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// MixinKey derives the 32-character mixin key from keys.
func MixinKey(keys Keys) (string, error) {
	if err := keys.Validate(); err != nil {
		return "", err
	}
	raw := keys.ImgKey + keys.SubKey

	var b strings.Builder
	b.Grow(KeyLength)
	for _, idx := range mixinKeyEncTab[:KeyLength] {
		b.WriteByte(raw[idx])
	}
	return b.String(), nil
}

// Params is a request parameter set. Values are the plain, unencoded
// strings that will be sent over the wire.
type Params map[string]string

// Values converts p into url.Values so that the transport encodes each
// value exactly once on transmission.
func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

// CanonicalQuery builds the string that is hashed when signing: keys sorted
// bytewise, each key and value form-encoded (space becomes '+'), joined
// with '&'. Any existing signature parameter is excluded.
func CanonicalQuery(params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SignatureParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// Signer signs parameter sets with a mixin key derived from one key pair.
//
// A Signer is immutable and safe for concurrent use.
type Signer struct {
	mixinKey string
}

// NewSigner derives the mixin key for keys. It returns an error wrapping
// [ErrSigning] if either key is malformed.
func NewSigner(keys Keys) (*Signer, error) {
	mixin, err := MixinKey(keys)
	if err != nil {
		return nil, err
	}
	return &Signer{mixinKey: mixin}, nil
}

// MixinKey returns the derived mixin key.
func (s *Signer) MixinKey() string {
	return s.mixinKey
}

// Signature computes the w_rid value for params.
func (s *Signer) Signature(params Params) string {
	sum := md5.Sum([]byte(CanonicalQuery(params) + s.mixinKey))
	return hex.EncodeToString(sum[:])
}

// Sign returns a copy of params with the signature parameter added. The
// returned values are not encoded; encoding happens once, on transmission.
func (s *Signer) Sign(params Params) Params {
	signed := make(Params, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed[SignatureParam] = s.Signature(params)
	return signed
}

// Sign signs params with keys in one step.
func Sign(params Params, keys Keys) (Params, error) {
	s, err := NewSigner(keys)
	if err != nil {
		return nil, err
	}
	return s.Sign(params), nil
}
