// Copyright 2018-2026 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package authtypes encodes user keys into stored credential strings and
// verifies supplied keys against them.
//
// A stored credential always has the form "<scheme>:<rest>". For plaintext
// the rest is the key itself; for the salted schemes the rest is
// "<salt>$<hex digest>" where the digest covers salt+key. Verification
// dispatches on the scheme embedded in the stored credential, so a store can
// hold a mix of schemes while new keys are written with the configured one.
package authtypes

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/errtypes"
)

// MaxTokenLength is the longest token accepted on the wire. Tokens beyond
// this length are rejected before any lookup happens.
const MaxTokenLength = 5000

// Scheme is a credential encoding scheme.
type Scheme int

const (
	// Plaintext stores the key verbatim.
	Plaintext Scheme = iota
	// Sha1 stores a salted SHA-1 digest of the key.
	Sha1
	// Sha512 stores a salted SHA-512 digest of the key.
	Sha512
)

func (s Scheme) String() string {
	switch s {
	case Plaintext:
		return "plaintext"
	case Sha1:
		return "sha1"
	case Sha512:
		return "sha512"
	}
	return fmt.Sprintf("scheme(%d)", int(s))
}

// hexLen is the digest length, in hex characters, a scheme produces.
func (s Scheme) hexLen() int {
	switch s {
	case Sha1:
		return 40
	case Sha512:
		return 128
	}
	return 0
}

// SchemeFromString parses a scheme name case-insensitively.
func SchemeFromString(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "plaintext":
		return Plaintext, nil
	case "sha1":
		return Sha1, nil
	case "sha512":
		return Sha512, nil
	}
	return 0, errtypes.BadRequest("unknown auth type: " + s)
}

// Codec encodes new keys with a fixed scheme and, for the salted schemes, an
// optional fixed salt. Without a fixed salt every Encode draws a fresh
// random one.
type Codec struct {
	scheme Scheme
	salt   string
}

// New returns a codec for the given auth type name and salt.
func New(authType, salt string) (*Codec, error) {
	s, err := SchemeFromString(authType)
	if err != nil {
		return nil, err
	}
	return &Codec{scheme: s, salt: salt}, nil
}

// Scheme returns the scheme new credentials are encoded with.
func (c *Codec) Scheme() Scheme { return c.scheme }

// Salted reports whether a fixed salt is configured. S3 signature checking
// for the salted schemes needs a fixed salt, otherwise the stored hash of a
// user cannot serve as the signing secret on both sides.
func (c *Codec) Salted() bool { return c.salt != "" }

// Encode turns a cleartext key into a stored credential string.
func (c *Codec) Encode(key string) (string, error) {
	if c.scheme == Plaintext {
		return "plaintext:" + key, nil
	}
	salt := c.salt
	if salt == "" {
		var err error
		if salt, err = randomSalt(); err != nil {
			return "", errors.Wrap(err, "authtypes: generating salt")
		}
	}
	return encodeWithSalt(c.scheme, salt, key), nil
}

// Match checks a supplied key against a stored credential. The scheme is
// taken from the stored credential itself. Malformed credentials never
// match.
func Match(key, stored string) bool {
	creds, err := ParseCreds(stored)
	if err != nil {
		return false
	}
	if creds.Type == Plaintext {
		return stored == "plaintext:"+key
	}
	return encodeWithSalt(creds.Type, creds.Salt, key) == stored
}

// Creds is a stored credential, parsed.
type Creds struct {
	Type Scheme
	// Salt is empty for plaintext.
	Salt string
	// Hash is the hex digest for the salted schemes and the cleartext key
	// for plaintext. It doubles as the S3 signing secret.
	Hash string
}

// ParseCreds parses and validates a stored credential string.
func ParseCreds(stored string) (*Creds, error) {
	typ, rest, ok := strings.Cut(stored, ":")
	if !ok {
		return nil, errtypes.InvalidCredentials("missing ':' in credentials")
	}
	if typ == "" {
		return nil, errtypes.InvalidCredentials("missing auth type in credentials")
	}
	if rest == "" {
		return nil, errtypes.InvalidCredentials("missing secret in credentials")
	}
	scheme, err := SchemeFromString(typ)
	if err != nil {
		return nil, errtypes.InvalidCredentials("unknown auth type: " + typ)
	}
	if scheme == Plaintext {
		return &Creds{Type: Plaintext, Hash: rest}, nil
	}

	salt, sum, ok := strings.Cut(rest, "$")
	if !ok {
		return nil, errtypes.InvalidCredentials("missing '$' in credentials")
	}
	if salt == "" {
		return nil, errtypes.InvalidCredentials("missing salt in credentials")
	}
	if sum == "" {
		return nil, errtypes.InvalidCredentials("missing hash in credentials")
	}
	if len(sum) != scheme.hexLen() {
		return nil, errtypes.InvalidCredentials(fmt.Sprintf("invalid %s hash length %d", scheme, len(sum)))
	}
	if _, err := hex.DecodeString(sum); err != nil {
		return nil, errtypes.InvalidCredentials("hash is not valid hex")
	}
	return &Creds{Type: scheme, Salt: salt, Hash: sum}, nil
}

func encodeWithSalt(s Scheme, salt, key string) string {
	var sum string
	switch s {
	case Sha1:
		d := sha1.Sum([]byte(salt + key))
		sum = hex.EncodeToString(d[:])
	case Sha512:
		d := sha512.Sum512([]byte(salt + key))
		sum = hex.EncodeToString(d[:])
	}
	return fmt.Sprintf("%s:%s$%s", s, salt, sum)
}

func randomSalt() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}
