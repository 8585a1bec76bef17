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

package token

import (
	"crypto/sha512"
	"encoding/hex"
	"os"

	"github.com/google/uuid"
)

// Conceal derives the object name a token is stored under. Tokens are
// bearer credentials, so the raw value must never appear in storage paths
// or access logs; the name is keyed with the cluster hash path secrets so
// it cannot be derived without them.
func Conceal(hashPathPrefix, token, hashPathSuffix string) string {
	sum := sha512.Sum512([]byte(hashPathPrefix + ":" + token + ":" + hashPathSuffix))
	return hex.EncodeToString(sum[:])
}

// Shard returns the token container for a concealed name. Token objects
// spread over sixteen containers keyed by the last hex nibble.
func Shard(concealed string) string {
	return ".token_" + concealed[len(concealed)-1:]
}

// HashPathSecrets reads the cluster hash path secrets from the
// environment. Both may be empty; changing them invalidates the object
// names of all outstanding tokens.
func HashPathSecrets() (prefix, suffix string) {
	return os.Getenv("HASH_PATH_PREFIX"), os.Getenv("HASH_PATH_SUFFIX")
}

// Mint returns a fresh bearer token under the given reseller prefix.
func Mint(resellerPrefix string) string {
	u := uuid.New()
	return resellerPrefix + "tk" + hex.EncodeToString(u[:])
}

// MintInternal returns a fresh internal token. Internal tokens never hit
// the backing store; they live only in the shared cache.
func MintInternal(resellerPrefix string) string {
	u := uuid.New()
	return resellerPrefix + "itk" + hex.EncodeToString(u[:])
}
