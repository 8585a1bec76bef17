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

// Package s3 verifies AWS-signature-style requests against stored user
// credentials. The client signs with the stored credential secret: the
// cleartext key for plaintext stores, the salted hash for the others,
// which is why salted schemes need a fixed salt for this to be usable.
// Verified signatures are cached by the string that was signed, so
// repeated requests skip the credential read.
package s3

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/authtypes"
	"github.com/openstack-archive/swauth/pkg/cache"
	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/identity"
	"github.com/openstack-archive/swauth/pkg/token"
)

// Details are the pieces of an S3-style authorization: who claims to have
// signed, the signature, and the exact string that was signed.
type Details struct {
	// AccessKey is "<account>:<user>".
	AccessKey string
	// Signature is the base64 signature the client sent.
	Signature string
	// StringToSign is the canonical string covered by the signature.
	StringToSign string
}

type key int

const detailsKey key = iota

// ContextSetDetails attaches parsed auth details, the way an S3 API
// translation layer sitting in front hands them over.
func ContextSetDetails(ctx context.Context, d *Details) context.Context {
	return context.WithValue(ctx, detailsKey, d)
}

// ContextGetDetails returns attached auth details, if any.
func ContextGetDetails(ctx context.Context) (*Details, bool) {
	d, ok := ctx.Value(detailsKey).(*Details)
	return d, ok
}

// FromRequest extracts S3 auth details from a request: details a
// translator already attached to the context win, else an
// "Authorization: AWS <account>:<user>:<signature>" header with the
// canonical string rebuilt from the request itself.
func FromRequest(r *http.Request) (*Details, bool) {
	if d, ok := ContextGetDetails(r.Context()); ok {
		return d, true
	}
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS ") {
		return nil, false
	}
	rest := strings.TrimPrefix(auth, "AWS ")
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return nil, false
	}
	return &Details{
		AccessKey:    rest[:i],
		Signature:    rest[i+1:],
		StringToSign: StringToSign(r),
	}, true
}

// StringToSign rebuilds the canonical signing string for the plain header
// form: method, content headers, the date, any x-amz- headers sorted, and
// the resource path. Sub-resource query canonicalization is a full S3
// gateway's business, not this handshake's.
func StringToSign(r *http.Request) string {
	date := r.Header.Get("Date")
	if r.Header.Get("X-Amz-Date") != "" {
		// the date moves into the amz headers, its own line stays empty
		date = ""
	}
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteString("\n")
	b.WriteString(r.Header.Get("Content-MD5"))
	b.WriteString("\n")
	b.WriteString(r.Header.Get("Content-Type"))
	b.WriteString("\n")
	b.WriteString(date)
	b.WriteString("\n")
	var amz []string
	for k, vv := range r.Header {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-amz-") {
			amz = append(amz, lk+":"+strings.Join(vv, ","))
		}
	}
	sort.Strings(amz)
	for _, h := range amz {
		b.WriteString(h)
		b.WriteString("\n")
	}
	b.WriteString(r.URL.Path)
	return b.String()
}

// UserSource reads stored user records. *identity.Store satisfies it.
type UserSource interface {
	GetUser(ctx context.Context, account, user string) (*identity.User, error)
	AccountID(ctx context.Context, account string) (string, error)
}

// Options configures an Adapter.
type Options struct {
	// Users resolves access keys to stored credentials.
	Users UserSource
	// Cache holds verified signatures. Optional.
	Cache cache.Cache
	// ResellerPrefix namespaces the cache keys.
	ResellerPrefix string
	// CacheLife bounds how long a verified signature stays cached; grants
	// and validations use the same horizon.
	CacheLife time.Duration
	// Remote disables the adapter: the credentials live behind a remote
	// auth server this instance cannot read user records from.
	Remote bool
}

// Adapter verifies S3-style signatures.
type Adapter struct {
	users     UserSource
	cache     cache.Cache
	prefix    string
	cacheLife time.Duration
	remote    bool
}

// New returns an Adapter with the given options.
func New(opts Options) *Adapter {
	return &Adapter{
		users:     opts.Users,
		cache:     opts.Cache,
		prefix:    opts.ResellerPrefix,
		cacheLife: opts.CacheLife,
		remote:    opts.Remote,
	}
}

// Identity is the outcome of a verified S3 request.
type Identity struct {
	Account   string `json:"account"`
	User      string `json:"user"`
	AccountID string `json:"account_id"`
	// Groups is the comma string the request pipeline sees, account admin
	// marker already replaced by the account id.
	Groups string `json:"groups"`
}

// RewritePath replaces the access-key account component of a storage path
// with the storage account id, once.
func (id *Identity) RewritePath(path string) string {
	return strings.Replace(path, id.Account+":"+id.User, id.AccountID, 1)
}

func (a *Adapter) cacheKey(stringToSign string) string {
	return a.prefix + "/s3/" + base64.URLEncoding.EncodeToString([]byte(stringToSign))
}

// Authenticate verifies the signature and returns the signer's identity.
// Unknown users, unusable credentials and bad signatures all come back as
// InvalidCredentials.
func (a *Adapter) Authenticate(ctx context.Context, d *Details) (*Identity, error) {
	log := appctx.GetLogger(ctx)
	if a.remote {
		log.Warn().Msg("s3 authorization is not supported with a remote auth server")
		return nil, errtypes.InvalidCredentials("s3 authorization unavailable in remote mode")
	}
	account, user, ok := strings.Cut(d.AccessKey, ":")
	if !ok || account == "" || user == "" {
		return nil, errtypes.InvalidCredentials("malformed access key")
	}

	if a.cache != nil {
		if id, err := a.cached(ctx, d.StringToSign); err != nil {
			log.Warn().Err(err).Msg("s3 cache read failed, falling through")
		} else if id != nil {
			return id, nil
		}
	}

	u, err := a.users.GetUser(ctx, account, user)
	if err != nil {
		if isNotFound(err) || isBadRequest(err) {
			return nil, errtypes.InvalidCredentials("unknown access key")
		}
		return nil, err
	}
	creds, err := authtypes.ParseCreds(u.Auth)
	if err != nil {
		log.Error().Err(err).Str("account", account).Str("user", user).
			Msg("stored credentials are unusable for s3 signing")
		return nil, errtypes.InvalidCredentials("unusable stored credentials")
	}

	mac := hmac.New(sha1.New, []byte(creds.Hash))
	mac.Write([]byte(d.StringToSign))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(d.Signature)) {
		log.Info().Str("account", account).Str("user", user).Msg("s3 signature mismatch")
		return nil, errtypes.InvalidCredentials("signature mismatch")
	}

	accountID := u.AccountID
	if accountID == "" {
		if accountID, err = a.users.AccountID(ctx, account); err != nil {
			return nil, err
		}
	}
	id := &Identity{
		Account:   account,
		User:      user,
		AccountID: accountID,
		Groups:    token.TranslateGroups(u.GroupNames(), accountID),
	}

	if a.cache != nil {
		if err := a.store(ctx, d.StringToSign, id); err != nil {
			log.Warn().Err(err).Msg("s3 cache write failed")
		}
	}
	return id, nil
}

func (a *Adapter) cached(ctx context.Context, stringToSign string) (*Identity, error) {
	raw, ok, err := a.cache.Get(ctx, a.cacheKey(stringToSign))
	if err != nil || !ok {
		return nil, err
	}
	id := &Identity{}
	if err := json.Unmarshal([]byte(raw), id); err != nil {
		return nil, errors.Wrap(err, "s3: decoding cache entry")
	}
	return id, nil
}

func (a *Adapter) store(ctx context.Context, stringToSign string, id *Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return errors.Wrap(err, "s3: encoding cache entry")
	}
	return a.cache.Set(ctx, a.cacheKey(stringToSign), string(raw), a.cacheLife)
}

func isNotFound(err error) bool {
	_, ok := errors.Cause(err).(errtypes.IsNotFound)
	return ok
}

func isBadRequest(err error) bool {
	_, ok := errors.Cause(err).(errtypes.IsBadRequest)
	return ok
}
