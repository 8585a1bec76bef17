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

// Package acl implements the container ACL grammar of the guarded storage
// API: comma-separated entries where ".r:<host>" entries gate access by
// Referer and every other entry names a group.
package acl

import (
	"net/url"
	"strings"

	"github.com/openstack-archive/swauth/pkg/errtypes"
)

// referrer designators accepted in read ACLs. Clean normalizes all of them
// to ".r".
var referrerDesignators = map[string]bool{
	".r":        true,
	".ref":      true,
	".referer":  true,
	".referrer": true,
}

// Parse splits an ACL string into referrer patterns and group names.
// Group entries arrive percent-encoded from headers and are decoded here.
func Parse(acl string) (referrers, groups []string) {
	if acl == "" {
		return nil, nil
	}
	for _, value := range strings.Split(acl, ",") {
		if after, ok := strings.CutPrefix(value, ".r:"); ok {
			referrers = append(referrers, after)
			continue
		}
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		groups = append(groups, value)
	}
	return referrers, groups
}

// ReferrerAllowed checks the Referer header value of a request against the
// referrer patterns of an ACL. A pattern of "*" allows everyone, a leading
// "." matches domain suffixes and a leading "-" negates the pattern. Later
// patterns override earlier ones. A request without a parsable Referer host
// matches as "unknown".
func ReferrerAllowed(referrer string, referrerACL []string) bool {
	allow := false
	if len(referrerACL) == 0 {
		return allow
	}
	rhost := "unknown"
	if u, err := url.Parse(referrer); err == nil && u.Hostname() != "" {
		rhost = strings.ToLower(u.Hostname())
	}
	for _, mhost := range referrerACL {
		if negated, ok := strings.CutPrefix(mhost, "-"); ok {
			if hostMatch(negated, rhost) {
				allow = false
			}
			continue
		}
		if mhost == "*" || hostMatch(mhost, rhost) {
			allow = true
		}
	}
	return allow
}

func hostMatch(mhost, rhost string) bool {
	if mhost == rhost {
		return true
	}
	return strings.HasPrefix(mhost, ".") && strings.HasSuffix(rhost, mhost)
}

// Clean validates and normalizes an ACL header value before it is stored.
// The header name decides the rules: write ACLs must not contain referrer
// designators. Unknown dotted designators and referrer entries without a
// host are rejected.
func Clean(name, value string) (string, error) {
	var values []string
	for _, rawValue := range strings.Split(value, ",") {
		rawValue = strings.TrimSpace(rawValue)
		if rawValue == "" {
			continue
		}
		first, second, ok := strings.Cut(rawValue, ":")
		if !ok {
			values = append(values, rawValue)
			continue
		}
		first = strings.TrimSpace(first)
		second = strings.TrimSpace(second)
		switch {
		case first == "" || !strings.HasPrefix(first, "."):
			values = append(values, rawValue)
		case referrerDesignators[first]:
			if strings.Contains(strings.ToLower(name), "write") {
				return "", errtypes.BadRequest("referrers not allowed in write ACL: " + rawValue)
			}
			negate := false
			if rest, ok := strings.CutPrefix(second, "-"); ok {
				negate = true
				second = strings.TrimSpace(rest)
			}
			if second != "" && second != "*" && strings.HasPrefix(second, "*") {
				second = strings.TrimSpace(second[1:])
			}
			if second == "" || second == "." {
				return "", errtypes.BadRequest("no host/domain value after referrer designation in ACL: " + rawValue)
			}
			if negate {
				second = "-" + second
			}
			values = append(values, ".r:"+second)
		default:
			return "", errtypes.BadRequest("unknown designator " + first + " in ACL: " + rawValue)
		}
	}
	return strings.Join(values, ","), nil
}
