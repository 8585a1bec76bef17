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

// Package config reads the daemon configuration file. Every key can be
// overridden from the environment: SWAUTH_LOG_LEVEL=debug overrides
// "log.level".
package config

import (
	"strings"

	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()
	v.SetEnvPrefix("swauth")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// SetFile sets the configuration file to read.
func SetFile(fn string) {
	v.SetConfigFile(fn)
}

// Read loads the configuration file set with SetFile.
func Read() error {
	return v.ReadInConfig()
}

// reGet walks the section and fetches every leaf through viper again, which
// is what applies the automatic environment overrides.
func reGet(prefix string, kv *map[string]interface{}) {
	for k, val := range *kv {
		if c, ok := val.(map[string]interface{}); ok {
			reGet(prefix+"."+k, &c)
		} else {
			(*kv)[k] = v.Get(prefix + "." + k)
		}
	}
}

// Get returns one section of the configuration with environment overrides
// applied.
func Get(key string) map[string]interface{} {
	kv := v.GetStringMap(key)
	reGet(key, &kv)
	return kv
}

// Dump returns the whole configuration as read.
func Dump() map[string]interface{} {
	return v.AllSettings()
}
