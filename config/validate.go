/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

package config

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"
	liberr "github.com/nabbar/wcdb/errors"
)

// Validate checks the struct-tag constraints and the cross-field rules that
// validator tags cannot express (mutually exclusive auth, distance-keyed
// map coherence). It returns nil when the config is usable as-is.
func (c *Config) Validate() liberr.Error {
	var e = liberr.ConfigError.Error(nil)

	if err := libval.New().Struct(c); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		} else if ve, ok := err.(libval.ValidationErrors); ok {
			for _, er := range ve {
				e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
			}
		} else {
			e.Add(err)
		}
	}

	if c.Credentials != nil && c.Policies.AuthProvider != nil {
		e.Add(fmt.Errorf("config: Credentials and Policies.AuthProvider are mutually exclusive"))
	}

	if c.Pooling.CoreConnectionsPerHost != nil {
		if n, ok := c.Pooling.CoreConnectionsPerHost[DistanceIgnored]; ok && n != 0 {
			e.Add(fmt.Errorf("config: Pooling.CoreConnectionsPerHost[ignored] must be zero or absent"))
		}
	}

	if c.MaxPrepared > 0 && c.Pooling.Warmup && c.WarmupConcurrency <= 0 {
		e.Add(fmt.Errorf("config: WarmupConcurrency must be positive when Pooling.Warmup is enabled"))
	}

	if !e.HasParent() {
		e = nil
	}

	return e
}
