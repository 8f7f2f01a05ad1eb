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

// passwordAuthProvider implements the SASL PLAIN-style exchange the
// server's org.apache...PasswordAuthenticator expects: one InitialResponse
// of "\x00<username>\x00<password>", no further challenge round trip.
type passwordAuthProvider struct {
	username string
	password string
}

// NewPasswordAuthProvider builds the default AuthProvider used when
// Config.Credentials is set and Config.Policies.AuthProvider is left nil.
func NewPasswordAuthProvider(creds *Credentials) AuthProvider {
	return &passwordAuthProvider{username: creds.Username, password: creds.Password}
}

func (p *passwordAuthProvider) InitialResponse() ([]byte, error) {
	buf := make([]byte, 0, len(p.username)+len(p.password)+2)
	buf = append(buf, 0)
	buf = append(buf, p.username...)
	buf = append(buf, 0)
	buf = append(buf, p.password...)
	return buf, nil
}

// EvaluateChallenge is never invoked for PasswordAuthenticator's single
// round trip; it exists only to satisfy AuthProvider.
func (p *passwordAuthProvider) EvaluateChallenge(_ []byte) ([]byte, error) {
	return nil, nil
}
