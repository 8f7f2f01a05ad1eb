/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package errors

// Package code ranges, one per driver component that raises errors.
// Each component registers its own message function with
// RegisterIdFctMessage(MinPkgXxx, ...) so that codes never collide.
const (
	MinPkgProtocol  = 100
	MinPkgStreamID  = 200
	MinPkgConn      = 300
	MinPkgHost      = 400
	MinPkgPool      = 500
	MinPkgControl   = 600
	MinPkgMetadata  = 700
	MinPkgRouting   = 800
	MinPkgPrepared  = 900
	MinPkgPolicy    = 1000
	MinPkgQueryOpt  = 1100
	MinPkgRequest   = 1200
	MinPkgPaging    = 1300
	MinPkgBatch     = 1400
	MinPkgConfig    = 1500
	MinPkgClient    = 1600

	MinAvailable = 4000
)
