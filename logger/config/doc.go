/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

// Package config provides configuration structures and validation for the logger package.
//
// # Overview
//
// The config package defines the configuration model for the driver's logger,
// covering the stdout/stderr destination with independent formatting options.
// It provides a flexible, inheritance-based configuration system with validation.
//
// Key features:
//   - No level settings: levels are set on the logger, not in these options
//   - Flexible formatting options per output
//   - Configuration inheritance from defaults
//   - JSON, YAML, TOML compatible structures
//   - Validation with detailed error reporting
//
// # Design Philosophy
//
//  1. Separation of Concerns: the stdout output has its own dedicated options
//     structure with relevant configuration fields.
//
//  2. Inheritance: Options can inherit from a default configuration, allowing
//     centralized base settings with per-instance overrides.
//
//  3. Validation: Built-in validation ensures configuration consistency before
//     logger instantiation, preventing runtime errors.
//
//  4. Marshaling: All structures use standard tags (json, yaml, toml, mapstructure)
//     for seamless integration with configuration management systems.
//
// # Architecture
//
// Configuration Flow:
//
//	┌─────────────────┐
//	│  Default Config │ (optional, via RegisterDefaultFunc)
//	└────────┬────────┘
//	         │ (if InheritDefault = true)
//	         ▼
//	┌─────────────────┐
//	│     Options     │──┐
//	├─────────────────┤  │
//	│ TraceFilter     │  │
//	│ Stdout          │  │ Merge logic
//	└────────┬────────┘  │ (Options(), Merge())
//	         │           │
//	         ▼           │
//	┌─────────────────┐  │
//	│ Final Options   │◄─┘
//	└────────┬────────┘
//	         │
//	         ▼
//	   Validation (Validate())
//	         │
//	         ▼
//	   Logger Creation
//
// # Basic Usage
//
// Creating a simple stdout-only configuration:
//
//	opts := &config.Options{
//	    Stdout: &config.OptionsStd{
//	        DisableStandard:  false,  // Enable stdout
//	        DisableStack:     true,   // No goroutine ID
//	        DisableTimestamp: false,  // Show timestamps
//	        EnableTrace:      true,   // Show caller info
//	        DisableColor:     false,  // Allow colors (if TTY)
//	        EnableAccessLog:  false,  // No HTTP access logs
//	    },
//	}
//
//	// Validate before use
//	if err := opts.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration Inheritance
//
// Using default configuration with overrides:
//
//	defaultConfig := func() *config.Options {
//	    return &config.Options{
//	        Stdout: &config.OptionsStd{
//	            EnableTrace:  true,
//	            DisableStack: true,
//	        },
//	    }
//	}
//
//	opts := &config.Options{
//	    InheritDefault: true,           // Enable inheritance
//	    TraceFilter:    "/myproject/",  // Override trace filter
//	}
//	opts.RegisterDefaultFunc(defaultConfig)
//
//	final := opts.Options()
//
// # Configuration Sources
//
// JSON example:
//
//	{
//	  "inheritDefault": false,
//	  "traceFilter": "/myproject/",
//	  "stdout": {
//	    "disableStandard": false,
//	    "enableTrace": true
//	  }
//	}
//
// # Default Configuration
//
// Retrieving the default configuration template:
//
//	defaultJSON := config.DefaultConfig("")
//	prettyJSON := config.DefaultConfig("  ")
//
//	var opts config.Options
//	if err := json.Unmarshal(defaultJSON, &opts); err != nil {
//	    log.Fatal(err)
//	}
//
// # Validation
//
// The Validate method uses go-playground/validator for struct validation:
//
//	if err := opts.Validate(); err != nil {
//	    fmt.Println("Validation errors:", err)
//	    return
//	}
//
// # Trace Filtering
//
// The TraceFilter field allows cleaning file paths in stack traces:
//
//	opts := &config.Options{
//	    TraceFilter: "/go/src/github.com/myproject/",
//	    Stdout: &config.OptionsStd{
//	        EnableTrace: true,
//	    },
//	}
//
// With TraceFilter:
//
//	main.go:42 instead of /go/src/github.com/myproject/main.go:42
//
// # Cloning and Merging
//
// Cloning creates independent copies; Merge combines two configurations,
// overriding only the fields actually set on the override.
//
// # Error Handling
//
// The package defines two error codes:
//
//   - ErrorParamEmpty: Provided parameter is empty or nil
//   - ErrorValidatorError: Configuration validation failed
//
// # Thread Safety
//
// Configuration structures are not thread-safe for modification but support
// safe cloning, safe merging, and safe concurrent reading once finalized.
package config
