// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package nengodist provides the shared identifiers and error kinds used
// across the distributed step-engine: signal keys and the BuildError,
// RuntimeError and IOError kinds raised by the signal store, operator
// scheduler, chunk and distributed simulator packages.
package nengodist
