// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	"encoding/gob"
	"sort"

	"github.com/grailbio/base/digest"
)

var digester = digest.Digester(crypto.SHA256)

// contentKey returns the hex digest of the provided serialized
// payload. Artifacts are named by their payload's content key, so two
// items with byte-identical serializations share a single argument and
// result artifact. The key is stable across processes and machines;
// resumption over a shared filesystem depends on this.
func contentKey(p []byte) string {
	return digester.FromBytes(p).Hex()
}

// kwargsKey returns the content key of a keyword-argument set. Pairs
// are encoded in sorted key order: gob's map encoding order is
// unspecified, and the namespace derived from this key must be
// reproducible.
func kwargsKey(args Args) (string, error) {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b bytes.Buffer
	enc := gob.NewEncoder(&b)
	for _, key := range keys {
		if err := enc.Encode(key); err != nil {
			return "", err
		}
		value := args[key]
		if err := enc.Encode(&value); err != nil {
			return "", err
		}
	}
	return contentKey(b.Bytes()), nil
}
