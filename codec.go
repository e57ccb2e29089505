// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"bytes"
	"encoding/gob"

	"github.com/grailbio/base/errors"
)

func init() {
	// Values travel through artifacts as interfaces, so every concrete
	// type needs a gob registration. Task argument and result types are
	// registered by Func; common scalar and container types that appear
	// in keyword-argument sets (and the task-name artifact) are
	// registered here.
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(0.0)
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register([]interface{}{})
	gob.Register(map[string]interface{}{})
	gob.Register(Args{})
}

// encode serializes a value for transport through an artifact. Values
// are encoded as interfaces so that the remote entrypoint can decode
// them without static knowledge of the concrete type; the concrete
// types themselves are gob-registered at task registration.
func encode(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(&v); err != nil {
		return nil, errors.E(err, "slurmmap: encode value")
	}
	return b.Bytes(), nil
}

func decode(p []byte) (interface{}, error) {
	var v interface{}
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&v); err != nil {
		return nil, errors.E(err, "slurmmap: decode value")
	}
	return v, nil
}
