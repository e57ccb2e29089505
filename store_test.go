// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func testStore(t *testing.T) (store, func()) {
	t.Helper()
	dir, cleanup := testutil.TempDir(t, "", "")
	s := store{ns: namespace{dir: filepath.Join(dir, "ns")}}
	assert.NoError(t, s.init())
	return s, cleanup
}

func TestStoreArtifacts(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	fz := fuzz.New()
	fz.NumElements(1e3, 1e5)
	var data []byte
	fz.Fuzz(&data)

	path := s.ns.argPath("somekey")
	_, err := s.get(path)
	if err == nil {
		t.Fatal("artifact prematurely available")
	} else if !errors.Is(errors.NotExist, err) {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.exists(path) {
		t.Fatal("artifact prematurely exists")
	}
	assert.NoError(t, s.put(path, data))
	got, err := s.get(path)
	assert.NoError(t, err)
	if !bytes.Equal(got, data) {
		t.Error("data do not match")
	}
	if !s.exists(path) {
		t.Error("artifact does not exist after put")
	}
	// No temporary files may linger next to finalized artifacts.
	infos, err := ioutil.ReadDir(filepath.Dir(path))
	assert.NoError(t, err)
	if got, want := len(infos), 1; got != want {
		t.Errorf("got %v entries, want %v", got, want)
	}
}

func TestStoreInitIdempotent(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()
	assert.NoError(t, s.init())
	assert.NoError(t, s.init())
}

func TestLedger(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()

	ids, err := s.readLedger()
	assert.NoError(t, err)
	if len(ids) != 0 {
		t.Fatalf("fresh namespace has ledger entries: %v", ids)
	}
	assert.NoError(t, s.writeLedger([]string{"11", "12"}))
	assert.NoError(t, s.writeLedger([]string{"12", "13"}))
	ids, err = s.readLedger()
	assert.NoError(t, err)
	assert.EQ(t, ids, []string{"11", "12", "13"})
}

func TestLedgerCorrupt(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()
	assert.NoError(t, ioutil.WriteFile(s.ns.ledgerPath(), []byte("not json"), 0666))
	_, err := s.readLedger()
	assert.NotNil(t, err)
}

func TestAtomicWriteCleansUp(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()
	// Writing into a missing directory fails and must not leave
	// temporary files behind in existing ones.
	err := atomicWrite(filepath.Join(s.ns.dir, "nodir", "x"), []byte("x"))
	assert.NotNil(t, err)
	if _, err := os.Stat(filepath.Join(s.ns.dir, "nodir")); err == nil {
		t.Error("directory should not have been created")
	}
}
