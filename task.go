// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"

	"github.com/grailbio/base/errors"
)

var (
	funcsMu sync.Mutex
	funcs   = make(map[string]*FuncValue)
)

var (
	typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeOfError   = reflect.TypeOf((*error)(nil)).Elem()
)

// Args is a set of keyword arguments delivered to every job of a map
// invocation. Tasks that take a context retrieve them with Kwargs.
// The set is part of the namespace identity: maps of the same task
// with different keyword arguments do not share artifacts.
type Args map[string]interface{}

type kwargsContextKey struct{}

func withKwargs(ctx context.Context, args Args) context.Context {
	return context.WithValue(ctx, kwargsContextKey{}, args)
}

// Kwargs returns the keyword-argument set of the current task
// invocation, or nil if none was provided.
func Kwargs(ctx context.Context) Args {
	args, _ := ctx.Value(kwargsContextKey{}).(Args)
	return args
}

// A FuncValue names a task that may be invoked by remote jobs. Tasks
// are identified across process boundaries by their registered name,
// so the name must be stable across builds of the program.
type FuncValue struct {
	name    string
	fn      reflect.Value
	arg     reflect.Type
	hasCtx  bool
	hasErr  bool
}

// Name returns the name under which the task was registered.
func (f *FuncValue) Name() string { return f.name }

// Func registers fn as a task under the provided name, returning a
// FuncValue to pass to Map. Accepted signatures are
//
//	func(T) R
//	func(T) (R, error)
//	func(context.Context, T) R
//	func(context.Context, T) (R, error)
//
// The argument and result types are registered with gob so that they
// can be transported through artifacts. Func panics if the signature
// does not conform or the name was already registered: registration is
// expected to happen in package scope, where a panic is a build-time
// affair.
func Func(name string, fn interface{}) *FuncValue {
	fv := reflect.ValueOf(fn)
	ftype := fv.Type()
	if ftype.Kind() != reflect.Func {
		panic(fmt.Sprintf("slurmmap.Func %s: argument is %T, not a func", name, fn))
	}
	v := &FuncValue{name: name, fn: fv}
	in := 0
	if ftype.NumIn() > 0 && ftype.In(0) == typeOfContext {
		v.hasCtx = true
		in = 1
	}
	if ftype.NumIn() != in+1 {
		panic(fmt.Sprintf("slurmmap.Func %s: func must take a single argument (optionally preceded by a context.Context)", name))
	}
	v.arg = ftype.In(in)
	switch ftype.NumOut() {
	case 1:
		if ftype.Out(0) == typeOfError {
			panic(fmt.Sprintf("slurmmap.Func %s: func must return a result value", name))
		}
	case 2:
		if ftype.Out(1) != typeOfError {
			panic(fmt.Sprintf("slurmmap.Func %s: second return value must be error", name))
		}
		v.hasErr = true
	default:
		panic(fmt.Sprintf("slurmmap.Func %s: func must return a result and an optional error", name))
	}
	register(v.arg)
	register(ftype.Out(0))
	funcsMu.Lock()
	defer funcsMu.Unlock()
	if _, ok := funcs[name]; ok {
		panic(fmt.Sprintf("slurmmap.Func %s: task already registered", name))
	}
	funcs[name] = v
	return v
}

func register(typ reflect.Type) {
	if typ.Kind() == reflect.Interface {
		return
	}
	gob.Register(reflect.Zero(typ).Interface())
}

func lookup(name string) (*FuncValue, error) {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	fv, ok := funcs[name]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("slurmmap: task %s is not registered in this binary", name))
	}
	return fv, nil
}

// apply invokes the task on a decoded argument value.
func (f *FuncValue) apply(ctx context.Context, arg interface{}) (interface{}, error) {
	argv := reflect.ValueOf(arg)
	if arg == nil {
		argv = reflect.Zero(f.arg)
	}
	if !argv.Type().AssignableTo(f.arg) {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("slurmmap: task %s: argument type %s is not assignable to %s", f.name, argv.Type(), f.arg))
	}
	in := []reflect.Value{argv}
	if f.hasCtx {
		in = append([]reflect.Value{reflect.ValueOf(ctx)}, in...)
	}
	out := f.fn.Call(in)
	if f.hasErr && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}
