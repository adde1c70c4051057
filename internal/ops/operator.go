// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// An execution context for registration runs
type Context struct {
	Log        io.Writer
	MemoryMB   int    // memory.TotalMemory()/1024/1024
	BufferMB   int    // MemoryMB*7/10, budget for per-stage buffers
	MaxThreads int    `json:"maxThreads"`
	CPU        string `json:"cpu"`
}

func NewContext(log io.Writer) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	threads := runtime.GOMAXPROCS(0)
	if cores := cpuid.CPU.LogicalCores; cores > 0 && cores < threads {
		threads = cores
	}
	return &Context{
		Log:        log,
		MemoryMB:   memoryMB,
		BufferMB:   memoryMB * 7 / 10,
		MaxThreads: threads,
		CPU:        cpuid.CPU.BrandName,
	}
}

// Returns a copy of the context writing to another log
func (c *Context) WithLog(log io.Writer) *Context {
	res := *c
	res.Log = log
	return &res
}

// Checks whether a buffer of the given size fits into the buffer budget
func (c *Context) Fits(bytes int64) bool {
	if c.BufferMB <= 0 {
		return true
	}
	return bytes <= int64(c.BufferMB)*1024*1024
}

// Writes a log line, if a log is configured
func (c *Context) Logf(format string, args ...interface{}) {
	if c.Log == nil {
		return
	}
	fmt.Fprintf(c.Log, format, args...)
}

// A promise for a value. Returns the materialized value, or an error
type Promise[T any] func() (T, error)

// Materializes all promises with given concurrency limit. Results keep the input order.
// Errors from several promises are joined into one.
func MaterializeAll[T any](ins []Promise[T], maxThreads int) (outs []T, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	outs = make([]T, len(ins))
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise[T]) {
			defer func() { <-limiter }()
			v, err := theIn()
			if err != nil {
				errs <- err
				return
			}
			outs[i] = v
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		e := <-errs
		if e != nil {
			if err == nil {
				err = e
			} else {
				err = fmt.Errorf("%s; %s", err.Error(), e.Error())
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	return true
}
