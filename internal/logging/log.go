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

// Package logging provides the process-wide log. It writes to stdout, and
// optionally also to a file. It does not add prefixes, or force newlines.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

var (
	mu        sync.Mutex
	stdout    io.Writer = os.Stdout
	logFile   *bufio.Writer
	logFileOS *os.File
)

type tee struct{}

// Writes to stdout and the log file, if any. Safe for concurrent use
func (tee) Write(p []byte) (n int, err error) {
	mu.Lock()
	defer mu.Unlock()
	n, err = stdout.Write(p)
	if err != nil || logFile == nil {
		return n, err
	}
	return logFile.Write(p)
}

// Returns the log as a writer, for use in execution contexts
func Writer() io.Writer { return tee{} }

// Enables logging to file, closing any previous log file
func LogAlsoToFile(fileName string) error {
	mu.Lock()
	defer mu.Unlock()
	if err := closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return errors.Wrapf(err, "opening log file %s", fileName)
	}
	logFileOS, logFile = f, bufio.NewWriter(f)
	return nil
}

func closeFile() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Flush()
	if cerr := logFileOS.Close(); err == nil {
		err = cerr
	}
	logFile, logFileOS = nil, nil
	return errors.Wrap(err, "closing log file")
}

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(tee{}, format, args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(tee{}, args...)
}

// Flushes the log file to disk
func LogSync() {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return
	}
	logFile.Flush()
	logFileOS.Sync()
}

// Closes the log file, if any
func LogClose() error {
	mu.Lock()
	defer mu.Unlock()
	return closeFile()
}

// Logs the message, closes the log file and exits with status 1
func LogFatalf(format string, args ...interface{}) {
	LogPrintf(format, args...)
	LogClose()
	os.Exit(1)
}
