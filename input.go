// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// zopen opens a file, transparently decompressing it if its name ends
// in ".gz". GWAS summary files are usually shipped gzipped.
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := os.Open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{rdr, f}, nil
}

// gzipr wraps a ReadCloser and a Closer, presenting a single Close()
// method that closes both wrapped objects.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// sniffDelimiter guesses the field delimiter of a delimited text file
// from its header line. Candidates are checked in order of preference.
func sniffDelimiter(header string) (rune, error) {
	for _, c := range []rune{'\t', ',', ';', ' '} {
		if strings.ContainsRune(header, c) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("cannot detect a field delimiter in header %q", header)
}
