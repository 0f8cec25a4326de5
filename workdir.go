// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// setupDirs ensures the final output directory exists and creates a
// "tmp" sibling to hold per-invocation scratch space. Returns the
// output directory and the tmp directory.
func setupDirs(outputDir string) (string, string, error) {
	if outputDir == "" {
		return "", "", fmt.Errorf("output directory not specified")
	}
	if err := os.MkdirAll(outputDir, 0777); err != nil {
		return "", "", fmt.Errorf("creating output directory %s: %w", outputDir, err)
	}
	tmpDir := filepath.Join(filepath.Dir(outputDir), "tmp")
	if err := os.MkdirAll(tmpDir, 0777); err != nil {
		return "", "", fmt.Errorf("creating tmp directory %s: %w", tmpDir, err)
	}
	return outputDir, tmpDir, nil
}

// makeWorkDir creates a scratch directory with a random hex name under
// parent, so concurrent pipeline runs sharing a tmp dir do not collide.
func makeWorkDir(parent string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	dir := filepath.Join(parent, hex.EncodeToString(buf))
	if err := os.Mkdir(dir, 0777); err != nil {
		return "", fmt.Errorf("creating work directory %s: %w", dir, err)
	}
	log.Debugf("created work directory %s", dir)
	return dir, nil
}

// requireFiles verifies that every given path exists. A missing path
// after a tool reports success means the tool failed silently.
func requireFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("expected output file %s is missing: %w", p, err)
		}
	}
	return nil
}

// moveOutputs renames each file into dstdir, checking that it exists
// first. Returns the destination paths.
func moveOutputs(dstdir string, paths ...string) ([]string, error) {
	moved := make([]string, 0, len(paths))
	for _, p := range paths {
		if err := requireFiles(p); err != nil {
			return nil, err
		}
		dst := filepath.Join(dstdir, filepath.Base(p))
		if err := os.Rename(p, dst); err != nil {
			return nil, fmt.Errorf("moving %s to %s: %w", p, dst, err)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}
