// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// toolCmd accumulates arguments for an external genetics tool (MAGMA,
// plink). Both tools use the same convention: bare flags first, then
// key/value flags, where keys beginning with "--" are passed as two
// separate tokens and all other keys as a single "key=value" token.
type toolCmd struct {
	bare []string
	kv   []toolArg
}

type toolArg struct {
	key, value string
}

func (tc *toolCmd) Flag(name string) *toolCmd {
	tc.bare = append(tc.bare, name)
	return tc
}

func (tc *toolCmd) Arg(key, value string) *toolCmd {
	tc.kv = append(tc.kv, toolArg{key, value})
	return tc
}

var longFlag = regexp.MustCompile(`^--[a-z]`)

// Tokens serializes the accumulated flags into the argument list
// passed to the subprocess, preserving insertion order.
func (tc *toolCmd) Tokens() []string {
	tokens := append([]string(nil), tc.bare...)
	for _, a := range tc.kv {
		if longFlag.MatchString(a.key) {
			tokens = append(tokens, a.key, a.value)
		} else {
			tokens = append(tokens, a.key+"="+a.value)
		}
	}
	return tokens
}

// runTool invokes prog with the built argument list and blocks until
// it exits. The executable must be findable on PATH; if it is not, the
// call fails before any subprocess is created.
func runTool(prog string, tc *toolCmd, stdout, stderr io.Writer) error {
	exe, err := exec.LookPath(prog)
	if err != nil {
		return fmt.Errorf("%s executable not found in PATH: %w", prog, err)
	}
	tokens := tc.Tokens()
	log.Infof("running %s %s", prog, strings.Join(tokens, " "))
	cmd := exec.Command(exe, tokens...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", prog, strings.Join(tokens, " "), err)
	}
	return nil
}
