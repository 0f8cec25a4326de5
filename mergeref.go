// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

const mergedPrefix = "merge"

// Variant IDs extracted from a .missnp conflict file.
var variantIDPattern = regexp.MustCompile(`rs\d+`)

// mergeResult is the outcome of one plink merge attempt: either the
// merged bed/bim/fam paths, or the list of conflicting variant IDs
// that must be excluded before retrying.
type mergeResult struct {
	merged   []string
	excluded []string
}

func (r mergeResult) conflict() bool { return r.excluded != nil }

func writeMergeList(workDir string, prefixes []string) (string, error) {
	path := filepath.Join(workDir, "merge_list.txt")
	err := ioutil.WriteFile(path, []byte(strings.Join(prefixes[1:], "\n")+"\n"), 0666)
	if err != nil {
		return "", fmt.Errorf("writing merge list: %w", err)
	}
	return path, nil
}

// attemptMerge runs one plink merge of the given bfile prefixes, the
// first as the base and the rest via --merge-list. A failure that left
// a .missnp file behind is a variant conflict and is returned as a
// ConflictDetected-style result; any other failure is returned as an
// error.
func attemptMerge(workDir string, prefixes []string, stdout, stderr io.Writer) (mergeResult, error) {
	listPath, err := writeMergeList(workDir, prefixes)
	if err != nil {
		return mergeResult{}, err
	}
	outPrefix := filepath.Join(workDir, mergedPrefix)
	tc := new(toolCmd).Flag("--make-bed").
		Arg("--bfile", prefixes[0]).
		Arg("--merge-list", listPath).
		Arg("--out", outPrefix)
	runErr := runTool("plink", tc, stdout, stderr)
	if runErr == nil {
		merged := []string{outPrefix + ".bed", outPrefix + ".bim", outPrefix + ".fam"}
		if err := requireFiles(merged...); err != nil {
			return mergeResult{}, err
		}
		return mergeResult{merged: merged}, nil
	}
	missnp := outPrefix + "-merge.missnp"
	if _, err := os.Stat(missnp); err != nil {
		return mergeResult{}, runErr
	}
	ids, err := readConflictVariants(missnp)
	if err != nil {
		return mergeResult{}, err
	}
	log.Warnf("merge failed on %d conflicting variants", len(ids))
	return mergeResult{excluded: ids}, nil
}

func readConflictVariants(missnp string) ([]string, error) {
	buf, err := ioutil.ReadFile(missnp)
	if err != nil {
		return nil, fmt.Errorf("reading conflict list: %w", err)
	}
	ids := []string{}
	for _, line := range strings.Split(string(buf), "\n") {
		if id := variantIDPattern.FindString(line); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// preserveConflictArtifacts renames the failed merge's .missnp and log
// so they survive the retry for diagnostics, and writes the exclusion
// list consumed by the pruning runs. Returns the exclusion list path.
func preserveConflictArtifacts(workDir string, ids []string) (string, error) {
	renames := [][2]string{
		{mergedPrefix + "-merge.missnp", "failed_merge.missnp"},
		{mergedPrefix + ".log", "failed_merge.log"},
	}
	for _, r := range renames {
		if err := os.Rename(filepath.Join(workDir, r[0]), filepath.Join(workDir, r[1])); err != nil {
			return "", fmt.Errorf("preserving merge conflict artifact: %w", err)
		}
	}
	exclude := filepath.Join(workDir, "exclude_merge_variants.txt")
	if err := ioutil.WriteFile(exclude, []byte(strings.Join(ids, "\n")+"\n"), 0666); err != nil {
		return "", fmt.Errorf("writing exclusion list: %w", err)
	}
	return exclude, nil
}

// pruneConflicts produces a copy of each input bfile set with the
// conflicting variants excluded. Returns the pruned prefixes in the
// same order as the inputs.
func pruneConflicts(workDir string, prefixes []string, exclude string, stdout, stderr io.Writer) ([]string, error) {
	pruned := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		log.Infof("pruning conflicting variants from %s", prefix)
		out := filepath.Join(workDir, filepath.Base(prefix)+".pruned")
		tc := new(toolCmd).Flag("--make-bed").
			Arg("--bfile", prefix).
			Arg("--exclude", exclude).
			Arg("--out", out)
		if err := runTool("plink", tc, stdout, stderr); err != nil {
			return nil, err
		}
		pruned = append(pruned, out)
	}
	return pruned, nil
}

// mergeBFileSets merges the given bfile sets into a single reference
// panel in workDir. If the first attempt fails on a variant conflict,
// the conflicting variants are pruned from every input and the merge
// is retried exactly once; a second conflict is fatal. Returns the
// merged bed/bim/fam paths.
func mergeBFileSets(workDir string, sets map[string]bFileSet, stdout, stderr io.Writer) ([]string, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("no bfile sets to merge")
	}
	prefixes := sortedPrefixes(sets)
	log.Infof("merging bfile sets: %s", strings.Join(prefixes, ", "))
	res, err := attemptMerge(workDir, prefixes, stdout, stderr)
	if err != nil {
		return nil, err
	}
	if res.conflict() {
		exclude, err := preserveConflictArtifacts(workDir, res.excluded)
		if err != nil {
			return nil, err
		}
		pruned, err := pruneConflicts(workDir, prefixes, exclude, stdout, stderr)
		if err != nil {
			return nil, err
		}
		log.Info("retrying merge with pruned bfile sets")
		res, err = attemptMerge(workDir, pruned, stdout, stderr)
		if err != nil {
			return nil, err
		}
		if res.conflict() {
			return nil, fmt.Errorf("merge failed again after pruning %d conflicting variants", len(res.excluded))
		}
	}
	return res.merged, nil
}

// makeReference implements the make-reference subcommand: discover
// per-ancestry plink bfile sets under a directory and merge the
// requested ancestries into one reference panel.
type makeReference struct{}

func (cmd *makeReference) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	bfileDir := flags.String("bfile-dir", "", "`directory` containing per-ancestry bfile sets")
	outputDir := flags.String("o", "reference", "output `directory`")
	ancestries := flags.String("ancestries", "afr,amr,eas,eur,sas", "comma-separated ancestry `codes` to merge")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *bfileDir == "" {
		err = fmt.Errorf("-bfile-dir not specified")
		return 2
	}
	keep, err := parseAncestries(strings.Split(*ancestries, ","))
	if err != nil {
		return 2
	}

	outDir, tmpDir, err := setupDirs(*outputDir)
	if err != nil {
		return 1
	}
	workDir, err := makeWorkDir(tmpDir)
	if err != nil {
		return 1
	}

	sets, skippedPaths, err := discoverBFileSets(*bfileDir, keep)
	for _, p := range skippedPaths {
		log.Debugf("skipping %s: not a usable bfile component", p)
	}
	if err != nil {
		return 1
	}
	for prefix, set := range sets {
		log.Infof("found %s bfile set %s", set.Ancestry, prefix)
	}

	merged, err := mergeBFileSets(workDir, sets, stdout, stderr)
	if err != nil {
		return 1
	}
	moved, err := moveOutputs(outDir, merged...)
	if err != nil {
		return 1
	}
	err = requireFiles(moved...)
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, filepath.Join(outDir, mergedPrefix))
	return 0
}
