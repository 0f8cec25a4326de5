// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ancestry is a 1000 Genomes superpopulation code. Reference panels
// are published per ancestry; the code appears somewhere in each
// panel's path.
type ancestry string

const (
	ancestryAfrican    ancestry = "afr"
	ancestryAmerican   ancestry = "amr"
	ancestryEastAsian  ancestry = "eas"
	ancestryEuropean   ancestry = "eur"
	ancestrySouthAsian ancestry = "sas"
)

var ancestryNames = map[ancestry]string{
	ancestryAfrican:    "AFRICAN",
	ancestryAmerican:   "AMERICAN",
	ancestryEastAsian:  "EAST_ASIAN",
	ancestryEuropean:   "EUROPEAN",
	ancestrySouthAsian: "SOUTH_ASIAN",
}

func (a ancestry) String() string {
	if name, ok := ancestryNames[a]; ok {
		return name
	}
	return string(a)
}

// parseAncestries converts user-supplied codes into ancestry values,
// rejecting anything outside the supported set.
func parseAncestries(codes []string) ([]ancestry, error) {
	var out []ancestry
	for _, code := range codes {
		a := ancestry(strings.ToLower(strings.TrimSpace(code)))
		if _, ok := ancestryNames[a]; !ok {
			return nil, fmt.Errorf("unsupported ancestry %q (supported: afr, amr, eas, eur, sas)", code)
		}
		out = append(out, a)
	}
	return out, nil
}

// The ancestry code must be bounded by non-letter characters, e.g.
// "panel.afr.bed" or "1000G/eur/chr1.bed", so that a code embedded in
// a longer word does not match.
var ancestryPattern = regexp.MustCompile(`(?i)(^|[^a-zA-Z])(afr|amr|eas|eur|sas)($|[^a-zA-Z])`)

func parseAncestry(path string) (ancestry, bool) {
	m := ancestryPattern.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return ancestry(strings.ToLower(m[2])), true
}

// bFileSet is one complete plink binary file set: genotype data (.bed),
// variant map (.bim), sample map (.fam), plus the panel's ancestry.
type bFileSet struct {
	BED      string
	BIM      string
	FAM      string
	Ancestry ancestry
}

// Prefix returns the path prefix plink expects for --bfile.
func (bs bFileSet) Prefix() string {
	return strings.TrimSuffix(bs.BED, ".bed")
}

// bFileSetBuilder accumulates component files for one prefix during
// discovery. Entries escape to callers only after finalization proves
// all three slots are filled.
type bFileSetBuilder struct {
	bed, bim, fam string
	ancestry      ancestry
}

func (b *bFileSetBuilder) setComponent(ext, path string) error {
	var slot *string
	switch ext {
	case ".bed":
		slot = &b.bed
	case ".bim":
		slot = &b.bim
	case ".fam":
		slot = &b.fam
	default:
		return fmt.Errorf("unexpected bfile component extension %q for %s", ext, path)
	}
	if *slot != "" {
		return fmt.Errorf("duplicate bfile component %s: %s already found for the same prefix; check that only one bfile set per prefix exists in the reference directory", path, *slot)
	}
	*slot = path
	return nil
}

func (b *bFileSetBuilder) missing() []string {
	var m []string
	if b.bed == "" {
		m = append(m, ".bed")
	}
	if b.bim == "" {
		m = append(m, ".bim")
	}
	if b.fam == "" {
		m = append(m, ".fam")
	}
	return m
}

func (b *bFileSetBuilder) finalize() (bFileSet, error) {
	if m := b.missing(); len(m) > 0 {
		return bFileSet{}, fmt.Errorf("incomplete bfile set: missing %s component(s)", strings.Join(m, ", "))
	}
	return bFileSet{BED: b.bed, BIM: b.bim, FAM: b.fam, Ancestry: b.ancestry}, nil
}

// discoverBFileSets walks dir looking for plink bfile sets whose paths
// carry one of the requested ancestry codes. Files with an
// unrecognized extension, or with no recognizable ancestry code, are
// skipped and returned in the second value so callers can report them.
// A second component file for an already-filled slot is an error: the
// set would be ambiguous.
func discoverBFileSets(dir string, keep []ancestry) (map[string]bFileSet, []string, error) {
	keepSet := map[ancestry]bool{}
	for _, a := range keep {
		keepSet[a] = true
	}
	builders := map[string]*bFileSetBuilder{}
	var skipped []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".bed" && ext != ".bim" && ext != ".fam" {
			skipped = append(skipped, path)
			return nil
		}
		anc, ok := parseAncestry(path)
		if !ok {
			skipped = append(skipped, path)
			return nil
		}
		if !keepSet[anc] {
			return nil
		}
		prefix := strings.TrimSuffix(path, ext)
		b := builders[prefix]
		if b == nil {
			b = &bFileSetBuilder{ancestry: anc}
			builders[prefix] = b
		}
		return b.setComponent(ext, path)
	})
	if err != nil {
		return nil, skipped, err
	}

	sets := make(map[string]bFileSet, len(builders))
	for prefix, b := range builders {
		set, err := b.finalize()
		if err != nil {
			return nil, skipped, fmt.Errorf("%s: %w", prefix, err)
		}
		sets[prefix] = set
	}
	return sets, skipped, nil
}

// sortedPrefixes returns the set prefixes in a stable order; the first
// one becomes the base of the merge.
func sortedPrefixes(sets map[string]bFileSet) []string {
	prefixes := make([]string, 0, len(sets))
	for prefix := range sets {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
