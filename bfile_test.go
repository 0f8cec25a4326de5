// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/check.v1"
)

type bfileSuite struct{}

var _ = check.Suite(&bfileSuite{})

func touchFiles(c *check.C, dir string, names ...string) {
	for _, name := range names {
		c.Assert(ioutil.WriteFile(filepath.Join(dir, name), nil, 0666), check.IsNil)
	}
}

func (s *bfileSuite) TestParseAncestry(c *check.C) {
	for path, want := range map[string]ancestry{
		"ref/panel.afr.bed":      ancestryAfrican,
		"ref/1000G_eur/chr1.bim": ancestryEuropean,
		"SAS.panel.fam":          ancestrySouthAsian,
		"ref/Panel.EAS.bed":      ancestryEastAsian,
	} {
		got, ok := parseAncestry(path)
		c.Check(ok, check.Equals, true, check.Commentf("%s", path))
		c.Check(got, check.Equals, want)
	}
	for _, path := range []string{
		"ref/panel.bed",
		"ref/measles.bed", // "eas" embedded in a word must not match
		"ref/safrole.bim",
	} {
		_, ok := parseAncestry(path)
		c.Check(ok, check.Equals, false, check.Commentf("%s", path))
	}
}

func (s *bfileSuite) TestAncestryString(c *check.C) {
	c.Check(ancestryAfrican.String(), check.Equals, "AFRICAN")
	c.Check(ancestryEuropean.String(), check.Equals, "EUROPEAN")
}

func (s *bfileSuite) TestParseAncestries(c *check.C) {
	got, err := parseAncestries([]string{"AFR", " eur "})
	c.Assert(err, check.IsNil)
	c.Check(got, check.DeepEquals, []ancestry{ancestryAfrican, ancestryEuropean})

	_, err = parseAncestries([]string{"afr", "xyz"})
	c.Check(err, check.ErrorMatches, `unsupported ancestry "xyz".*`)
}

func (s *bfileSuite) TestDiscoverComplete(c *check.C) {
	dir := c.MkDir()
	touchFiles(c, dir, "panel.afr.bed", "panel.afr.bim", "panel.afr.fam", "README.txt", "noancestry.bed")

	sets, skipped, err := discoverBFileSets(dir, []ancestry{ancestryAfrican})
	c.Assert(err, check.IsNil)
	c.Assert(sets, check.HasLen, 1)
	prefix := filepath.Join(dir, "panel.afr")
	set, ok := sets[prefix]
	c.Assert(ok, check.Equals, true)
	c.Check(set.Ancestry, check.Equals, ancestryAfrican)
	c.Check(set.BED, check.Equals, prefix+".bed")
	c.Check(set.BIM, check.Equals, prefix+".bim")
	c.Check(set.FAM, check.Equals, prefix+".fam")
	c.Check(set.Prefix(), check.Equals, prefix)

	sort.Strings(skipped)
	c.Check(skipped, check.DeepEquals, []string{
		filepath.Join(dir, "README.txt"),
		filepath.Join(dir, "noancestry.bed"),
	})
}

func (s *bfileSuite) TestDiscoverIncompleteSet(c *check.C) {
	dir := c.MkDir()
	touchFiles(c, dir, "panel.afr.bed", "panel.afr.bim")

	_, _, err := discoverBFileSets(dir, []ancestry{ancestryAfrican})
	c.Check(err, check.ErrorMatches, `.*incomplete bfile set: missing \.fam component\(s\)`)
}

func (s *bfileSuite) TestDiscoverAncestryFilter(c *check.C) {
	dir := c.MkDir()
	touchFiles(c, dir,
		"panel.afr.bed", "panel.afr.bim", "panel.afr.fam",
		"panel.eur.bed", "panel.eur.bim", "panel.eur.fam",
	)

	sets, _, err := discoverBFileSets(dir, []ancestry{ancestryEuropean})
	c.Assert(err, check.IsNil)
	c.Assert(sets, check.HasLen, 1)
	for _, set := range sets {
		c.Check(set.Ancestry, check.Equals, ancestryEuropean)
	}
}

func (s *bfileSuite) TestDiscoverSubdirectories(c *check.C) {
	dir := c.MkDir()
	sub := filepath.Join(dir, "eas")
	c.Assert(ioutil.WriteFile(filepath.Join(dir, "ignore.me"), nil, 0666), check.IsNil)
	c.Assert(os.MkdirAll(sub, 0777), check.IsNil)
	touchFiles(c, sub, "chr1.bed", "chr1.bim", "chr1.fam")

	sets, _, err := discoverBFileSets(dir, []ancestry{ancestryEastAsian})
	c.Assert(err, check.IsNil)
	c.Assert(sets, check.HasLen, 1)
	for prefix, set := range sets {
		c.Check(prefix, check.Equals, filepath.Join(sub, "chr1"))
		c.Check(set.Ancestry, check.Equals, ancestryEastAsian)
	}
}

func (s *bfileSuite) TestBuilderDuplicateComponent(c *check.C) {
	b := &bFileSetBuilder{ancestry: ancestryAfrican}
	c.Assert(b.setComponent(".bed", "a/panel.afr.bed"), check.IsNil)
	err := b.setComponent(".bed", "b/panel.afr.bed")
	c.Check(err, check.ErrorMatches, `duplicate bfile component b/panel\.afr\.bed.*`)
}

func (s *bfileSuite) TestBuilderFinalize(c *check.C) {
	b := &bFileSetBuilder{ancestry: ancestrySouthAsian}
	c.Assert(b.setComponent(".bed", "p.sas.bed"), check.IsNil)
	c.Assert(b.setComponent(".bim", "p.sas.bim"), check.IsNil)
	_, err := b.finalize()
	c.Check(err, check.ErrorMatches, `incomplete bfile set: missing \.fam component\(s\)`)

	c.Assert(b.setComponent(".fam", "p.sas.fam"), check.IsNil)
	set, err := b.finalize()
	c.Assert(err, check.IsNil)
	c.Check(set, check.DeepEquals, bFileSet{BED: "p.sas.bed", BIM: "p.sas.bim", FAM: "p.sas.fam", Ancestry: ancestrySouthAsian})
}

func (s *bfileSuite) TestSortedPrefixes(c *check.C) {
	sets := map[string]bFileSet{"b": {}, "a": {}, "c": {}}
	c.Check(sortedPrefixes(sets), check.DeepEquals, []string{"a", "b", "c"})
}

