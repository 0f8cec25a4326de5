// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"io/ioutil"
	"path/filepath"

	"gopkg.in/check.v1"
)

type configSuite struct{}

var _ = check.Suite(&configSuite{})

const testConfig = `output_dir = "out"

[sumstats]
path = "sumstats.tsv.gz"
effect_allele_column = "A1"

[reference]
bfile_dir = "ref"
ancestries = ["afr", "eur"]

[annotation]
gene_loc_file = "genes.loc"
window = "10,10"

[gene_analysis]
sample_size = 50000

[gene_set]
trait = "height"
top_genes = 500
`

func writeConfig(c *check.C, content string) string {
	path := filepath.Join(c.MkDir(), "config.toml")
	c.Assert(ioutil.WriteFile(path, []byte(content), 0666), check.IsNil)
	return path
}

func (s *configSuite) TestLoadConfig(c *check.C) {
	cfg, err := loadConfig(writeConfig(c, testConfig))
	c.Assert(err, check.IsNil)
	c.Check(cfg.OutputDir, check.Equals, "out")
	c.Check(cfg.Sumstats.Path, check.Equals, "sumstats.tsv.gz")
	c.Check(cfg.Sumstats.EffectAlleleColumn, check.Equals, "A1")
	c.Check(cfg.Reference.Ancestries, check.DeepEquals, []string{"afr", "eur"})
	c.Check(cfg.Annotation.Window, check.Equals, "10,10")
	c.Check(cfg.GeneAnalysis.SampleSize, check.Equals, 50000)
	c.Check(cfg.GeneSet.Trait, check.Equals, "height")
	c.Check(cfg.GeneSet.TopGenes, check.Equals, 500)
}

func (s *configSuite) TestLoadConfigMissingRequired(c *check.C) {
	_, err := loadConfig(writeConfig(c, `output_dir = "out"`))
	c.Check(err, check.ErrorMatches, `config .*: sumstats\.path is required`)
}

func (s *configSuite) TestLoadConfigMissingTrait(c *check.C) {
	content := `output_dir = "out"
[sumstats]
path = "s.tsv"
[reference]
bfile_dir = "ref"
ancestries = ["eur"]
[annotation]
gene_loc_file = "genes.loc"
`
	_, err := loadConfig(writeConfig(c, content))
	c.Check(err, check.ErrorMatches, `config .*: gene_set\.trait is required`)
}

func (s *configSuite) TestLoadConfigDefaultTopGenes(c *check.C) {
	content := `output_dir = "out"
[sumstats]
path = "s.tsv"
[reference]
bfile_dir = "ref"
ancestries = ["eur"]
[annotation]
gene_loc_file = "genes.loc"
[gene_set]
trait = "height"
`
	cfg, err := loadConfig(writeConfig(c, content))
	c.Assert(err, check.IsNil)
	c.Check(cfg.GeneSet.TopGenes, check.Equals, 1000)
}

func (s *configSuite) TestLoadConfigNoAncestries(c *check.C) {
	content := `output_dir = "out"
[sumstats]
path = "s.tsv"
[reference]
bfile_dir = "ref"
[annotation]
gene_loc_file = "genes.loc"
[gene_set]
trait = "height"
`
	_, err := loadConfig(writeConfig(c, content))
	c.Check(err, check.ErrorMatches, `config .*: reference\.ancestries is required`)
}
