// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config drives the run subcommand: one TOML file describing every
// stage of the pipeline.
type Config struct {
	OutputDir string `toml:"output_dir"`

	Sumstats struct {
		Path               string `toml:"path"`
		Delimiter          string `toml:"delimiter"`
		VariantIDColumn    string `toml:"variant_id_column"`
		PValueColumn       string `toml:"p_value_column"`
		SampleSizeColumn   string `toml:"sample_size_column"`
		ChromosomeColumn   string `toml:"chromosome_column"`
		PositionColumn     string `toml:"position_column"`
		RefAlleleColumn    string `toml:"ref_allele_column"`
		EffectAlleleColumn string `toml:"effect_allele_column"`
	} `toml:"sumstats"`

	Reference struct {
		BFileDir   string   `toml:"bfile_dir"`
		Ancestries []string `toml:"ancestries"`
	} `toml:"reference"`

	Annotation struct {
		GeneLocFile string `toml:"gene_loc_file"`
		Window      string `toml:"window"`
	} `toml:"annotation"`

	GeneAnalysis struct {
		SampleSize       int    `toml:"sample_size"`
		SampleSizeColumn string `toml:"sample_size_column"`
	} `toml:"gene_analysis"`

	GeneSet struct {
		Trait             string `toml:"trait"`
		TopGenes          int    `toml:"top_genes"`
		GeneNameMap       string `toml:"gene_name_map"`
		GeneNameMapHeader bool   `toml:"gene_name_map_header"`
	} `toml:"gene_set"`
}

func loadConfig(path string) (*Config, error) {
	cfg := new(Config)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	for _, req := range []struct{ name, value string }{
		{"output_dir", cfg.OutputDir},
		{"sumstats.path", cfg.Sumstats.Path},
		{"reference.bfile_dir", cfg.Reference.BFileDir},
		{"annotation.gene_loc_file", cfg.Annotation.GeneLocFile},
		{"gene_set.trait", cfg.GeneSet.Trait},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("config %s: %s is required", path, req.name)
		}
	}
	if len(cfg.Reference.Ancestries) == 0 {
		return nil, fmt.Errorf("config %s: reference.ancestries is required", path)
	}
	if cfg.GeneSet.TopGenes <= 0 {
		cfg.GeneSet.TopGenes = 1000
	}
	return cfg, nil
}
