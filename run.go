// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// runner implements the run subcommand: the whole pipeline (munge
// summary statistics, build the merged reference panel, annotate and
// analyze genes with MAGMA, emit the trait gene set) driven by one
// TOML config file. Each stage works in a scratch directory; finished
// outputs are moved into the configured output directory.
type runner struct{}

func (cmd *runner) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configFilename := flags.String("config", "", "pipeline config `file` (TOML)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *configFilename == "" {
		err = fmt.Errorf("-config not specified")
		return 2
	}
	cfg, err := loadConfig(*configFilename)
	if err != nil {
		return 2
	}
	keep, err := parseAncestries(cfg.Reference.Ancestries)
	if err != nil {
		return 2
	}
	window, err := parseAnnotationWindow(cfg.Annotation.Window)
	if err != nil {
		return 2
	}
	n := sampleSize{total: cfg.GeneAnalysis.SampleSize, column: cfg.GeneAnalysis.SampleSizeColumn}
	if err = n.validate(); err != nil {
		return 2
	}

	outDir, tmpDir, err := setupDirs(cfg.OutputDir)
	if err != nil {
		return 1
	}
	workDir, err := makeWorkDir(tmpDir)
	if err != nil {
		return 1
	}

	// Stage 1: munge the GWAS summary statistics.
	log.Infof("munging %s", cfg.Sumstats.Path)
	munged := filepath.Join(workDir, "munged_sumstats.tsv")
	err = cmd.munge(cfg, munged)
	if err != nil {
		return 1
	}

	// Stage 2: build the merged reference panel.
	sets, skippedPaths, err := discoverBFileSets(cfg.Reference.BFileDir, keep)
	for _, p := range skippedPaths {
		log.Debugf("skipping %s: not a usable bfile component", p)
	}
	if err != nil {
		return 1
	}
	merged, err := mergeBFileSets(workDir, sets, stdout, stderr)
	if err != nil {
		return 1
	}
	bfilePrefix := filepath.Join(workDir, mergedPrefix)

	// Stage 3: annotate SNPs to genes and run gene analysis.
	annot, annotLog, err := annotateVariants(cfg.Annotation.GeneLocFile, munged, filepath.Join(workDir, "annot"), window, stdout, stderr)
	if err != nil {
		return 1
	}
	outs, err := geneAnalysis(bfilePrefix, annot, munged, "SNP", "P", n, filepath.Join(workDir, "genes"), stdout, stderr)
	if err != nil {
		return 1
	}

	// Stage 4: build the trait gene set.
	gsPath, err := cmd.makeGeneset(cfg, outs.GenesOut, workDir)
	if err != nil {
		return 1
	}

	final := []string{munged}
	final = append(final, merged...)
	final = append(final, annot, annotLog)
	final = append(final, outs.paths()...)
	final = append(final, gsPath)
	moved, err := moveOutputs(outDir, final...)
	if err != nil {
		return 1
	}
	log.Infof("pipeline finished, %d files in %s", len(moved), outDir)
	fmt.Fprintln(stdout, filepath.Join(outDir, filepath.Base(gsPath)))
	return 0
}

func (cmd *runner) munge(cfg *Config, outPath string) error {
	cols := defaultSumstatsColumns()
	for _, ov := range []struct {
		name string
		dst  *columnSpec
	}{
		{cfg.Sumstats.VariantIDColumn, &cols.VariantID},
		{cfg.Sumstats.PValueColumn, &cols.PValue},
		{cfg.Sumstats.SampleSizeColumn, &cols.SampleSize},
		{cfg.Sumstats.ChromosomeColumn, &cols.Chromosome},
		{cfg.Sumstats.PositionColumn, &cols.Position},
		{cfg.Sumstats.RefAlleleColumn, &cols.RefAllele},
		{cfg.Sumstats.EffectAlleleColumn, &cols.EffectAllele},
	} {
		if ov.name != "" {
			*ov.dst = explicitColumn(ov.name)
		}
	}
	var delim rune
	if cfg.Sumstats.Delimiter != "" {
		delim = []rune(cfg.Sumstats.Delimiter)[0]
	}

	input, err := zopen(cfg.Sumstats.Path)
	if err != nil {
		return err
	}
	defer input.Close()
	output, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	defer output.Close()
	stats, err := mungeSumstats(input, delim, cols, output)
	if err != nil {
		return err
	}
	if err := output.Close(); err != nil {
		return err
	}
	log.Infof("munged %d variants (%d dropped, %d backfilled, %d clamped), lambda GC %.4f", stats.rows, stats.dropped, stats.backfilled, stats.clamped, stats.lambdaGC)
	return nil
}

func (cmd *runner) makeGeneset(cfg *Config, genesOut, workDir string) (string, error) {
	var nameMap map[string]string
	if cfg.GeneSet.GeneNameMap != "" {
		var err error
		nameMap, err = loadGeneNameMap(cfg.GeneSet.GeneNameMap, cfg.GeneSet.GeneNameMapHeader, 0, columnRef{index: 0}, columnRef{index: 1})
		if err != nil {
			return "", err
		}
	}
	input, err := zopen(genesOut)
	if err != nil {
		return "", err
	}
	defer input.Close()
	gsPath := filepath.Join(workDir, genesetStem(genesOut)+".gs")
	output, err := os.OpenFile(gsPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return "", err
	}
	defer output.Close()
	err = mungeGeneAssociations(input, 0, true, columnRef{name: "GENE", index: -1}, columnRef{name: "P", index: -1}, nameMap, cfg.GeneSet.Trait, cfg.GeneSet.TopGenes, output)
	if err != nil {
		return "", err
	}
	return gsPath, output.Close()
}
