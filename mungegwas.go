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

	log "github.com/sirupsen/logrus"
)

// mungeGWAS implements the munge-gwas subcommand: reformat a GWAS
// summary-statistics file into the four-column table MAGMA consumes.
type mungeGWAS struct {
	variantIDCol    string
	pvalueCol       string
	sampleSizeCol   string
	chromosomeCol   string
	positionCol     string
	refAlleleCol    string
	effectAlleleCol string
}

func (cmd *mungeGWAS) Flags(flags *flag.FlagSet) {
	flags.StringVar(&cmd.variantIDCol, "snp-col", "", "variant ID `column` (default: infer from header)")
	flags.StringVar(&cmd.pvalueCol, "pval-col", "", "p-value `column` (default: infer from header)")
	flags.StringVar(&cmd.sampleSizeCol, "n-col", "", "per-variant sample size `column` (default: infer from header)")
	flags.StringVar(&cmd.chromosomeCol, "chr-col", "", "chromosome `column` (default: infer from header)")
	flags.StringVar(&cmd.positionCol, "bp-col", "", "base-pair position `column` (default: infer from header)")
	flags.StringVar(&cmd.refAlleleCol, "ref-col", "", "reference allele `column` (default: infer from header)")
	flags.StringVar(&cmd.effectAlleleCol, "effect-col", "", "effect allele `column` (default: infer from header)")
}

func (cmd *mungeGWAS) columns() sumstatsColumns {
	cols := defaultSumstatsColumns()
	for _, ov := range []struct {
		name string
		dst  *columnSpec
	}{
		{cmd.variantIDCol, &cols.VariantID},
		{cmd.pvalueCol, &cols.PValue},
		{cmd.sampleSizeCol, &cols.SampleSize},
		{cmd.chromosomeCol, &cols.Chromosome},
		{cmd.positionCol, &cols.Position},
		{cmd.refAlleleCol, &cols.RefAllele},
		{cmd.effectAlleleCol, &cols.EffectAllele},
	} {
		if ov.name != "" {
			*ov.dst = explicitColumn(ov.name)
		}
	}
	return cols
}

func (cmd *mungeGWAS) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file` (.gz accepted)")
	outputFilename := flags.String("o", "-", "output `file`")
	delimiter := flags.String("delimiter", "", "field `delimiter` (default: detect from header)")
	cmd.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	var delim rune
	if *delimiter != "" {
		delim = []rune(*delimiter)[0]
	}

	var input io.ReadCloser
	if *inputFilename == "-" {
		input = ioutil.NopCloser(stdin)
	} else {
		input, err = zopen(*inputFilename)
		if err != nil {
			return 1
		}
		defer input.Close()
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}

	stats, err := mungeSumstats(input, delim, cmd.columns(), output)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Infof("munged %d variants (%d dropped for missing effect allele, %d IDs backfilled, %d p-values clamped)", stats.rows, stats.dropped, stats.backfilled, stats.clamped)
	log.Infof("genomic inflation factor (lambda GC) %.4f", stats.lambdaGC)
	return 0
}
