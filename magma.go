// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// annotationWindow is the optional window, in kilobases, placed
// upstream and downstream of each gene body when assigning SNPs to
// genes.
type annotationWindow struct {
	upstream, downstream int
}

func parseAnnotationWindow(s string) (*annotationWindow, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("annotation window must be two comma-separated integers, got %q", s)
	}
	up, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	down, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("annotation window must be two comma-separated integers, got %q", s)
	}
	return &annotationWindow{upstream: up, downstream: down}, nil
}

// annotateVariants runs the MAGMA annotation step, assigning SNPs to
// genes by genomic location. snpLoc must have SNP ID, chromosome, and
// base-pair position as its first three columns, which is exactly what
// mungeSumstats emits. Returns the annotation file and log paths.
func annotateVariants(geneLoc, snpLoc, outPrefix string, window *annotationWindow, stdout, stderr io.Writer) (string, string, error) {
	tc := new(toolCmd).Flag("--annotate")
	if window != nil {
		tc.Arg("window", fmt.Sprintf("%d,%d", window.upstream, window.downstream))
	}
	tc.Arg("--gene-loc", geneLoc).
		Arg("--snp-loc", snpLoc).
		Arg("--out", outPrefix)
	if err := runTool("magma", tc, stdout, stderr); err != nil {
		return "", "", err
	}
	annot := outPrefix + ".genes.annot"
	logPath := outPrefix + ".log"
	if err := requireFiles(annot, logPath); err != nil {
		return "", "", fmt.Errorf("annotation step reported success but: %w", err)
	}
	return annot, logPath, nil
}

// sampleSize is either a study-wide total sample count or the name of
// a per-variant sample-size column in the p-value file. Exactly one
// must be set.
type sampleSize struct {
	total  int
	column string
}

func (n sampleSize) validate() error {
	if n.total > 0 && n.column != "" {
		return fmt.Errorf("sample size: specify either a total count or a column name, not both")
	}
	if n.total <= 0 && n.column == "" {
		return fmt.Errorf("sample size: a total count or a column name is required")
	}
	return nil
}

// geneAnalysisOutputs are the files MAGMA produces from gene analysis.
type geneAnalysisOutputs struct {
	GenesOut        string
	GenesRaw        string
	Log             string
	SupplementalLog string
}

func (o geneAnalysisOutputs) paths() []string {
	return []string{o.GenesOut, o.GenesRaw, o.Log, o.SupplementalLog}
}

// geneAnalysis runs the MAGMA gene-analysis step on a munged p-value
// file, estimating LD from the given reference bfile set.
func geneAnalysis(bfile, geneAnnot, pvalFile, snpCol, pvalCol string, n sampleSize, outPrefix string, stdout, stderr io.Writer) (geneAnalysisOutputs, error) {
	if err := n.validate(); err != nil {
		return geneAnalysisOutputs{}, err
	}
	tc := new(toolCmd).
		Arg("--bfile", bfile).
		Arg("--gene-annot", geneAnnot).
		Arg("--pval", pvalFile).
		Arg("snp-id", snpCol).
		Arg("pval", pvalCol)
	if n.column != "" {
		tc.Arg("ncol", n.column)
	} else {
		tc.Arg("N", strconv.Itoa(n.total))
	}
	tc.Arg("--out", outPrefix)
	if err := runTool("magma", tc, stdout, stderr); err != nil {
		return geneAnalysisOutputs{}, err
	}
	outs := geneAnalysisOutputs{
		GenesOut:        outPrefix + ".genes.out",
		GenesRaw:        outPrefix + ".genes.raw",
		Log:             outPrefix + ".log",
		SupplementalLog: outPrefix + ".log.suppl",
	}
	if err := requireFiles(outs.paths()...); err != nil {
		return geneAnalysisOutputs{}, fmt.Errorf("gene analysis step reported success but: %w", err)
	}
	return outs, nil
}

// geneAnalysisCmd implements the gene-analysis subcommand: annotate
// the munged SNPs to genes, then compute gene-level association
// statistics, both via MAGMA.
type geneAnalysisCmd struct{}

func (cmd *geneAnalysisCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pvalFile := flags.String("pval-file", "", "munged summary-statistics `file` (used as both SNP location and p-value input)")
	geneLoc := flags.String("gene-loc", "", "gene location `file`")
	bfile := flags.String("bfile", "", "reference panel bfile `prefix` for LD estimation")
	window := flags.String("window", "", "annotation window in kb, `up,down` (default: gene body only)")
	nTotal := flags.Int("N", 0, "total GWAS sample `size`")
	nCol := flags.String("ncol", "", "per-variant sample size `column` in the p-value file")
	snpCol := flags.String("snp-col", "SNP", "variant ID `column` in the p-value file")
	pvalCol := flags.String("pval-col", "P", "p-value `column` in the p-value file")
	outputDir := flags.String("o", "magma", "output `directory`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	for _, req := range []struct{ name, value string }{
		{"-pval-file", *pvalFile},
		{"-gene-loc", *geneLoc},
		{"-bfile", *bfile},
	} {
		if req.value == "" {
			err = fmt.Errorf("%s not specified", req.name)
			return 2
		}
	}
	win, err := parseAnnotationWindow(*window)
	if err != nil {
		return 2
	}
	n := sampleSize{total: *nTotal, column: *nCol}
	if err = n.validate(); err != nil {
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

	annot, annotLog, err := annotateVariants(*geneLoc, *pvalFile, workDir+"/annot", win, stdout, stderr)
	if err != nil {
		return 1
	}
	log.Infof("annotated SNPs to genes: %s", annot)

	outs, err := geneAnalysis(*bfile, annot, *pvalFile, *snpCol, *pvalCol, n, workDir+"/genes", stdout, stderr)
	if err != nil {
		return 1
	}
	moved, err := moveOutputs(outDir, append([]string{annot, annotLog}, outs.paths()...)...)
	if err != nil {
		return 1
	}
	// Report the gene association table path for the next stage.
	for _, p := range moved {
		if strings.HasSuffix(p, ".genes.out") {
			fmt.Fprintln(stdout, p)
		}
	}
	return 0
}
