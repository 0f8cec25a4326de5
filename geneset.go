// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// columnRef selects a column either by header name or by 0-based
// index. Headerless files require an index.
type columnRef struct {
	name  string
	index int
}

// parseColumnRef interprets s as an index if it parses as an integer,
// otherwise as a column name.
func parseColumnRef(s string) columnRef {
	if idx, err := strconv.Atoi(s); err == nil {
		return columnRef{index: idx}
	}
	return columnRef{name: s, index: -1}
}

func (cr columnRef) resolve(header []string, hasHeader bool) (int, error) {
	if cr.name == "" {
		if cr.index < 0 || (header != nil && cr.index >= len(header)) {
			return 0, fmt.Errorf("column index %d out of range", cr.index)
		}
		return cr.index, nil
	}
	if !hasHeader {
		return 0, fmt.Errorf("file has no header; column %q must be selected by index", cr.name)
	}
	for i, h := range header {
		if h == cr.name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found in header %q", cr.name, strings.Join(header, " "))
}

// readTable reads a delimited text file into rows of fields. delim 0
// means whitespace-delimited (runs of spaces or tabs), which is how
// MAGMA aligns its .genes.out output.
func readTable(in io.Reader, delim rune) ([][]string, error) {
	if delim != 0 {
		rdr := csv.NewReader(in)
		rdr.Comma = delim
		rdr.LazyQuotes = true
		return rdr.ReadAll()
	}
	var rows [][]string
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		if fields := strings.Fields(scanner.Text()); len(fields) > 0 {
			rows = append(rows, fields)
		}
	}
	return rows, scanner.Err()
}

// loadGeneNameMap reads a two-column delimited file mapping gene IDs
// to display names. On duplicate IDs the last occurrence wins.
func loadGeneNameMap(path string, hasHeader bool, delim rune, idCol, nameCol columnRef) (map[string]string, error) {
	f, err := zopen(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br := bufio.NewReader(f)
	if delim == 0 {
		headerLine, err := br.Peek(4096)
		if err != nil && err != io.EOF {
			return nil, err
		}
		line := string(headerLine)
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		if delim, err = sniffDelimiter(line); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	rows, err := readTable(br, delim)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("gene name map %s is empty", path)
	}
	var header []string
	if hasHeader {
		header, rows = rows[0], rows[1:]
	}
	idIdx, err := idCol.resolve(header, hasHeader)
	if err != nil {
		return nil, fmt.Errorf("gene name map %s: %w", path, err)
	}
	nameIdx, err := nameCol.resolve(header, hasHeader)
	if err != nil {
		return nil, fmt.Errorf("gene name map %s: %w", path, err)
	}
	m := make(map[string]string, len(rows))
	for _, row := range rows {
		if idIdx >= len(row) || nameIdx >= len(row) {
			continue
		}
		m[row[idIdx]] = row[nameIdx]
	}
	return m, nil
}

type geneAssociation struct {
	gene   string
	pvalue float64
}

// mungeGeneAssociations turns a gene-level association table (MAGMA
// .genes.out format by default) into a single trait gene set: remap
// gene IDs through nameMap if given, sort ascending by significance,
// keep the top n genes, and emit the two-line scDRS .gs format.
func mungeGeneAssociations(in io.Reader, delim rune, hasHeader bool, geneCol, pvalCol columnRef, nameMap map[string]string, trait string, n int, out io.Writer) error {
	rows, err := readTable(in, delim)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("gene association table is empty")
	}
	var header []string
	if hasHeader {
		header, rows = rows[0], rows[1:]
	}
	geneIdx, err := geneCol.resolve(header, hasHeader)
	if err != nil {
		return err
	}
	pvalIdx, err := pvalCol.resolve(header, hasHeader)
	if err != nil {
		return err
	}

	assocs := make([]geneAssociation, 0, len(rows))
	for i, row := range rows {
		if geneIdx >= len(row) || pvalIdx >= len(row) {
			return fmt.Errorf("row %d has %d fields, need at least %d", i+1, len(row), pvalIdx+1)
		}
		p, err := strconv.ParseFloat(row[pvalIdx], 64)
		if err != nil {
			return fmt.Errorf("row %d: bad significance value %q: %w", i+1, row[pvalIdx], err)
		}
		gene := row[geneIdx]
		if mapped, ok := nameMap[gene]; ok {
			gene = mapped
		}
		assocs = append(assocs, geneAssociation{gene: gene, pvalue: p})
	}
	sort.SliceStable(assocs, func(i, j int) bool { return assocs[i].pvalue < assocs[j].pvalue })
	if n > len(assocs) {
		n = len(assocs)
	}
	genes := make([]string, 0, n)
	for _, a := range assocs[:n] {
		genes = append(genes, a.gene)
	}

	w := bufio.NewWriter(out)
	fmt.Fprintln(w, "TRAIT\tGENESET")
	fmt.Fprintf(w, "%s\t%s\n", trait, strings.Join(genes, ","))
	return w.Flush()
}

// genesetStem strips one extension from the input's base name, so
// "height.genes.out" becomes "height.genes" and the output file
// "height.genes.gs".
func genesetStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// makeGeneset implements the make-geneset subcommand.
type makeGeneset struct{}

func (cmd *makeGeneset) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "gene association `file` (MAGMA .genes.out)")
	trait := flags.String("trait", "", "trait `label` for the gene set")
	topGenes := flags.Int("n", 1000, "number of top genes to keep")
	outputDir := flags.String("o", ".", "output `directory`")
	delimiter := flags.String("delimiter", "", "field `delimiter` of the association file (default: whitespace)")
	noHeader := flags.Bool("no-header", false, "association file has no header row")
	geneCol := flags.String("gene-col", "GENE", "gene `column` (name, or 0-based index for headerless files)")
	pvalCol := flags.String("pval-col", "P", "significance `column` (name, or 0-based index for headerless files)")
	mapFilename := flags.String("gene-name-map", "", "optional two-column `file` mapping gene IDs to names (.gz accepted)")
	mapHeader := flags.Bool("map-header", false, "gene name map has a header row")
	mapIDCol := flags.String("map-id-col", "0", "ID `column` of the gene name map")
	mapNameCol := flags.String("map-name-col", "1", "name `column` of the gene name map")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *inputFilename == "" {
		err = fmt.Errorf("-i not specified")
		return 2
	}
	if *trait == "" {
		err = fmt.Errorf("-trait not specified")
		return 2
	}
	var delim rune
	if *delimiter != "" {
		delim = []rune(*delimiter)[0]
	}

	var nameMap map[string]string
	if *mapFilename != "" {
		nameMap, err = loadGeneNameMap(*mapFilename, *mapHeader, 0, parseColumnRef(*mapIDCol), parseColumnRef(*mapNameCol))
		if err != nil {
			return 1
		}
		log.Infof("loaded %d gene name mappings from %s", len(nameMap), *mapFilename)
	}

	input, err := zopen(*inputFilename)
	if err != nil {
		return 1
	}
	defer input.Close()

	if err = os.MkdirAll(*outputDir, 0777); err != nil {
		return 1
	}
	outPath := filepath.Join(*outputDir, genesetStem(*inputFilename)+".gs")
	output, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return 1
	}
	defer output.Close()

	err = mungeGeneAssociations(input, delim, !*noHeader, parseColumnRef(*geneCol), parseColumnRef(*pvalCol), nameMap, *trait, *topGenes, output)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, outPath)
	return 0
}
