// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// MAGMA rejects p-values below this floor.
const minPValue = 1e-307

// columnSpec selects a column in a summary-statistics header, either
// by an explicit name supplied by the caller or by matching a pattern
// against the header fields. Specs are resolved to concrete column
// indexes once, before any row is read.
type columnSpec struct {
	name    string
	pattern *regexp.Regexp
}

func explicitColumn(name string) columnSpec {
	return columnSpec{name: name}
}

// resolve returns the index of the first header field selected by the
// spec, or -1 if no field matches.
func (cs columnSpec) resolve(header []string) int {
	for i, h := range header {
		if cs.name != "" {
			if h == cs.name {
				return i
			}
		} else if cs.pattern.MatchString(h) {
			return i
		}
	}
	return -1
}

// sumstatsColumns names the columns of a GWAS summary-statistics file
// that are used downstream. P-value, variant ID, and effect allele are
// mandatory; the rest are optional unless ID backfilling is needed.
type sumstatsColumns struct {
	PValue       columnSpec
	VariantID    columnSpec
	SampleSize   columnSpec
	Chromosome   columnSpec
	Position     columnSpec
	RefAllele    columnSpec
	EffectAllele columnSpec
}

func defaultSumstatsColumns() sumstatsColumns {
	return sumstatsColumns{
		PValue:       columnSpec{pattern: regexp.MustCompile(`(?i)^p.?(val)?`)},
		VariantID:    columnSpec{pattern: regexp.MustCompile(`(?i)^(snp)|(variant)`)},
		SampleSize:   columnSpec{pattern: regexp.MustCompile(`(?i)^n$`)},
		Chromosome:   columnSpec{pattern: regexp.MustCompile(`(?i)^chr`)},
		Position:     columnSpec{pattern: regexp.MustCompile(`(?i)^(bp)|(base.?pair)`)},
		RefAllele:    columnSpec{pattern: regexp.MustCompile(`(?i)^(ref(erence)?)|(other)|(major)`)},
		EffectAllele: columnSpec{pattern: regexp.MustCompile(`(?i)^(effect)|(minor)`)},
	}
}

// resolvedColumns holds the concrete column indexes for one file.
// Optional columns that did not resolve are -1.
type resolvedColumns struct {
	pvalue       int
	variantID    int
	sampleSize   int
	chromosome   int
	position     int
	refAllele    int
	effectAllele int
}

func (sc sumstatsColumns) resolve(header []string) (resolvedColumns, error) {
	rc := resolvedColumns{
		pvalue:       sc.PValue.resolve(header),
		variantID:    sc.VariantID.resolve(header),
		sampleSize:   sc.SampleSize.resolve(header),
		chromosome:   sc.Chromosome.resolve(header),
		position:     sc.Position.resolve(header),
		refAllele:    sc.RefAllele.resolve(header),
		effectAllele: sc.EffectAllele.resolve(header),
	}
	var missing []string
	if rc.pvalue < 0 {
		missing = append(missing, "p-value")
	}
	if rc.variantID < 0 {
		missing = append(missing, "variant ID")
	}
	if rc.effectAllele < 0 {
		missing = append(missing, "effect allele")
	}
	if len(missing) > 0 {
		return rc, fmt.Errorf("cannot resolve required column(s) %s in header %q", strings.Join(missing, ", "), strings.Join(header, " "))
	}
	return rc, nil
}

// clampPValue floors p at the minimum value MAGMA accepts. Clamping an
// already-clamped value is a no-op.
func clampPValue(p float64) float64 {
	if p < minPValue {
		return minPValue
	}
	return p
}

type sumstatsRow struct {
	id     string
	chrom  string
	pos    string
	ref    string
	effect string
	pvalue float64
}

type mungeStats struct {
	rows       int
	dropped    int
	backfilled int
	clamped    int
	lambdaGC   float64
}

// mungeSumstats reads a GWAS summary-statistics table and writes the
// reduced four-column table [SNP, CHR, BP, P] that MAGMA consumes as
// both SNP location file and p-value file. Rows with no effect allele
// are dropped; rows with no variant ID get a synthesized
// chr_pos_ref_effect identifier (hg19 convention); p-values below
// 1e-307 are clamped to 1e-307.
//
// delim 0 means detect the delimiter from the header line.
func mungeSumstats(in io.Reader, delim rune, cols sumstatsColumns, out io.Writer) (mungeStats, error) {
	var stats mungeStats
	br := bufio.NewReader(in)
	headerLine, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return stats, err
	}
	if strings.TrimSpace(headerLine) == "" {
		return stats, fmt.Errorf("summary-statistics file is empty")
	}
	if delim == 0 {
		if delim, err = sniffDelimiter(headerLine); err != nil {
			return stats, err
		}
	}

	rdr := csv.NewReader(io.MultiReader(strings.NewReader(headerLine), br))
	rdr.Comma = delim
	rdr.LazyQuotes = true
	header, err := rdr.Read()
	if err != nil {
		return stats, fmt.Errorf("reading header: %w", err)
	}
	rc, err := cols.resolve(header)
	if err != nil {
		return stats, err
	}

	field := func(rec []string, idx int) string {
		if idx < 0 {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	var rows []sumstatsRow
	anyMissingID := false
	for line := 2; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		row := sumstatsRow{
			id:     field(rec, rc.variantID),
			chrom:  field(rec, rc.chromosome),
			pos:    field(rec, rc.position),
			ref:    field(rec, rc.refAllele),
			effect: field(rec, rc.effectAllele),
		}
		if row.effect == "" {
			stats.dropped++
			continue
		}
		p, err := strconv.ParseFloat(field(rec, rc.pvalue), 64)
		if err != nil {
			return stats, fmt.Errorf("line %d: bad p-value %q: %w", line, field(rec, rc.pvalue), err)
		}
		if p < minPValue {
			stats.clamped++
		}
		row.pvalue = clampPValue(p)
		if row.id == "" {
			anyMissingID = true
		}
		rows = append(rows, row)
	}

	if anyMissingID {
		var missing []string
		if rc.chromosome < 0 {
			missing = append(missing, "chromosome")
		}
		if rc.position < 0 {
			missing = append(missing, "position")
		}
		if rc.refAllele < 0 {
			missing = append(missing, "reference allele")
		}
		if len(missing) > 0 {
			return stats, fmt.Errorf("input has variants without IDs, and the %s column(s) needed to synthesize filler IDs cannot be resolved", strings.Join(missing, ", "))
		}
		for i := range rows {
			if rows[i].id == "" {
				rows[i].id = strings.Join([]string{rows[i].chrom, rows[i].pos, rows[i].ref, rows[i].effect}, "_")
				stats.backfilled++
			}
		}
	}

	w := bufio.NewWriter(out)
	fmt.Fprintln(w, "SNP\tCHR\tBP\tP")
	pvals := make([]float64, 0, len(rows))
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.id, row.chrom, row.pos, strconv.FormatFloat(row.pvalue, 'g', -1, 64))
		pvals = append(pvals, row.pvalue)
	}
	if err := w.Flush(); err != nil {
		return stats, err
	}
	stats.rows = len(rows)
	stats.lambdaGC = lambdaGC(pvals)
	return stats, nil
}

// lambdaGC estimates the genomic inflation factor: the median observed
// chi-squared statistic implied by the p-values, over the median of
// the 1-df null distribution. Values much greater than 1 suggest
// uncorrected population stratification in the source study.
func lambdaGC(pvals []float64) float64 {
	if len(pvals) == 0 {
		return 0
	}
	chisq := distuv.ChiSquared{K: 1}
	obs := make([]float64, len(pvals))
	for i, p := range pvals {
		obs[i] = chisq.Quantile(1 - p)
	}
	sort.Float64s(obs)
	var median float64
	if n := len(obs); n%2 == 1 {
		median = obs[n/2]
	} else {
		median = (obs[n/2-1] + obs[n/2]) / 2
	}
	return median / chisq.Quantile(0.5)
}
