// Copyright (C) The Genescore Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package genescore

import (
	"bytes"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"gopkg.in/check.v1"
)

type sumstatsSuite struct{}

var _ = check.Suite(&sumstatsSuite{})

func (s *sumstatsSuite) TestResolveColumns(c *check.C) {
	header := strings.Split("SNP CHR BP REF EFFECT P N", " ")
	rc, err := defaultSumstatsColumns().resolve(header)
	c.Assert(err, check.IsNil)
	c.Check(rc.variantID, check.Equals, 0)
	c.Check(rc.chromosome, check.Equals, 1)
	c.Check(rc.position, check.Equals, 2)
	c.Check(rc.refAllele, check.Equals, 3)
	c.Check(rc.effectAllele, check.Equals, 4)
	c.Check(rc.pvalue, check.Equals, 5)
	c.Check(rc.sampleSize, check.Equals, 6)
}

func (s *sumstatsSuite) TestResolveColumnsAlternatives(c *check.C) {
	header := strings.Split("variant_id chromosome base_pair other_allele minor_allele pvalue", " ")
	rc, err := defaultSumstatsColumns().resolve(header)
	c.Assert(err, check.IsNil)
	c.Check(rc.variantID, check.Equals, 0)
	c.Check(rc.chromosome, check.Equals, 1)
	c.Check(rc.position, check.Equals, 2)
	c.Check(rc.refAllele, check.Equals, 3)
	c.Check(rc.effectAllele, check.Equals, 4)
	c.Check(rc.pvalue, check.Equals, 5)
	c.Check(rc.sampleSize, check.Equals, -1)
}

func (s *sumstatsSuite) TestResolveColumnsMissingMandatory(c *check.C) {
	_, err := defaultSumstatsColumns().resolve([]string{"CHR", "BP", "REF"})
	c.Check(err, check.ErrorMatches, `cannot resolve required column\(s\) p-value, variant ID, effect allele in header.*`)
}

func (s *sumstatsSuite) TestResolveColumnsExplicitOverride(c *check.C) {
	cols := defaultSumstatsColumns()
	cols.PValue = explicitColumn("score")
	rc, err := cols.resolve([]string{"SNP", "EFFECT", "score"})
	c.Assert(err, check.IsNil)
	c.Check(rc.pvalue, check.Equals, 2)

	cols.PValue = explicitColumn("nonexistent")
	_, err = cols.resolve([]string{"SNP", "EFFECT", "score"})
	c.Check(err, check.ErrorMatches, `cannot resolve required column\(s\) p-value in header.*`)
}

const testSumstats = `SNP	CHR	BP	REF	EFFECT	P
rs10	1	123	A	G	0.5
	1	124	C	T	1e-310
rs12	1	125	G		0.9
rs13	1	126	T	C	0.01
`

func (s *sumstatsSuite) TestMungeSumstats(c *check.C) {
	var out bytes.Buffer
	stats, err := mungeSumstats(strings.NewReader(testSumstats), 0, defaultSumstatsColumns(), &out)
	c.Assert(err, check.IsNil)
	c.Check(out.String(), check.Equals, `SNP	CHR	BP	P
rs10	1	123	0.5
1_124_C_T	1	124	1e-307
rs13	1	126	0.01
`)
	c.Check(stats.rows, check.Equals, 3)
	c.Check(stats.dropped, check.Equals, 1)
	c.Check(stats.backfilled, check.Equals, 1)
	c.Check(stats.clamped, check.Equals, 1)
}

func (s *sumstatsSuite) TestMungeSumstatsCommaDelimited(c *check.C) {
	in := "snp,chr,bp,ref,effect,pval\nrs1,2,200,A,C,0.25\n"
	var out bytes.Buffer
	stats, err := mungeSumstats(strings.NewReader(in), 0, defaultSumstatsColumns(), &out)
	c.Assert(err, check.IsNil)
	c.Check(stats.rows, check.Equals, 1)
	c.Check(out.String(), check.Equals, "SNP\tCHR\tBP\tP\nrs1\t2\t200\t0.25\n")
}

func (s *sumstatsSuite) TestMungeSumstatsBackfillNeedsColumns(c *check.C) {
	in := "SNP\tEFFECT\tP\n\tG\t0.5\n"
	var out bytes.Buffer
	_, err := mungeSumstats(strings.NewReader(in), 0, defaultSumstatsColumns(), &out)
	c.Check(err, check.ErrorMatches, `input has variants without IDs, and the chromosome, position, reference allele column\(s\) needed to synthesize filler IDs cannot be resolved`)
}

func (s *sumstatsSuite) TestMungeSumstatsBadPValue(c *check.C) {
	in := "SNP\tEFFECT\tP\nrs1\tG\tnot-a-number\n"
	var out bytes.Buffer
	_, err := mungeSumstats(strings.NewReader(in), 0, defaultSumstatsColumns(), &out)
	c.Check(err, check.ErrorMatches, `line 2: bad p-value "not-a-number".*`)
}

func (s *sumstatsSuite) TestMungeSumstatsEmptyInput(c *check.C) {
	var out bytes.Buffer
	_, err := mungeSumstats(strings.NewReader(""), 0, defaultSumstatsColumns(), &out)
	c.Check(err, check.ErrorMatches, `summary-statistics file is empty`)
}

func (s *sumstatsSuite) TestClampIdempotent(c *check.C) {
	c.Check(clampPValue(1e-320), check.Equals, minPValue)
	c.Check(clampPValue(clampPValue(1e-320)), check.Equals, minPValue)
	c.Check(clampPValue(minPValue), check.Equals, minPValue)
	c.Check(clampPValue(0.3), check.Equals, 0.3)
	c.Check(clampPValue(1.0), check.Equals, 1.0)
}

func (s *sumstatsSuite) TestLambdaGC(c *check.C) {
	c.Check(lambdaGC(nil), check.Equals, 0.0)
	// A flat p-value distribution has no inflation.
	got := lambdaGC([]float64{0.5, 0.5, 0.5})
	c.Check(math.Abs(got-1.0) < 1e-9, check.Equals, true)
	// Uniformly tiny p-values inflate lambda well above 1.
	c.Check(lambdaGC([]float64{1e-10, 1e-10, 1e-10}) > 1, check.Equals, true)
}

func (s *sumstatsSuite) TestMungeGWASCommandGzipInput(c *check.C) {
	tmpdir := c.MkDir()
	inPath := filepath.Join(tmpdir, "sumstats.tsv.gz")
	f, err := os.OpenFile(inPath, os.O_CREATE|os.O_WRONLY, 0666)
	c.Assert(err, check.IsNil)
	gzw := pgzip.NewWriter(f)
	_, err = gzw.Write([]byte(testSumstats))
	c.Assert(err, check.IsNil)
	c.Assert(gzw.Close(), check.IsNil)
	c.Assert(f.Close(), check.IsNil)

	outPath := filepath.Join(tmpdir, "munged.tsv")
	var stdout, stderr bytes.Buffer
	exited := (&mungeGWAS{}).RunCommand("munge-gwas", []string{"-i", inPath, "-o", outPath}, &bytes.Buffer{}, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("stderr: %s", stderr.String()))
	buf, err := ioutil.ReadFile(outPath)
	c.Assert(err, check.IsNil)
	c.Check(strings.Count(string(buf), "\n"), check.Equals, 4)
	c.Check(strings.Contains(string(buf), "1_124_C_T"), check.Equals, true)
}

func (s *sumstatsSuite) TestMungeGWASCommandColumnOverride(c *check.C) {
	in := "rsid\tA1\tsig\nrs9\tG\t0.75\n"
	tmpdir := c.MkDir()
	inPath := filepath.Join(tmpdir, "sumstats.tsv")
	c.Assert(ioutil.WriteFile(inPath, []byte(in), 0666), check.IsNil)

	var stdout, stderr bytes.Buffer
	exited := (&mungeGWAS{}).RunCommand("munge-gwas", []string{
		"-i", inPath,
		"-snp-col", "rsid",
		"-effect-col", "A1",
		"-pval-col", "sig",
	}, &bytes.Buffer{}, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("stderr: %s", stderr.String()))
	c.Check(stdout.String(), check.Equals, "SNP\tCHR\tBP\tP\nrs9\t\t\t0.75\n")
}
