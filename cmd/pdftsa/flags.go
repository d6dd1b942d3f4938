package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/mingulov/pdftsa/hashalg"
)

// commonFlags is the --tsa/--algorithm/--timeout/--retry/--output/--enable-ltv
// set every sub-command shares, per spec §6.
type commonFlags struct {
	tsa       string
	algorithm string
	timeout   time.Duration
	retry     int
	output    string
	enableLTV bool
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.tsa, "tsa", "", "URL of the RFC 3161 Time-Stamp Authority")
	fs.StringVar(&c.algorithm, "algorithm", "SHA-256", "digest algorithm: SHA-256, SHA-384, or SHA-512")
	fs.DurationVar(&c.timeout, "timeout", 30*time.Second, "deadline for the whole command, covering every TSA attempt")
	fs.IntVar(&c.retry, "retry", 3, "additional attempts after a network-level TSA failure")
	fs.StringVar(&c.output, "output", "", "output PDF path (default <name>-timestamped<ext>)")
	fs.BoolVar(&c.enableLTV, "enable-ltv", false, "reserve a 16384-byte signature placeholder (timestamp command only); no OCSP/CRL material is fetched and no DSS is appended")
	return c
}

func (c *commonFlags) parseAlgorithm() (hashalg.Algorithm, error) {
	alg, err := hashalg.Parse(c.algorithm)
	if err != nil {
		return 0, fmt.Errorf("invalid --algorithm %q: %w", c.algorithm, err)
	}
	return alg, nil
}

func (c *commonFlags) outputPath(input string) string {
	if c.output != "" {
		return c.output
	}
	return generateOutputFilename(input)
}
