package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mingulov/pdftsa/lta"
	"github.com/mingulov/pdftsa/tsaclient"
	"github.com/mingulov/pdftsa/tspdf"
)

func ltaCommand() {
	fs := flag.NewFlagSet("ltv", flag.ExitOnError)
	common := registerCommonFlags(fs)

	fs.Usage = func() {
		fmt.Printf("Usage: %s ltv [options] <input.pdf>\n\n", os.Args[0])
		fmt.Println("Complete LTV validation material for a PDF's existing timestamp(s),")
		fmt.Println("append a DSS, and apply a covering archive timestamp (PAdES-LTA).")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse ltv flags: %v", err)
	}
	if fs.NArg() < 1 {
		fs.Usage()
		osExit(exitValidation)
	}
	if common.tsa == "" {
		fmt.Fprintln(os.Stderr, "ltv: --tsa is required")
		osExit(exitValidation)
	}

	input := fs.Arg(0)
	pdfBytes, err := os.ReadFile(input)
	if err != nil {
		log.Print(err)
		osExit(exitIO)
	}

	alg, err := common.parseAlgorithm()
	if err != nil {
		log.Print(err)
		osExit(exitValidation)
	}

	client := &tsaclient.Client{URL: common.tsa, CertReq: true, Retries: common.retry}
	opts := lta.Options{
		Timestamp: tspdf.Options{Alg: alg},
	}

	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()

	result, err := lta.TimestampPdfLTA(ctx, pdfBytes, client, opts)
	if err != nil {
		log.Print(err)
		osExit(classifyError(err))
	}
	for _, w := range result.Warnings {
		log.Printf("LTV warning: %v", w)
	}

	output := common.outputPath(input)
	if err := os.WriteFile(output, result.PDF, 0o644); err != nil {
		log.Print(err)
		osExit(exitIO)
	}

	log.Printf("archive-timestamped PDF written to %s (%d revocation warnings)", output, len(result.Warnings))
	osExit(exitOK)
}
