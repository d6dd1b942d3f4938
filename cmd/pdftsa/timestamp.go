package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mingulov/pdftsa/tsaclient"
	"github.com/mingulov/pdftsa/tspdf"
)

func timestampCommand() {
	fs := flag.NewFlagSet("timestamp", flag.ExitOnError)
	common := registerCommonFlags(fs)

	fs.Usage = func() {
		fmt.Printf("Usage: %s timestamp [options] <input.pdf>\n\n", os.Args[0])
		fmt.Println("Apply an RFC 3161 document timestamp to a PDF.")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse timestamp flags: %v", err)
	}
	if fs.NArg() < 1 {
		fs.Usage()
		osExit(exitValidation)
	}
	if common.tsa == "" {
		fmt.Fprintln(os.Stderr, "timestamp: --tsa is required")
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
	opts := tspdf.Options{Alg: alg, EnableLTV: common.enableLTV}

	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()

	result, err := tspdf.TimestampPdf(ctx, pdfBytes, client, opts)
	if err != nil {
		log.Print(err)
		osExit(classifyError(err))
	}

	output := common.outputPath(input)
	if err := os.WriteFile(output, result.PDF, 0o644); err != nil {
		log.Print(err)
		osExit(exitIO)
	}

	log.Printf("timestamped PDF written to %s (genTime %s, serial %s)",
		output, result.Timestamp.GenTime.Format("2006-01-02T15:04:05Z07:00"), result.Timestamp.SerialNumber)
	osExit(exitOK)
}
