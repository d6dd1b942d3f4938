package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/digitorus/pdf"

	"github.com/mingulov/pdftsa/hashalg"
	"github.com/mingulov/pdftsa/internal/der"
	"github.com/mingulov/pdftsa/sigiter"
	"github.com/mingulov/pdftsa/tspdf"
)

func verifyCommand() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Printf("Usage: %s verify <input.pdf>\n\n", os.Args[0])
		fmt.Println("Validate every RFC 3161 document timestamp already embedded in a PDF.")
	}
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse verify flags: %v", err)
	}
	if fs.NArg() < 1 {
		fs.Usage()
		osExit(exitValidation)
	}

	input := fs.Arg(0)
	pdfBytes, err := os.ReadFile(input)
	if err != nil {
		log.Print(err)
		osExit(exitIO)
	}

	src := bytes.NewReader(pdfBytes)
	r, err := pdf.NewReader(src, int64(len(pdfBytes)))
	if err != nil {
		log.Print(err)
		osExit(exitValidation)
	}

	count := 0
	failed := false
	for sig, iterErr := range sigiter.Iter(r, src) {
		if iterErr != nil {
			log.Print(iterErr)
			failed = true
			break
		}
		count++
		if err := verifyOne(sig); err != nil {
			fmt.Printf("timestamp %d: INVALID: %v\n", count, err)
			failed = true
			continue
		}
		fmt.Printf("timestamp %d: valid\n", count)
	}

	if count == 0 {
		fmt.Println("no RFC 3161 document timestamps found")
		osExit(exitValidation)
	}
	if failed {
		osExit(exitValidation)
	}
	osExit(exitOK)
}

func verifyOne(sig *sigiter.Signature) error {
	tokenDER := sig.Contents()
	ci, err := der.ParseContentInfo(tokenDER)
	if err != nil {
		return err
	}
	sd, err := ci.SignedData()
	if err != nil {
		return err
	}
	info, err := sd.TSTInfo()
	if err != nil {
		return err
	}
	alg, err := hashalg.FromOID(info.MessageImprint.HashAlgorithm.Algorithm)
	if err != nil {
		return err
	}

	signed, err := sig.SignedData()
	if err != nil {
		return err
	}
	coveredBytes, err := io.ReadAll(signed)
	if err != nil {
		return err
	}

	prepared := &tspdf.PreparedPdf{Alg: alg, DocumentHash: hashalg.Sum(alg, coveredBytes)}
	_, err = tspdf.Validate(tokenDER, prepared, nil)
	return err
}
