package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/planscape/planmap/internal/geo"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input  string `short:"i" long:"in"     description:"Input GeoJSON file path. Reads from stdin if empty"`
	Output string `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	Format string `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Strict bool   `short:"s" long:"strict" description:"Exit with an error if any feature has invalid geometry"`
}

type featureAcres struct {
	Index     int     `json:"index" yaml:"index"`
	ID        any     `json:"id,omitempty" yaml:"id,omitempty"`
	Acres     float64 `json:"acres" yaml:"acres"`
	FullAcres float64 `json:"full_acres" yaml:"full_acres"`
	Error     string  `json:"error,omitempty" yaml:"error,omitempty"`
}

type report struct {
	Features   []featureAcres `json:"features" yaml:"features"`
	TotalAcres float64        `json:"total_acres" yaml:"total_acres"`
	Invalid    int            `json:"invalid" yaml:"invalid"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	var inputData []byte
	var err error

	if opts.Input != "" {
		inputData, err = os.ReadFile(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
	} else {
		inputData, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			os.Exit(1)
		}
	}

	features, err := geo.DecodeFeatures(inputData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding GeoJSON: %v\n", err)
		os.Exit(1)
	}

	rep := measure(features)

	var outputData []byte
	if opts.Format == "yaml" {
		outputData, err = yaml.Marshal(rep)
	} else {
		outputData, err = json.MarshalIndent(rep, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, outputData, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Measured %d features, %.2f acres total, written to %s (format: %s)\n",
			len(rep.Features), rep.TotalAcres, opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}

	if opts.Strict && rep.Invalid > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d features have invalid geometry\n", rep.Invalid)
		os.Exit(2)
	}
}
