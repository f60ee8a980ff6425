// Command geneepromfs builds an EEPROM file system image from a manifest
// of host files, the offline counterpart to the runtime engine in
// github.com/nasa/eefs: everything it produces is laid out exactly as
// eefs.Engine.InitFS expects to find it.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"time"
)

const versionNumber = "1.0"

const defaultEEPromSize = 0x200000 // 2 megabytes, matching DEFAULT_EEPROM_SIZE

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("geneepromfs", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	endian := fs.String("endian", "big", "output byte order: big or little")
	eepromSize := fs.Uint64("eeprom_size", defaultEEPromSize, "size of the target eeprom in bytes")
	timeFlag := fs.Int64("time", time.Now().Unix(), "override file timestamps for reproducible builds")
	fillEEPROM := fs.Bool("fill_eeprom", false, "pad the output to the full eeprom size")
	mapPath := fs.String("map", "", "emit a tab-separated memory map to this path")
	verbose := fs.Bool("verbose", false, "print the name of each file added to the file system")
	version := fs.Bool("version", false, "output version information and exit")
	help := fs.Bool("help", false, "output usage information and exit")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help {
		fs.Usage()
		return 0
	}

	if *version {
		fmt.Printf("geneepromfs     %s\n\n", versionNumber)
		return 0
	}

	positional := fs.Args()
	if len(positional) != 2 {
		fs.Usage()
		return 1
	}
	inputManifest, outputImage := positional[0], positional[1]

	var order binary.ByteOrder
	switch *endian {
	case "big", "BIG":
		order = binary.BigEndian
	case "little", "LITTLE":
		order = binary.LittleEndian
	default:
		fmt.Fprintln(os.Stderr, "ERROR: Invalid Endian Parameter, Must Be big or little")
		return 1
	}

	entries, err := parseManifest(inputManifest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	result, err := buildImage(entries, order, uint32(*eepromSize), int32(*timeFlag), *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	if *mapPath != "" {
		if err := writeMemoryMap(*mapPath, result); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	if err := writeImage(outputImage, result, *fillEEPROM); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *verbose {
		printSummary(result, uint32(*eepromSize))
	}

	return 0
}

func printSummary(result buildResult, eepromSize uint32) {
	fmt.Printf("Number Of Files Added: %d\n", result.numberOfFiles)
	fmt.Printf("EEPROM Size: %d\n", eepromSize)
	fmt.Printf("Allocated EEPROM: %d\n", result.freeMemoryOffset)
	fmt.Printf("Unallocated EEPROM: %d\n", result.freeMemorySize)
	fmt.Printf("Utilization: %.0f%%\n", float64(result.freeMemoryOffset)/float64(eepromSize)*100.0)
	fmt.Printf("Image Checksum: 0x%04x\n", result.imageCrc)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: geneepromfs [OPTION]... INPUT_FILE OUTPUT_FILE")
	fmt.Fprintln(os.Stderr, "Build an EEPROM File System image.")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "  Options:")
	fs.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "  INPUT_FILE is a manifest of records separated by ';', each record four")
	fmt.Fprintln(os.Stderr, "  fields separated by ',': input path, stored name, spare bytes, attributes")
	fmt.Fprintln(os.Stderr, "  (None or ReadOnly). '!' begins a comment that runs to end of line.")
}
