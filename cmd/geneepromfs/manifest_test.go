package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	. "github.com/jacobsa/ogletest"

	"github.com/nasa/eefs/eefsfmt"
)

func TestGeneepromfs(t *testing.T) { RunTests(t) }

type ManifestTest struct {
}

func init() { RegisterTestSuite(&ManifestTest{}) }

func (t *ManifestTest) writeManifest(contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.txt")
	AssertEq(nil, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func (t *ManifestTest) TempDir() string {
	dir, err := os.MkdirTemp("", "geneepromfs")
	AssertEq(nil, err)
	return dir
}

func (t *ManifestTest) ParsesRecordsSeparatedBySemicolon() {
	path := t.writeManifest("a.bin, a, 0, None; b.bin, b, 4, ReadOnly;")

	entries, err := parseManifest(path)
	AssertEq(nil, err)
	AssertEq(2, len(entries))

	ExpectEq("a.bin", entries[0].InputPath)
	ExpectEq("a", entries[0].StoredName)
	ExpectEq(uint32(0), entries[0].SpareBytes)
	ExpectEq(uint32(eefsfmt.AttributeNone), entries[0].Attributes)

	ExpectEq("b.bin", entries[1].InputPath)
	ExpectEq("b", entries[1].StoredName)
	ExpectEq(uint32(4), entries[1].SpareBytes)
	ExpectEq(uint32(eefsfmt.AttributeReadOnly), entries[1].Attributes)
}

func (t *ManifestTest) SkipsCommentsToEndOfLine() {
	path := t.writeManifest("! this whole line is a comment\na.bin, a, 0, None; ! trailing comment\n")

	entries, err := parseManifest(path)
	AssertEq(nil, err)
	AssertEq(1, len(entries))
	ExpectEq("a.bin", entries[0].InputPath)
}

func (t *ManifestTest) RejectsWrongFieldCount() {
	path := t.writeManifest("a.bin, a, 0;")

	_, err := parseManifest(path)
	ExpectNe(nil, err)
}

func (t *ManifestTest) RejectsUnknownAttribute() {
	path := t.writeManifest("a.bin, a, 0, Bogus;")

	_, err := parseManifest(path)
	ExpectNe(nil, err)
}

func (t *ManifestTest) RejectsMalformedSpareByteCount() {
	path := t.writeManifest("a.bin, a, notanumber, None;")

	_, err := parseManifest(path)
	ExpectNe(nil, err)
}

type BuildImageTest struct {
	dir string
}

func init() { RegisterTestSuite(&BuildImageTest{}) }

func (t *BuildImageTest) SetUp(ti *TestInfo) {
	dir, err := os.MkdirTemp("", "geneepromfs")
	AssertEq(nil, err)
	t.dir = dir
}

func (t *BuildImageTest) writeInput(name, contents string) string {
	path := filepath.Join(t.dir, name)
	AssertEq(nil, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func (t *BuildImageTest) BuildsValidFATAndFileHeaders() {
	inputPath := t.writeInput("hello.bin", "hello")

	entries := []Entry{
		{InputPath: inputPath, StoredName: "hello", SpareBytes: 3, Attributes: eefsfmt.AttributeNone},
	}

	result, err := buildImage(entries, binary.BigEndian, 4096, 1700000000, false)
	AssertEq(nil, err)
	ExpectEq(uint32(1), result.numberOfFiles)

	fatHeader := eefsfmt.DecodeFATHeader(binary.BigEndian, result.image[:eefsfmt.FATHeaderSize])
	ExpectEq(uint32(eefsfmt.Magic), fatHeader.Magic)
	ExpectEq(uint32(1), fatHeader.NumberOfFiles)

	fatEntry := eefsfmt.DecodeFATEntry(binary.BigEndian,
		result.image[eefsfmt.FATHeaderSize:eefsfmt.FATHeaderSize+eefsfmt.FATEntrySize])

	header := eefsfmt.DecodeFileHeader(binary.BigEndian,
		result.image[fatEntry.FileHeaderOffset:fatEntry.FileHeaderOffset+uint32(eefsfmt.FileHeaderSize)])
	ExpectEq(uint32(5), header.FileSize)
	ExpectEq(uint32(8), fatEntry.MaxFileSize) // 5 bytes + 3 spare, rounded to 4

	dataOffset := fatEntry.FileHeaderOffset + uint32(eefsfmt.FileHeaderSize)
	ExpectEq("hello", string(result.image[dataOffset:dataOffset+header.FileSize]))
}

func (t *BuildImageTest) RejectsDuplicateStoredNames() {
	inputPath := t.writeInput("a.bin", "a")

	entries := []Entry{
		{InputPath: inputPath, StoredName: "same", SpareBytes: 0, Attributes: eefsfmt.AttributeNone},
		{InputPath: inputPath, StoredName: "same", SpareBytes: 0, Attributes: eefsfmt.AttributeNone},
	}

	_, err := buildImage(entries, binary.BigEndian, 4096, 0, false)
	ExpectNe(nil, err)
}

func (t *BuildImageTest) RejectsImageTooSmallForManifest() {
	inputPath := t.writeInput("big.bin", "0123456789")

	entries := []Entry{
		{InputPath: inputPath, StoredName: "big", SpareBytes: 0, Attributes: eefsfmt.AttributeNone},
	}

	_, err := buildImage(entries, binary.BigEndian, uint32(eefsfmt.FATHeaderSize)+4, 0, false)
	ExpectNe(nil, err)
}
