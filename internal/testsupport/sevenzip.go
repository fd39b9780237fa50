package testsupport

import (
	"fmt"
	"path/filepath"
	"strings"
)

const sevenZipBanner = "7-Zip [64] 16.02 : Copyright (c) 1999-2016 Igor Pavlov : 2016-05-21"

// SevenZipEntry names the i-th file in the transcripts below.
func SevenZipEntry(i int) string {
	return fmt.Sprintf("com.example.game/file%02d.obb", i)
}

func archiveHeader(archive string) []string {
	base := filepath.Base(archive)
	inner := strings.TrimSuffix(base, filepath.Ext(base))
	return []string{
		"--",
		"Path = " + base,
		"Type = Split",
		"Physical Size = 104857600",
		"Volumes = 2",
		"Total Physical Size = 209715200",
		"----",
		"Path = " + inner,
		"Size = 209715200",
		"--",
		"Path = " + inner,
		"Type = 7z",
		"Physical Size = 209715200",
		"Headers Size = 410",
		"Method = LZMA2:24 7zAES",
		"Solid = +",
		"Blocks = 1",
		"",
	}
}

// SevenZipListing returns `7z l -slt` output for an archive holding one
// folder and files regular files.
func SevenZipListing(archive string, files int) []string {
	lines := []string{
		sevenZipBanner,
		"",
		"Scanning the drive for archives:",
		"1 file, 104857600 bytes (100 MiB)",
		"",
		"Listing archive: " + filepath.Base(archive),
		"",
	}
	lines = append(lines, archiveHeader(archive)...)
	lines = append(lines, "----------",
		"Path = com.example.game",
		"Size = 0",
		"Folder = +",
		"Attributes = D",
		"")
	for i := range files {
		lines = append(lines,
			"Path = "+SevenZipEntry(i),
			"Size = 20971520",
			"Folder = -",
			"Attributes = A",
			"Encrypted = +",
			"Method = LZMA2:24 7zAES",
			"")
	}
	return lines
}

// SevenZipExtraction returns `7z x -bb1` output for the same archive, split
// into the lines before the first entry, one line per entry, and the
// closing summary.
func SevenZipExtraction(archive string, files int) (head, entries, tail []string) {
	head = []string{
		sevenZipBanner,
		"",
		"Scanning the drive for archives:",
		"1 file, 104857600 bytes (100 MiB)",
		"",
		"Extracting archive: " + filepath.Base(archive),
	}
	head = append(head, archiveHeader(archive)...)
	for i := range files {
		entries = append(entries, "- "+SevenZipEntry(i))
	}
	tail = []string{
		"",
		"Everything is Ok",
		"",
		"Folders: 1",
		fmt.Sprintf("Files: %d", files),
		"Size:       209715200",
		"Compressed: 209715200",
	}
	return head, entries, tail
}
