// Package bif builds thumbnail-index files for set-top scrub previews.
package bif

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// bifMagic identifies a BIF container.
var bifMagic = [8]byte{0x89, 0x42, 0x49, 0x46, 0x0d, 0x0a, 0x1a, 0x0a}

const (
	bifVersion    = 0
	bifHeaderSize = 64
)

// Encode writes a BIF container: 64-byte header, index table with a
// 0xFFFFFFFF sentinel, then the JPEG bodies in order. Timestamps start at 0
// and increment by one per image; offsets are absolute file positions.
func Encode(w io.Writer, images [][]byte, frameIntervalMS int) error {
	if _, err := w.Write(bifMagic[:]); err != nil {
		return err
	}

	header := make([]byte, bifHeaderSize-8)
	binary.LittleEndian.PutUint32(header[0:], bifVersion)
	binary.LittleEndian.PutUint32(header[4:], uint32(len(images)))
	binary.LittleEndian.PutUint32(header[8:], uint32(frameIntervalMS))
	// remaining 44 bytes stay zero
	if _, err := w.Write(header); err != nil {
		return err
	}

	offset := uint32(bifHeaderSize + 8*(len(images)+1))
	table := make([]byte, 8*(len(images)+1))
	for i, img := range images {
		binary.LittleEndian.PutUint32(table[8*i:], uint32(i))
		binary.LittleEndian.PutUint32(table[8*i+4:], offset)
		offset += uint32(len(img))
	}
	binary.LittleEndian.PutUint32(table[8*len(images):], 0xffffffff)
	binary.LittleEndian.PutUint32(table[8*len(images)+4:], offset)
	if _, err := w.Write(table); err != nil {
		return err
	}

	for _, img := range images {
		if _, err := w.Write(img); err != nil {
			return err
		}
	}
	return nil
}

// EncodeDir writes the BIF for every .jpg in imageDir, in name order, to
// filename.
func EncodeDir(filename, imageDir string, frameIntervalMS int) error {
	names, err := jpegFiles(imageDir)
	if err != nil {
		return err
	}

	images := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		images = append(images, data)
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := Encode(f, images, frameIntervalMS); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func jpegFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			names = append(names, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

// imageFile names the n-th frame in the working directory.
func imageFile(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("%08d.jpg", n))
}
