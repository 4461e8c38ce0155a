package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/blake2b"

	"github.com/evanphx/userprog/fs/memfs"
)

var (
	fHead = pflag.IntP("head", "n", 0, "print the first N bytes of each file")
)

// digest is the URL-safe base64 blake2b-256 sum of r.
func digest(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

func dump(path string) error {
	img, err := memfs.LoadTar(path)
	if err != nil {
		return err
	}

	ctx := context.Background()

	var total uint64

	fmt.Printf("\n[files]\n")

	tr := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)

	for i, name := range img.Names() {
		h, err := img.Open(ctx, name)
		if err != nil {
			return err
		}

		sz := uint64(h.Length())
		total += sz

		key, err := digest(h)
		h.Close()

		if err != nil {
			return err
		}

		fmt.Fprintf(tr, "%d\t%s\t%d\t%s\t%s\n", i, name, sz, humanize.Bytes(sz), key)
	}

	tr.Flush()

	fmt.Printf("\n[total]\n%s\n", humanize.Bytes(total))

	if *fHead <= 0 {
		return nil
	}

	for _, name := range img.Names() {
		h, err := img.Open(ctx, name)
		if err != nil {
			return err
		}

		buf := make([]byte, *fHead)
		n, _ := h.Read(buf)
		h.Close()

		fmt.Printf("\n[%s]\n%q\n", name, buf[:n])
	}

	return nil
}

func main() {
	pflag.Parse()

	for _, path := range pflag.Args() {
		if err := dump(path); err != nil {
			log.Fatal(err)
		}
	}
}
