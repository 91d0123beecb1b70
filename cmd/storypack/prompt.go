package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"storypack/internal/device"
	"storypack/internal/faults"
)

// promptConfirm asks on out and reads the answer from in. Without a terminal
// on in there is nobody to ask, so removal requires --yes.
func promptConfirm(in io.Reader, out io.Writer) device.ConfirmFunc {
	return func(c device.Content) (bool, error) {
		if !isTerminal(in) {
			return false, faults.Wrap(faults.ErrCancelled, "cli", "confirm", "stdin is not a terminal; pass --yes to remove without confirmation", nil)
		}
		fmt.Fprintf(out, "Remove %s (%s)? [y/N] ", c.String(), c.Name)
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

func isTerminal(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
