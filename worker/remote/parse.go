package remote

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func parseCount(out string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected count %q", out)
	}
	return n, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// maxRAM returns the peak of the memory column of an mprof data file. The
// first line names the command and is skipped.
func maxRAM(mprofPath string) (float64, error) {
	f, err := os.Open(mprofPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	peak := 0.0
	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			continue
		}
		mem, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return peak, errors.Wrapf(err, "bad memory sample %q", sc.Text())
		}
		if mem > peak {
			peak = mem
		}
	}
	return peak, sc.Err()
}

func ensureParent(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0777); err != nil {
		return errors.Wrapf(err, "couldn't create %s", filepath.Dir(p))
	}
	return nil
}
