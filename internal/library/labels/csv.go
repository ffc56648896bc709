package labels

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// countPrintable 対象行数をカウント
func countPrintable(rows []Row) int {
	cnt := 0
	for _, r := range rows {
		if r.Checked && !r.empty() {
			cnt++
		}
	}
	return cnt
}

// writeCSV writes the checked rows to w in the requested encoding.
// Characters Shift_JIS cannot represent are replaced instead of failing the
// whole sheet.
func writeCSV(w io.Writer, rows []Row, enc Encoding, withHeader bool) error {
	var (
		out io.Writer
		tw  *transform.Writer
	)
	switch enc {
	case EncodingUTF8:
		out = w
	case EncodingShiftJIS:
		tw = transform.NewWriter(w, encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()))
		out = tw
	default:
		return fmt.Errorf("unsupported encoding %q", enc)
	}

	cw := csv.NewWriter(out)
	if withHeader {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if !r.Checked {
			continue
		}
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}
