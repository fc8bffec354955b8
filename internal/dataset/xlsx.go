package dataset

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads one worksheet; its first row is the header.
func LoadXLSX(path string, opt Options) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "open xlsx")
	}
	defer f.Close()

	sheet, err := pickSheet(f.GetSheetList(), opt)
	if err != nil {
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, eris.Wrapf(err, "read sheet %q", sheet)
	}
	name := filepath.Base(path) + "#" + sheet
	if len(rows) == 0 {
		return &Dataset{Name: name}, nil
	}
	b := newBuilder(name, rows[0], opt.MaxRows)
	for _, rec := range rows[1:] {
		b.add(rec)
	}
	return b.ds, nil
}

func pickSheet(sheets []string, opt Options) (string, error) {
	if len(sheets) == 0 {
		return "", eris.New("workbook has no sheets")
	}
	if opt.SheetName != "" {
		for _, s := range sheets {
			if s == opt.SheetName {
				return s, nil
			}
		}
		return "", eris.Errorf("sheet %q not found (have %v)", opt.SheetName, sheets)
	}
	if opt.SheetIndex > 0 {
		if opt.SheetIndex > len(sheets) {
			return "", eris.Errorf("sheet index %d out of range (1..%d)", opt.SheetIndex, len(sheets))
		}
		return sheets[opt.SheetIndex-1], nil
	}
	return sheets[0], nil
}
