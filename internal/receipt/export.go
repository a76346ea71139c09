package receipt

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

var csvHeaders = []string{"vendor", "date", "amount", "category"}

// WriteCSV writes records as vendor,date,amount,category rows with a header
func WriteCSV(w io.Writer, records []*Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("writing csv headers: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Vendor,
			r.Date.Format(dateLayout),
			decimal.NewFromFloat(r.Amount).StringFixed(2),
			r.Category,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %d: %w", r.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
