package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/odyssey-erp/odyssey-ledger/internal/analytics"
)

// WriteAgingCSV prints the bucket summary followed by the counterparty breakdown.
func WriteAgingCSV(w io.Writer, report analytics.AgingReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Side", string(report.Side), "As Of", report.AsOf.Format("2006-01-02")}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Bucket", "Count", "Amount"}); err != nil {
		return err
	}
	for _, bucket := range report.Buckets {
		if err := writer.Write([]string{string(bucket.Bucket), strconv.Itoa(bucket.Count), formatMinor(bucket.Amount)}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", strconv.Itoa(report.Count), formatMinor(report.Total)}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Not Yet Due", strconv.Itoa(report.NotYetDue.Count), formatMinor(report.NotYetDue.Amount)}); err != nil {
		return err
	}

	if len(report.Counterparties) > 0 {
		header := []string{"Counterparty ID", "Name"}
		for _, b := range analytics.Buckets {
			header = append(header, string(b))
		}
		header = append(header, "Total")
		if err := writer.Write([]string{}); err != nil {
			return err
		}
		if err := writer.Write(header); err != nil {
			return err
		}
		for _, party := range report.Counterparties {
			record := []string{strconv.FormatInt(party.CounterpartyID, 10), party.Name}
			for _, amount := range party.Amounts {
				record = append(record, formatMinor(amount))
			}
			record = append(record, formatMinor(party.Total))
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatMinor(v int64) string {
	return strconv.FormatInt(v, 10)
}
