package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func invoice(id, party int64, due time.Time, total, paid int64) Document {
	return Document{
		ID:               id,
		Side:             SideReceivable,
		CounterpartyID:   party,
		CounterpartyName: "client",
		IssueDate:        due.AddDate(0, 0, -30),
		DueDate:          due,
		Total:            total,
		Paid:             paid,
		Status:           DocumentOpen,
	}
}

func TestDaysOverdueAndBucket(t *testing.T) {
	asOf := day(2025, 3, 1)
	require.Equal(t, 50, DaysOverdue(day(2025, 1, 10), asOf))
	require.Equal(t, Bucket31To60, BucketFor(day(2025, 1, 10), asOf))

	cases := []struct {
		days int
		want Bucket
	}{
		{0, BucketCurrent},
		{1, Bucket1To30},
		{30, Bucket1To30},
		{31, Bucket31To60},
		{60, Bucket31To60},
		{61, Bucket61To90},
		{90, Bucket61To90},
		{91, BucketOver90},
		{400, BucketOver90},
	}
	for _, tc := range cases {
		due := asOf.AddDate(0, 0, -tc.days)
		require.Equal(t, tc.days, DaysOverdue(due, asOf))
		require.Equal(t, tc.want, BucketFor(due, asOf), "days=%d", tc.days)
	}
	require.Equal(t, 0, DaysOverdue(asOf.AddDate(0, 0, 5), asOf))
}

func TestComputeAgingEmpty(t *testing.T) {
	report := ComputeAging(day(2025, 3, 1), SideReceivable, nil, AgingOptions{})
	require.Len(t, report.Buckets, len(Buckets))
	for i, b := range report.Buckets {
		require.Equal(t, Buckets[i], b.Bucket)
		require.Zero(t, b.Amount)
		require.Zero(t, b.Count)
	}
	require.Zero(t, report.Total)
	require.Empty(t, report.Counterparties)
}

func TestComputeAgingBucketsOutstanding(t *testing.T) {
	asOf := day(2025, 3, 1)
	docs := []Document{
		invoice(1, 10, day(2025, 1, 10), 1000, 200),
		invoice(2, 10, day(2025, 3, 1), 500, 0),
		invoice(3, 20, day(2024, 11, 1), 300, 0),
		invoice(4, 20, day(2025, 2, 20), 700, 700),
		invoice(5, 30, day(2025, 4, 1), 900, 0),
	}
	payable := invoice(6, 40, day(2025, 1, 1), 5000, 0)
	payable.Side = SidePayable
	docs = append(docs, payable)
	future := invoice(7, 50, day(2025, 3, 20), 100, 0)
	future.IssueDate = day(2025, 3, 5)
	docs = append(docs, future)

	report := ComputeAging(asOf, SideReceivable, docs, AgingOptions{})

	amounts := map[Bucket]int64{}
	for _, b := range report.Buckets {
		amounts[b.Bucket] = b.Amount
	}
	require.Equal(t, int64(500), amounts[BucketCurrent])
	require.Equal(t, int64(800), amounts[Bucket31To60])
	require.Equal(t, int64(300), amounts[BucketOver90])
	require.Zero(t, amounts[Bucket1To30])
	require.Equal(t, int64(1600), report.Total)
	require.Equal(t, 3, report.Count)
	require.Equal(t, int64(900), report.NotYetDue.Amount)
	require.Equal(t, 1, report.NotYetDue.Count)
	require.Equal(t, int64(2500), report.Outstanding)
	require.Equal(t, int64(1100), report.AmountFrom(Bucket31To60))
	require.Equal(t, int64(1600), report.AmountFrom(BucketCurrent))

	require.Len(t, report.Counterparties, 2)
	require.Equal(t, int64(10), report.Counterparties[0].CounterpartyID)
	require.Equal(t, int64(1300), report.Counterparties[0].Total)
	require.Equal(t, int64(20), report.Counterparties[1].CounterpartyID)
}

func TestComputeAgingIncludeNotYetDue(t *testing.T) {
	asOf := day(2025, 3, 1)
	docs := []Document{
		invoice(1, 10, day(2025, 4, 1), 900, 0),
		invoice(2, 10, day(2025, 2, 1), 100, 0),
	}
	report := ComputeAging(asOf, SideReceivable, docs, AgingOptions{IncludeNotYetDue: true})
	require.Equal(t, int64(900), report.Buckets[0].Amount)
	require.Equal(t, int64(100), report.Buckets[1].Amount)
	require.Zero(t, report.NotYetDue.Amount)
	require.Equal(t, report.Outstanding, report.Total)
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("")
	require.NoError(t, err)
	require.Equal(t, SideReceivable, side)
	side, err = ParseSide(" payable ")
	require.NoError(t, err)
	require.Equal(t, SidePayable, side)
	_, err = ParseSide("both")
	require.Error(t, err)
}
