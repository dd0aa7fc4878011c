package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock implementations ---

type memRepo struct {
	mu      sync.Mutex
	coupons map[string]decimal.Decimal
	failOn  string
}

func (m *memRepo) Upsert(_ context.Context, code string, discount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code == m.failOn {
		return errors.New("constraint violation")
	}
	m.coupons[code] = discount
	return nil
}

// --- Helpers ---

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

// --- Tests ---

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    couponRow
		wantOK  bool
		wantErr bool
	}{
		{line: "SAVE50,50", want: couponRow{code: "SAVE50", discount: decimal.NewFromInt(50)}, wantOK: true},
		{line: "  half , 12.5 ", want: couponRow{code: "half", discount: decimal.RequireFromString("12.5")}, wantOK: true},
		{line: "FREE,0", want: couponRow{code: "FREE", discount: decimal.Zero}, wantOK: true},
		{line: ""},
		{line: "# seasonal"},
		{line: "code,discount"},
		{line: "NOCOMMA", wantErr: true},
		{line: ",10", wantErr: true},
		{line: "BAD,ten", wantErr: true},
		{line: "NEG,-5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok, err := parseLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want.code, got.code)
				assert.True(t, tt.want.discount.Equal(got.discount), got.discount.String())
			}
		})
	}
}

func TestReadAll_MergesInFileOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.gz", "code,discount\nA,10\nB,20\nbroken\n")
	b := writeGz(t, dir, "b.gz", "B,25\nC,30\n")

	rows, err := readAll(context.Background(), zap.NewNop(), []string{a, b})
	require.NoError(t, err)

	got := make(map[string]string, len(rows))
	var order []string
	for _, r := range rows {
		got[r.code] = r.discount.String()
		order = append(order, r.code)
	}
	assert.Equal(t, []string{"A", "B", "C"}, order)
	assert.Equal(t, map[string]string{"A": "10", "B": "25", "C": "30"}, got)
}

func TestReadAll_CaseVariants(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.gz", "ABC,10\nxyz,1\n")
	b := writeGz(t, dir, "b.gz", "abc,5\nXyz,2\nXYZ,3\n")

	rows, err := readAll(context.Background(), zap.NewNop(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "abc", rows[0].code)
	assert.Equal(t, "5", rows[0].discount.String())
	assert.Equal(t, "XYZ", rows[1].code)
	assert.Equal(t, "3", rows[1].discount.String())
}

func TestReadAll_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.gz")
	require.NoError(t, os.WriteFile(path, []byte("A,1\n"), 0o600))

	_, err := readAll(context.Background(), zap.NewNop(), []string{path})
	require.Error(t, err)
}

func TestWriteCoupons(t *testing.T) {
	rows := []couponRow{
		{code: "A", discount: decimal.NewFromInt(1)},
		{code: "B", discount: decimal.NewFromInt(2)},
		{code: "C", discount: decimal.NewFromInt(3)},
	}

	repo := &memRepo{coupons: map[string]decimal.Decimal{}}
	require.NoError(t, writeCoupons(context.Background(), zap.NewNop(), repo, rows, 2))
	assert.Len(t, repo.coupons, 3)

	failing := &memRepo{coupons: map[string]decimal.Decimal{}, failOn: "B"}
	err := writeCoupons(context.Background(), zap.NewNop(), failing, rows, 1)
	require.ErrorContains(t, err, `upsert "B"`)
}
