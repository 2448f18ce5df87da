package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBankCSV(t *testing.T) {
	path := writeFile(t, "bank.csv", `date,description,income,expense,balance
2026-01-15,salary,5000,0,5200
2026-01-20,rent,0,1500,3700
`)
	txs, err := loadBankCSV(path)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "salary", txs[0].Description)
	assert.Equal(t, 5000.0, txs[0].Income)
	assert.Equal(t, 3700.0, txs[1].Balance)
	assert.Equal(t, time.January, txs[0].Date.Month())
}

func TestLoadBankCSVWithoutHeader(t *testing.T) {
	path := writeFile(t, "bank.csv", "2026-02-01,groceries,0,120,900\n")
	txs, err := loadBankCSV(path)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 120.0, txs[0].Expense)
}

func TestLoadBankCSVRejectsBadRow(t *testing.T) {
	path := writeFile(t, "bank.csv", `date,description,income,expense,balance
2026-01-15,salary,not-a-number,0,5200
`)
	_, err := loadBankCSV(path)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestLoadBankCSVMissingFile(t *testing.T) {
	_, err := loadBankCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
}

func TestLoadCardCSV(t *testing.T) {
	path := writeFile(t, "card.csv", `date,category,amount_paid
2026-01-05,dining,85.50
2026-01-12,groceries,240
`)
	txs, err := loadCardCSV(path)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "dining", txs[0].Category)
	assert.Equal(t, 85.50, txs[0].AmountPaid)
}

func TestLoadCardCSVRejectsWrongColumnCount(t *testing.T) {
	path := writeFile(t, "card.csv", "2026-01-05,dining\n")
	_, err := loadCardCSV(path)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}
