package commands

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

const statementDateLayout = "2006-01-02"

// loadBankCSV parses a bank statement with columns
// date,description,income,expense,balance. A header row is detected
// and skipped.
func loadBankCSV(path string) ([]core.BankTransaction, error) {
	rows, err := readCSV(path, 5)
	if err != nil {
		return nil, err
	}
	txs := make([]core.BankTransaction, 0, len(rows))
	for i, row := range rows {
		date, err := time.Parse(statementDateLayout, row[0])
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, badStatement(path, i, err)
		}
		income, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, badStatement(path, i, err)
		}
		expense, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, badStatement(path, i, err)
		}
		balance, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, badStatement(path, i, err)
		}
		txs = append(txs, core.BankTransaction{
			Date:        date,
			Description: row[1],
			Income:      income,
			Expense:     expense,
			Balance:     balance,
		})
	}
	return txs, nil
}

// loadCardCSV parses a card statement with columns
// date,category,amount_paid.
func loadCardCSV(path string) ([]core.CardTransaction, error) {
	rows, err := readCSV(path, 3)
	if err != nil {
		return nil, err
	}
	txs := make([]core.CardTransaction, 0, len(rows))
	for i, row := range rows {
		date, err := time.Parse(statementDateLayout, row[0])
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, badStatement(path, i, err)
		}
		amount, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, badStatement(path, i, err)
		}
		txs = append(txs, core.CardTransaction{
			Date:       date,
			Category:   row[1],
			AmountPaid: amount,
		})
	}
	return txs, nil
}

func readCSV(path string, fields int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to open statement"),
			errors.Fields{"path": path},
		)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = fields
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "malformed statement"),
				errors.Fields{"path": path},
			)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func badStatement(path string, row int, err error) error {
	return errors.WithFields(
		errors.Wrap(err, errors.InvalidInput, "malformed statement row"),
		errors.Fields{"path": path, "row": row},
	)
}
