package importer

import (
	"math"
	"strconv"
	"strings"

	"wa-cobranzas/internal/portfolio"
)

const minColumns = 4

// Result is the outcome of normalising a batch of rows.
type Result struct {
	Inputs   []portfolio.Input
	Rejected int
	// Dropped counts well-formed rows whose computed debt was not positive.
	Dropped int
	// Skipped counts rows ignored without judgement: blanks, the header and
	// rows shorter than four columns.
	Skipped int
}

// Normalize turns raw rows (name, phone, installment, overdue count) into
// client inputs.
func Normalize(rows [][]string) Result {
	var res Result
	for idx, cols := range rows {
		if len(cols) == 0 {
			res.Skipped++
			continue
		}
		if idx == 0 && isHeader(cols[0]) {
			res.Skipped++
			continue
		}
		if len(cols) < minColumns {
			res.Skipped++
			continue
		}

		name := strings.TrimSpace(cols[0])
		phone := portfolio.DigitsOnly(cols[1])
		installment := parseAmount(cols[2])
		overdue := parseAmount(cols[3])

		if name == "" || phone == "" || math.IsNaN(installment) || math.IsNaN(overdue) {
			res.Rejected++
			continue
		}

		debt := overdue * installment
		if debt <= 0 {
			res.Dropped++
			continue
		}
		res.Inputs = append(res.Inputs, portfolio.Input{
			Name:             name,
			Phone:            phone,
			Debt:             debt,
			InstallmentValue: installment,
		})
	}
	return res
}

// SplitLine splits a delimited text line on tabs when present, else commas.
func SplitLine(line string) []string {
	if line == "" {
		return nil
	}
	delim := ","
	if strings.Contains(line, "\t") {
		delim = "\t"
	}
	parts := strings.Split(line, delim)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, `"`)
		p = strings.TrimSuffix(p, `"`)
		parts[i] = p
	}
	return parts
}

// TextRows splits newline-delimited text into rows of fields.
func TextRows(text string) [][]string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	rows := make([][]string, len(lines))
	for i, line := range lines {
		rows[i] = SplitLine(line)
	}
	return rows
}

func isHeader(first string) bool {
	first = strings.ToLower(first)
	if strings.TrimSpace(first) == "" {
		return false
	}
	return strings.Contains(first, "cliente") || strings.Contains(first, "nombre")
}

// parseAmount keeps digits and dots, then reads the longest leading decimal.
// An empty cell reads as zero; a cell with no digits is NaN.
func parseAmount(cell string) float64 {
	if cell == "" {
		return 0
	}
	var b strings.Builder
	for _, r := range cell {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return leadingDecimal(b.String())
}

func leadingDecimal(s string) float64 {
	end, digits, dot := 0, 0, false
	for end < len(s) {
		c := s[end]
		if c == '.' {
			if dot {
				break
			}
			dot = true
		} else {
			digits++
		}
		end++
	}
	if digits == 0 {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
