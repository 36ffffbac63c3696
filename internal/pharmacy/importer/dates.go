package importer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/config"
)

// excelEpoch is day zero of the 1900 date system as Excel counts it
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// serials above this are past 9999-12-31
const maxExcelSerial = 2958465

var (
	shortDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
	isoDate   = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
)

// ParseExpiry reads an expiry cell. It accepts Excel serial numbers,
// d/m/y or m/d/y (order decides which is tried first; a month field above
// 12 swaps them), and y/m/d. Separators may be "/", "-" or "."; a time
// suffix is ignored. ok is false when nothing matches.
func ParseExpiry(raw string, order string) (repository.Date, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return repository.Date{}, false
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(serial)
	}

	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	s = strings.NewReplacer(".", "/", "-", "/").Replace(s)

	if m := isoDate.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	if m := shortDate.FindStringSubmatch(s); m != nil {
		first, second, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		day, month := first, second
		if order == config.DateOrderMDY {
			day, month = second, first
		}
		if month > 12 {
			day, month = month, day
		}
		return makeDate(year, month, day)
	}

	return repository.Date{}, false
}

func fromSerial(serial float64) (repository.Date, bool) {
	if math.IsNaN(serial) || serial < 1 || serial > maxExcelSerial {
		return repository.Date{}, false
	}
	d := excelEpoch.AddDate(0, 0, int(math.Floor(serial)))
	return repository.DateOf(d), true
}

// makeDate rejects values time.Date would silently normalise, such as 31/02
func makeDate(year, month, day int) (repository.Date, bool) {
	if month < 1 || month > 12 || day < 1 {
		return repository.Date{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return repository.Date{}, false
	}
	return repository.NewDate(year, time.Month(month), day), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// MaxQuantity is the largest stock a lot row can hold
const MaxQuantity = math.MaxInt32

// ParseQuantity reads a quantity cell. Missing, unparseable or
// non-positive values count as one unit. Values above MaxQuantity read as
// MaxQuantity+1 so that GroupRows rejects them.
func ParseQuantity(raw string) int {
	q, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, -1) {
		return 1
	}
	if q > MaxQuantity {
		return MaxQuantity + 1
	}
	n := int(math.Round(q))
	if n <= 0 {
		return 1
	}
	return n
}
