package export

import "strconv"

// RowCount is a number of rows that may be unknown, as when an external tool
// wrote the file.
type RowCount struct {
	n     int64
	known bool
}

func Known(n int64) RowCount {
	return RowCount{n: n, known: true}
}

func Unknown() RowCount {
	return RowCount{}
}

// Add sums two counts. Unknown is absorbing.
func (r RowCount) Add(o RowCount) RowCount {
	if !r.known || !o.known {
		return Unknown()
	}

	return Known(r.n + o.n)
}

func (r RowCount) Value() (int64, bool) {
	return r.n, r.known
}

func (r RowCount) String() string {
	if !r.known {
		return "unknown"
	}

	return strconv.FormatInt(r.n, 10)
}
