package replay

import "fmt"

// SeqRange represents an inclusive range of operation sequence numbers.
type SeqRange struct {
	From uint64
	To   uint64
}

// Len returns the number of sequence numbers in the range.
func (r SeqRange) Len() uint64 {
	return r.To - r.From + 1
}

// SplitRange splits a sequence range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]SeqRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to seq must be >= from seq")
	}

	ranges := make([]SeqRange, 0)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= batchSize {
			end = to
		} else {
			end = start + batchSize - 1
		}
		ranges = append(ranges, SeqRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
