package domain

import (
	"math"
	"time"
)

const bytesPerMB = 1024 * 1024

// BlobItem is a storage listing entry as returned by the blob service.
type BlobItem struct {
	Name         string
	CreationTime time.Time
	LastModified time.Time
	SizeBytes    int64
}

// BlobRecord is the display form of a BlobItem.
type BlobRecord struct {
	Name         string
	CreationTime time.Time
	LastModified time.Time
	SizeMB       float64
}

func NewBlobRecord(item BlobItem) BlobRecord {
	return BlobRecord{
		Name:         item.Name,
		CreationTime: item.CreationTime,
		LastModified: item.LastModified,
		SizeMB:       sizeMB(item.SizeBytes),
	}
}

// sizeMB converts bytes to MiB rounded up to two decimals. It works in whole
// hundredths so large sizes never lose the final hundredth to float error.
func sizeMB(bytes int64) float64 {
	if bytes <= 0 {
		return 0
	}
	whole, rem := bytes/bytesPerMB, bytes%bytesPerMB
	hundredths := whole*100 + (rem*100+bytesPerMB-1)/bytesPerMB
	return float64(hundredths) / 100
}

// roundUpSnap bounds how far a scaled value may sit from an integer and still
// count as exact. It is absolute so large inputs keep their last decimal.
const roundUpSnap = 1e-9

// RoundUp rounds x up to the given number of decimals. Products that land
// within roundUpSnap of an integer are snapped first so values that already
// have the requested precision come back unchanged.
func RoundUp(x float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Ceil(x)
	}
	m := math.Pow(10, float64(decimals))
	scaled := x * m
	r := math.Round(scaled)
	if r/m == x {
		return x
	}
	if math.Abs(scaled-r) < roundUpSnap {
		return r / m
	}
	return math.Ceil(scaled) / m
}
