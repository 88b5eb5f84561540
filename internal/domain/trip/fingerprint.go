package trip

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/zeebo/xxh3"
)

// RowHash hashes a row's values with xxh3. Equal values of the same kind hash equally
// whatever driver type carried them: integers and floats are hashed by numeric value,
// timestamps as UTC instants and byte slices as text.
func RowHash(values []any) uint64 {
	return hashRow(values).Sum64()
}

// rowHash128 is the 128-bit form of RowHash.
func rowHash128(values []any) xxh3.Uint128 {
	return hashRow(values).Sum128()
}

func hashRow(values []any) *xxh3.Hasher {
	h := xxh3.New()
	var buf [9]byte
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			buf[0] = 'N'
			h.Write(buf[:1])
		case time.Time:
			buf[0] = 'T'
			binary.LittleEndian.PutUint64(buf[1:], uint64(x.UnixNano()))
			h.Write(buf[:9])
		case string:
			writeText(h, x)
		case []byte:
			writeText(h, string(x))
		case bool:
			buf[0] = 'B'
			buf[1] = 0
			if x {
				buf[1] = 1
			}
			h.Write(buf[:2])
		default:
			if f, ok, err := AsFloat(v); err == nil && ok {
				buf[0] = 'F'
				if f == 0 {
					f = 0 // folds -0 into 0
				}
				binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(f))
				h.Write(buf[:9])
				continue
			}
			writeText(h, fmt.Sprint(v))
		}
	}
	return h
}

func writeText(h *xxh3.Hasher, s string) {
	var hdr [9]byte
	hdr[0] = 'S'
	binary.LittleEndian.PutUint64(hdr[1:], uint64(len(s)))
	h.Write(hdr[:])
	h.WriteString(s)
}

// Fingerprint is an order-independent digest of a multiset of rows.
type Fingerprint struct {
	sum   uint64
	count int64
}

// Add folds one row into the digest.
func (f *Fingerprint) Add(values []any) {
	f.sum += RowHash(values)
	f.count++
}

// Count returns the number of rows added.
func (f *Fingerprint) Count() int64 { return f.count }

// String renders the digest as "<rows>:<hex>".
func (f *Fingerprint) String() string {
	return fmt.Sprintf("%d:%016x", f.count, f.sum)
}

// Deduplicator reports rows already seen by their 128-bit xxh3 hash.
//
// Only hashes are kept, one 16-byte key per distinct row plus map overhead, which is
// 20 to 40 bytes per row in practice, up to about 28 GB for 700 million distinct rows.
// Tables of that size should be deduplicated in the database instead. Two distinct rows
// are mistaken for duplicates only on a 128-bit collision, which is below 1e-20 at
// that row count.
type Deduplicator struct {
	seen map[xxh3.Uint128]struct{}
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[xxh3.Uint128]struct{})}
}

// Seen records values and reports whether an equal row was recorded before.
func (d *Deduplicator) Seen(values []any) bool {
	k := rowHash128(values)
	if _, ok := d.seen[k]; ok {
		return true
	}
	d.seen[k] = struct{}{}
	return false
}
