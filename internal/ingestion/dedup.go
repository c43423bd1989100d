package ingestion

// dedupKey is the attribute triple duplicates are detected on.
// Comparison is exact: values are already trimmed by validation, and no case
// folding is applied ("NY" and "ny" are distinct clients).
type dedupKey struct {
	name    string
	country string
	city    string
}

// Deduplicator suppresses repeated client rows within one ingestion cycle.
//
// The key is the exact (name, country, city) triple of validated records; the
// identity key takes no part. One Deduplicator is created per cycle and
// threaded through every file in it, so duplicates are caught within a file
// and across files discovered together. The store is never consulted:
// attribute-level dedup here and key-level idempotence in the store are
// separate mechanisms, and rows that dedup differently than they key are
// resolved by the store's last-write-wins upsert.
//
// Used by a single worker per cycle; holds no lock.
type Deduplicator struct {
	seen map[dedupKey]struct{}
}

// NewDeduplicator creates an empty cycle-scoped deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[dedupKey]struct{})}
}

// Observe records the record's attribute triple.
// Returns true the first time a triple is seen (keep the record) and false
// for every later occurrence (drop it). First occurrence wins.
func (d *Deduplicator) Observe(record *ClientRecord) bool {
	key := dedupKey{
		name:    record.Name,
		country: record.Country,
		city:    record.City,
	}

	if _, dup := d.seen[key]; dup {
		return false
	}

	d.seen[key] = struct{}{}

	return true
}

// Seen returns the number of distinct triples observed so far.
func (d *Deduplicator) Seen() int {
	return len(d.seen)
}
