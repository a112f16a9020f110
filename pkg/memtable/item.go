package memtable

// Item is a memtable slot. SeqN is the WAL sequence number of the put that
// wrote it.
type Item struct {
	Key   []byte
	Value []byte
	SeqN  uint64
}
