package barrel

import "encoding/binary"

// nonTxnSeqNo is the sequence number stamped on every auto-commit record.
const nonTxnSeqNo uint64 = 0

// txnFinishedKey is the literal suffix the TxnFinished marker's real key
// carries. A caller may still use the same bytes as a user key; recovery
// and merge tell the two apart by record type, since only the marker is
// stored as LogRecordTxnFinished.
const txnFinishedKey = "txn-fin"

// encodeSeqKey prepends a varint-encoded sequence number to key, the form
// every record is actually stored under on disk.
func encodeSeqKey(seqNo uint64, key []byte) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(key))
	n := binary.PutUvarint(buf, seqNo)
	copy(buf[n:], key)
	return buf[:n+len(key)]
}

// decodeSeqKey splits a stored key back into its sequence number and the
// caller-visible key.
func decodeSeqKey(raw []byte) (uint64, []byte) {
	seqNo, n := binary.Uvarint(raw)
	return seqNo, raw[n:]
}
