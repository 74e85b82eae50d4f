package mirror

// Stats accumulates the material outcome of a run across tasks. Written
// only by the single engine thread.
type Stats struct {
	FilesCopied    int64
	EntriesDeleted int64
	BytesCopied    int64
}
