package segment

// record is the immutable value stored in the map for every key. Writers never
// modify a published record; they build a new one and swap it in, so the
// pointer identity of a record doubles as its version for compare-and-swap.
type record struct {
	value    []byte
	expireAt uint64 // 0 = never
	deleteAt uint64 // 0 = never
	index    uint64 // write index of the last accepted write
	expired  bool   // value dropped by Expire or the sweeper
	deleted  bool   // tombstone written by Delete
}

// ttlInfo reports whether the record is expired and whether it is deleted at
// the given write index. A deleted record is always expired as well.
func (r *record) ttlInfo(writeIdx uint64) (isExpired, isDeleted bool) {
	isDeleted = r.deleted || (r.deleteAt != 0 && writeIdx >= r.deleteAt)
	isExpired = isDeleted || r.expired || (r.expireAt != 0 && writeIdx >= r.expireAt)
	return isExpired, isDeleted
}

// withoutValue returns a copy of r marked as expired with the value released.
func (r *record) withoutValue() *record {
	return &record{
		expireAt: r.expireAt,
		deleteAt: r.deleteAt,
		index:    r.index,
		expired:  true,
		deleted:  r.deleted,
	}
}
