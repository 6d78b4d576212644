package extkey

/*

# Extended keys

LMDB caps the length of a key (511 bytes for a default build). Task types are
keyed by their encoded form, and an encoded task type with a large argument
easily exceeds that limit. This package lets an arbitrary length logical key
be used for point lookups in a database whose native keys are bounded.

Logical keys shorter than the native maximum are stored verbatim. Longer keys
are stored under a derived physical key of exactly the native maximum length:

	+--------------------------------------+------------------+
	| logical key [0 : max-8]              | xxhash64(key) BE |
	+--------------------------------------+------------------+

Verbatim keys are always strictly shorter than a derived key, so the two key
spaces can not collide with each other.

Two distinct logical keys may still derive the same physical key (same
prefix, same 64 bit hash). The value stored under a derived key is therefore a
bucket holding every logical key that maps there:

	+-------------+---------------+---------+-----------+
	| keyLen u32  | valueLen u32  | key     | value     |  record 0
	+-------------+---------------+---------+-----------+
	| ...                                               |  record n
	+---------------------------------------------------+

Get only returns a value when a record's key is byte for byte equal to the
requested logical key. Put replaces the record for an equal key and carries
every other record over unchanged.

*/
