// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"encoding/binary"
	"strings"
)

// Key prefixes for different data types
const (
	collectionMetaPrefix   = "colmeta:"
	collectionRecordPrefix = "colrec:"
	collectionIndexPrefix  = "colidx:"
	collectionSeqPrefix    = "colseq:"
)

// validCollectionName reports whether name can be embedded in keys.
func validCollectionName(name string) bool {
	return name != "" && !strings.ContainsAny(name, ":\x00")
}

// makeMetaKey generates the key holding a collection's metadata.
func makeMetaKey(collection string) []byte {
	return []byte(collectionMetaPrefix + collection)
}

// makeRecordPrefix generates the prefix shared by all records of a collection.
// Format: prefix:collection:
func makeRecordPrefix(collection string) []byte {
	return []byte(collectionRecordPrefix + collection + ":")
}

// makeRecordKey generates a record key ordered by insertion sequence.
// Format: prefix:collection:seq
func makeRecordKey(collection string, seq uint64) []byte {
	prefix := makeRecordPrefix(collection)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// seqFromRecordKey extracts the sequence number from a record key.
func seqFromRecordKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// makeIndexPrefix generates the prefix of a collection's chunk id index.
func makeIndexPrefix(collection string) []byte {
	return []byte(collectionIndexPrefix + collection + ":")
}

// makeIndexKey maps a chunk id to its record sequence.
// Format: prefix:collection:chunkID
func makeIndexKey(collection, chunkID string) []byte {
	return append(makeIndexPrefix(collection), chunkID...)
}

// makeSeqKey names the Badger sequence that numbers a collection's records.
func makeSeqKey(collection string) []byte {
	return []byte(collectionSeqPrefix + collection)
}

func encodeSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func decodeSeq(val []byte) uint64 {
	if len(val) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(val)
}
