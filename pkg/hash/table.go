package hash

import (
	"github.com/mnohosten/pagestore/pkg/storable"
	"github.com/mnohosten/pagestore/pkg/storage"
)

// ExtendibleHashTable is a hash index whose directory and buckets all live
// as pages in a shared cache. dirPageID is expected to already hold (or be
// ready to receive) an encoded Directory; the caller owns its lifetime the
// same way BTree's caller owns the root page id.
type ExtendibleHashTable[K, V any] struct {
	cache     *storage.PageCache
	dirPageID storage.PageId
	bitSize   int
	keyCodec  storable.KeyCodec[K]
	valCodec  storable.ValueCodec[V]
}

// New creates a table rooted at dirPageID. The directory page must already
// exist (via cache.NewPage); New writes a fresh, empty Directory into it.
func New[K, V any](cache *storage.PageCache, dirPageID storage.PageId, bitSize int, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) (*ExtendibleHashTable[K, V], error) {
	guard, err := cache.FetchPage(dirPageID)
	if err != nil {
		return nil, err
	}
	dir := NewDirectory()
	guard.Write(func(p *storage.Page) { dir.EncodeInto(p) })
	guard.Unpin()

	return &ExtendibleHashTable[K, V]{
		cache:     cache,
		dirPageID: dirPageID,
		bitSize:   bitSize,
		keyCodec:  keyCodec,
		valCodec:  valCodec,
	}, nil
}

// Open resumes a table whose directory page was already initialized by a
// prior New/Open call.
func Open[K, V any](cache *storage.PageCache, dirPageID storage.PageId, bitSize int, keyCodec storable.KeyCodec[K], valCodec storable.ValueCodec[V]) *ExtendibleHashTable[K, V] {
	return &ExtendibleHashTable[K, V]{cache: cache, dirPageID: dirPageID, bitSize: bitSize, keyCodec: keyCodec, valCodec: valCodec}
}

func (t *ExtendibleHashTable[K, V]) hash(k K) uint64 {
	return hashBytes(t.keyCodec.Encode(k))
}

// NumBuckets returns 1<<global_depth.
func (t *ExtendibleHashTable[K, V]) NumBuckets() (uint32, error) {
	guard, err := t.cache.FetchPage(t.dirPageID)
	if err != nil {
		return 0, err
	}
	var dir *Directory
	guard.Read(func(p *storage.Page) { dir = DecodeDirectory(p) })
	guard.Unpin()
	return 1 << dir.GlobalDepth, nil
}

// Stats reports directory-level counters for observability surfaces.
func (t *ExtendibleHashTable[K, V]) Stats() (map[string]any, error) {
	guard, err := t.cache.FetchPage(t.dirPageID)
	if err != nil {
		return nil, err
	}
	var dir *Directory
	guard.Read(func(p *storage.Page) { dir = DecodeDirectory(p) })
	guard.Unpin()

	return map[string]any{
		"global_depth": dir.GlobalDepth,
		"num_buckets":  uint32(1) << dir.GlobalDepth,
	}, nil
}

// Get returns every value stored under k.
func (t *ExtendibleHashTable[K, V]) Get(k K) ([]V, error) {
	dirGuard, err := t.cache.FetchPage(t.dirPageID)
	if err != nil {
		return nil, err
	}
	var dir *Directory
	dirGuard.Read(func(p *storage.Page) { dir = DecodeDirectory(p) })
	dirGuard.Unpin()

	idx := dir.Index(t.hash(k))
	bucketID := dir.PageIds[idx]
	if bucketID == storage.NoPage {
		return nil, nil
	}

	bucketGuard, err := t.cache.FetchPage(bucketID)
	if err != nil {
		return nil, err
	}
	var bucket *Bucket[K, V]
	bucketGuard.Read(func(p *storage.Page) { bucket = DecodeBucket[K, V](p, t.bitSize, t.keyCodec, t.valCodec) })
	bucketGuard.Unpin()

	return bucket.Find(k), nil
}

// Remove clears the (k, v) pair's occupied slot, if present. The bucket's
// decode, mutation, and re-encode all happen inside one Write closure, so
// the frame's write lock is held across the whole cycle — a concurrent
// Insert into the same bucket can never interleave its own decode against
// a write this call hasn't landed yet.
func (t *ExtendibleHashTable[K, V]) Remove(k K, v V) (bool, error) {
	dirGuard, err := t.cache.FetchPage(t.dirPageID)
	if err != nil {
		return false, err
	}
	var dir *Directory
	dirGuard.Read(func(p *storage.Page) { dir = DecodeDirectory(p) })
	dirGuard.Unpin()

	idx := dir.Index(t.hash(k))
	bucketID := dir.PageIds[idx]
	if bucketID == storage.NoPage {
		return false, nil
	}

	bucketGuard, err := t.cache.FetchPage(bucketID)
	if err != nil {
		return false, err
	}
	defer bucketGuard.Unpin()

	var removed bool
	bucketGuard.Write(func(p *storage.Page) {
		bucket := DecodeBucket[K, V](p, t.bitSize, t.keyCodec, t.valCodec)
		removed = bucket.Remove(k, v)
		bucket.EncodeInto(p)
	})
	return removed, nil
}

// Insert adds (k, v), splitting the target bucket (and, if necessary,
// doubling the directory) when it is full.
//
// The directory's write lock is held for the whole operation, matching the
// teacher's continuous dir_page_w/bucket_page_w discipline: a concurrent
// Get/Remove/Insert against the same slot is serialized behind it rather
// than racing a decode against this call's not-yet-landed write. The
// target bucket's own decode, mutation, and re-encode happen inside one
// nested Write closure for the same reason.
func (t *ExtendibleHashTable[K, V]) Insert(k K, v V) error {
	dirGuard, err := t.cache.FetchPage(t.dirPageID)
	if err != nil {
		return err
	}
	defer dirGuard.Unpin()

	var opErr error
	dirGuard.Write(func(dp *storage.Page) {
		dir := DecodeDirectory(dp)
		idx := dir.Index(t.hash(k))
		bucketID := dir.PageIds[idx]

		var bucketGuard *storage.PinGuard
		if bucketID == storage.NoPage {
			bucketGuard, opErr = t.cache.NewPage()
			if opErr != nil {
				return
			}
			bucketID = bucketGuard.ID()
			dir.PageIds[idx] = bucketID
		} else {
			bucketGuard, opErr = t.cache.FetchPage(bucketID)
			if opErr != nil {
				return
			}
		}

		var bucket *Bucket[K, V]
		var full bool
		bucketGuard.Write(func(bp *storage.Page) {
			bucket = DecodeBucket[K, V](bp, t.bitSize, t.keyCodec, t.valCodec)
			bucket.Insert(k, v)
			full = bucket.IsFull()
			bucket.EncodeInto(bp)
		})
		bucketGuard.Unpin()

		if full {
			opErr = t.split(dir, idx, bucketID, bucket)
		}

		dir.EncodeInto(dp)
	})
	return opErr
}

// split is called with dir already decoded and bucket already written back
// full; the caller's dirGuard.Write closure is still open around this
// call, so the directory's write lock stays held throughout. split doubles
// the directory if the bucket is at the current global depth, partitions
// the bucket's pairs across two fresh buckets by the new high bit,
// redirects every directory slot pointing at the old bucket (the caller
// re-encodes dir once this returns), and retires the old bucket page.
func (t *ExtendibleHashTable[K, V]) split(dir *Directory, idx int, oldBucketID storage.PageId, oldBucket *Bucket[K, V]) error {
	localDepth := dir.LocalDepths[idx]
	if localDepth == byte(dir.GlobalDepth) {
		dir.IncrGlobalDepth()
	}

	page0Guard, err := t.cache.NewPage()
	if err != nil {
		return err
	}
	defer page0Guard.Unpin()
	bucket0 := NewBucket[K, V](t.bitSize, t.keyCodec, t.valCodec)

	page1Guard, err := t.cache.NewPage()
	if err != nil {
		return err
	}
	defer page1Guard.Unpin()
	bucket1 := NewBucket[K, V](t.bitSize, t.keyCodec, t.valCodec)

	newLocalDepth := localDepth + 1
	bit := LocalDepthMask(localDepth)

	ks, vs := oldBucket.Pairs()
	for i, key := range ks {
		hashIdx := dir.Index(t.hash(key))
		if uint64(hashIdx)&bit > 0 {
			bucket1.Insert(key, vs[i])
		} else {
			bucket0.Insert(key, vs[i])
		}
	}

	for i := 0; i < DirectorySize; i++ {
		if dir.PageIds[i] != oldBucketID {
			continue
		}
		if uint64(i)&bit > 0 {
			dir.PageIds[i] = page1Guard.ID()
		} else {
			dir.PageIds[i] = page0Guard.ID()
		}
		dir.LocalDepths[i] = newLocalDepth
	}

	// Design note 5: bucket0's bytes go to page0, bucket1's bytes go to
	// page1 — each bucket is written to its own page, never the other's.
	page0Guard.Write(func(p *storage.Page) { bucket0.EncodeInto(p) })
	page1Guard.Write(func(p *storage.Page) { bucket1.EncodeInto(p) })

	return t.cache.RemovePage(oldBucketID)
}
